package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type cachedView struct {
	book        *Book
	reservation *Reservation
	noOpen      bool
	bookAt      time.Time
	openAt      time.Time
}

// ViewCache is a read-through cache of book details and open reservations
// keyed by book id. Entries expire after ttl and are dropped on invalidation.
type ViewCache struct {
	logger  *zap.Logger
	clock   Clocker
	ttl     time.Duration
	metrics *Metrics
	books   BookStorage
	ledger  ReservationStorage

	mu    sync.Mutex
	views map[string]*cachedView
	// gens is bumped by each invalidation of a book. A load started
	// under an older generation is returned but not stored.
	gens map[string]uint64
}

// NewViewCache provides an empty cache reading through books and ledger.
func NewViewCache(logger *zap.Logger, clock Clocker, ttl time.Duration, metrics *Metrics, books BookStorage, ledger ReservationStorage) *ViewCache {
	return &ViewCache{
		logger:  logger,
		clock:   clock,
		ttl:     ttl,
		metrics: metrics,
		books:   books,
		ledger:  ledger,
		views:   make(map[string]*cachedView),
		gens:    make(map[string]uint64),
	}
}

func (vc *ViewCache) fresh(at time.Time) bool {
	return !at.IsZero() && vc.clock.Now().Sub(at) < vc.ttl
}

func (vc *ViewCache) view(bookID string) *cachedView {
	v, ok := vc.views[bookID]
	if !ok {
		v = &cachedView{}
		vc.views[bookID] = v
	}
	return v
}

// GetBook returns the cached book or loads it. Misses are not cached.
func (vc *ViewCache) GetBook(ctx context.Context, bookID string) (Book, error) {
	vc.mu.Lock()
	if v, ok := vc.views[bookID]; ok && v.book != nil && vc.fresh(v.bookAt) {
		book := *v.book
		vc.mu.Unlock()
		return book, nil
	}
	gen := vc.gens[bookID]
	vc.mu.Unlock()

	book, err := vc.books.GetOne(ctx, bookID)
	if err != nil {
		return book, err
	}

	vc.mu.Lock()
	if vc.gens[bookID] == gen {
		v := vc.view(bookID)
		v.book, v.bookAt = &book, vc.clock.Now()
	}
	vc.mu.Unlock()
	return book, nil
}

// GetOpenReservation returns the cached open reservation of a book or loads it.
// The absence of an open reservation is cached as well.
func (vc *ViewCache) GetOpenReservation(ctx context.Context, bookID string) (Reservation, error) {
	vc.mu.Lock()
	if v, ok := vc.views[bookID]; ok && vc.fresh(v.openAt) {
		defer vc.mu.Unlock()
		if v.noOpen {
			return Reservation{}, ErrNoOpenReservation
		}
		return *v.reservation, nil
	}
	gen := vc.gens[bookID]
	vc.mu.Unlock()

	r, err := vc.ledger.GetOpen(ctx, bookID)
	if err != nil && !errors.Is(err, ErrNoOpenReservation) {
		return r, err
	}

	vc.mu.Lock()
	if vc.gens[bookID] == gen {
		v := vc.view(bookID)
		v.openAt = vc.clock.Now()
		v.noOpen = err != nil
		v.reservation = nil
		if err == nil {
			v.reservation = &r
		}
	}
	vc.mu.Unlock()
	return r, err
}

// Invalidate drops every cached view of the book. It is idempotent.
func (vc *ViewCache) Invalidate(bookID, source string) {
	vc.mu.Lock()
	delete(vc.views, bookID)
	vc.gens[bookID]++
	vc.mu.Unlock()
	vc.metrics.ObserveInvalidation(source)
}

// Len returns the number of cached books.
func (vc *ViewCache) Len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.views)
}

// Watch invalidates the cache for each change event received from the
// notifier until ctx is done.
func (vc *ViewCache) Watch(ctx context.Context, notifier Notifier) error {
	events, err := notifier.Subscribe(ctx, ChangeFilter{})
	if err != nil {
		return err
	}
	vc.logger.Info("cache: watching change events")
	for ev := range events {
		vc.logger.Debug("cache: change event received",
			zap.String("table", ev.Table),
			zap.String("event_type", string(ev.Type)),
			zap.String("book.id", ev.BookID),
		)
		vc.Invalidate(ev.BookID, "notifier")
	}
	vc.logger.Info("cache: stopped watching change events", zap.NamedError("reason", ctx.Err()))
	return nil
}
