package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	_ Notifier = (*redisNotifier)(nil)
	_ Notifier = (*memoryNotifier)(nil)
)

// redisNotifier publishes each event on the `<prefix>:<table>` channel.
type redisNotifier struct {
	logger *zap.Logger
	client *redis.Client
	prefix string
	buffer int
}

// NewRedisNotifier provides a notifier backed by redis pub/sub.
func NewRedisNotifier(logger *zap.Logger, client *redis.Client, config NotifierConfig) Notifier {
	return &redisNotifier{
		logger: logger,
		client: client,
		prefix: config.ChannelPrefix,
		buffer: config.BufferSize,
	}
}

func (rn *redisNotifier) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return rn.client.Publish(ctx, rn.prefix+":"+ev.Table, data).Err()
}

func (rn *redisNotifier) Subscribe(ctx context.Context, filter ChangeFilter) (<-chan ChangeEvent, error) {
	pattern := rn.prefix + ":*"
	if filter.Table != "" {
		pattern = rn.prefix + ":" + filter.Table
	}
	pubsub := rn.client.PSubscribe(ctx, pattern)
	// wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan ChangeEvent, rn.buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					rn.logger.Warn("notifier: invalid event payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if !filter.Match(ev) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type memorySubscriber struct {
	filter ChangeFilter
	ch     chan ChangeEvent
}

// memoryNotifier fans events out to in-process subscribers. A subscriber
// whose buffer is full misses the event.
type memoryNotifier struct {
	logger *zap.Logger
	buffer int

	mu   sync.RWMutex
	next int
	subs map[int]*memorySubscriber
}

// NewMemoryNotifier provides an in-process notifier.
func NewMemoryNotifier(logger *zap.Logger, bufferSize int) Notifier {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &memoryNotifier{
		logger: logger,
		buffer: bufferSize,
		subs:   make(map[int]*memorySubscriber),
	}
}

func (mn *memoryNotifier) Publish(_ context.Context, ev ChangeEvent) error {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	for id, sub := range mn.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			mn.logger.Warn("notifier: subscriber too slow, event dropped",
				zap.Int("subscriber", id),
				zap.String("table", ev.Table),
				zap.String("book.id", ev.BookID),
			)
		}
	}
	return nil
}

func (mn *memoryNotifier) Subscribe(ctx context.Context, filter ChangeFilter) (<-chan ChangeEvent, error) {
	sub := &memorySubscriber{filter: filter, ch: make(chan ChangeEvent, mn.buffer)}
	mn.mu.Lock()
	id := mn.next
	mn.next++
	mn.subs[id] = sub
	mn.mu.Unlock()

	go func() {
		<-ctx.Done()
		mn.mu.Lock()
		delete(mn.subs, id)
		close(sub.ch)
		mn.mu.Unlock()
	}()
	return sub.ch, nil
}

// changePublisher emits events on behalf of the storage decorators.
// Publishing failures never fail the write which already happened.
type changePublisher struct {
	logger   *zap.Logger
	clock    Clocker
	notifier Notifier
}

func (cp changePublisher) publish(ctx context.Context, table string, typ EventType, bookID string) {
	ev := ChangeEvent{Type: typ, Table: table, BookID: bookID, At: cp.clock.Now().UTC()}
	if err := cp.notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		cp.logger.Error("notifier: failed to publish event",
			zap.String("table", table),
			zap.String("event_type", string(typ)),
			zap.String("book.id", bookID),
			zap.Error(err),
		)
	}
}

type notifyingBookStorage struct {
	BookStorage
	changePublisher
}

// NewNotifyingBookStorage wraps a book storage to publish a change event after each successful write.
func NewNotifyingBookStorage(logger *zap.Logger, clock Clocker, notifier Notifier, storage BookStorage) BookStorage {
	return &notifyingBookStorage{
		BookStorage:     storage,
		changePublisher: changePublisher{logger: logger, clock: clock, notifier: notifier},
	}
}

func (s *notifyingBookStorage) Add(ctx context.Context, id string, book Book) error {
	if err := s.BookStorage.Add(ctx, id, book); err != nil {
		return err
	}
	s.publish(ctx, TableBooks, EventInsert, id)
	return nil
}

func (s *notifyingBookStorage) Delete(ctx context.Context, id string) error {
	if err := s.BookStorage.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, TableBooks, EventDelete, id)
	return nil
}

func (s *notifyingBookStorage) Update(ctx context.Context, id string, book Book) (Book, error) {
	book, err := s.BookStorage.Update(ctx, id, book)
	if err != nil {
		return book, err
	}
	s.publish(ctx, TableBooks, EventUpdate, id)
	return book, nil
}

func (s *notifyingBookStorage) SetStatus(ctx context.Context, id string, from, to BookStatus, at time.Time) error {
	if err := s.BookStorage.SetStatus(ctx, id, from, to, at); err != nil {
		return err
	}
	s.publish(ctx, TableBooks, EventUpdate, id)
	return nil
}

type notifyingReservationStorage struct {
	ReservationStorage
	changePublisher
}

// NewNotifyingReservationStorage wraps the ledger to publish a change event after each successful write.
func NewNotifyingReservationStorage(logger *zap.Logger, clock Clocker, notifier Notifier, storage ReservationStorage) ReservationStorage {
	return &notifyingReservationStorage{
		ReservationStorage: storage,
		changePublisher:    changePublisher{logger: logger, clock: clock, notifier: notifier},
	}
}

func (s *notifyingReservationStorage) Open(ctx context.Context, r Reservation) error {
	if err := s.ReservationStorage.Open(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, TableReservations, EventInsert, r.BookID)
	return nil
}

func (s *notifyingReservationStorage) Close(ctx context.Context, bookID string, at time.Time) (Reservation, error) {
	r, err := s.ReservationStorage.Close(ctx, bookID, at)
	if err != nil {
		return r, err
	}
	s.publish(ctx, TableReservations, EventUpdate, bookID)
	return r, nil
}

func (s *notifyingReservationStorage) Reopen(ctx context.Context, r Reservation) error {
	if err := s.ReservationStorage.Reopen(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, TableReservations, EventUpdate, r.BookID)
	return nil
}

func (s *notifyingReservationStorage) Discard(ctx context.Context, r Reservation) error {
	if err := s.ReservationStorage.Discard(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, TableReservations, EventDelete, r.BookID)
	return nil
}

type notifyingTransactor struct {
	ReservationTransactor
	changePublisher
}

// NewNotifyingTransactor wraps a transactor to publish both row changes after each commit.
func NewNotifyingTransactor(logger *zap.Logger, clock Clocker, notifier Notifier, tx ReservationTransactor) ReservationTransactor {
	if tx == nil {
		return nil
	}
	return &notifyingTransactor{
		ReservationTransactor: tx,
		changePublisher:       changePublisher{logger: logger, clock: clock, notifier: notifier},
	}
}

func (s *notifyingTransactor) ReserveTx(ctx context.Context, r Reservation) error {
	if err := s.ReservationTransactor.ReserveTx(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, TableReservations, EventInsert, r.BookID)
	s.publish(ctx, TableBooks, EventUpdate, r.BookID)
	return nil
}

func (s *notifyingTransactor) ReturnTx(ctx context.Context, bookID string, at time.Time) (*Reservation, error) {
	closed, err := s.ReservationTransactor.ReturnTx(ctx, bookID, at)
	if err != nil {
		return closed, err
	}
	if closed != nil {
		s.publish(ctx, TableReservations, EventUpdate, bookID)
	}
	s.publish(ctx, TableBooks, EventUpdate, bookID)
	return closed, nil
}
