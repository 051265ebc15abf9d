package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Operation names reported by ReservationError.
const (
	OpChangeStatus = "change status"
	OpReserve      = "reserve"
	OpReturn       = "return"
	OpList         = "list"
)

// compensationTimeout bounds the undo of the first write. It runs detached
// from the request context so a client going away does not skip it.
const compensationTimeout = 5 * time.Second

type ReservationServiceProvider interface {
	ChangeStatus(ctx context.Context, bookID, userID string) (ChangeResult, error)
	GetOpen(ctx context.Context, bookID string) (Reservation, error)
	ListByBook(ctx context.Context, bookID string) ([]Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]Reservation, error)
}

// ReservationCoordinator flips a book between available and reserved and
// keeps the reservation ledger in sync. It holds no state of its own.
type ReservationCoordinator struct {
	logger  *zap.Logger
	config  ReservationConfig
	clock   Clocker
	ids     UIDHandler
	books   BookStorage
	ledger  ReservationStorage
	tx      ReservationTransactor
	queue   Queuer
	metrics *Metrics
}

// NewReservationCoordinator provides a coordinator. When tx is not nil and the
// configured mode is transactional, both writes run inside one store transaction.
func NewReservationCoordinator(
	logger *zap.Logger,
	config ReservationConfig,
	clock Clocker,
	ids UIDHandler,
	books BookStorage,
	ledger ReservationStorage,
	tx ReservationTransactor,
	queue Queuer,
	metrics *Metrics,
) *ReservationCoordinator {
	if config.Mode != ModeTransactional {
		tx = nil
	}
	if queue == nil {
		queue = NewNoopQueue()
	}
	return &ReservationCoordinator{
		logger:  logger,
		config:  config,
		clock:   clock,
		ids:     ids,
		books:   books,
		ledger:  ledger,
		tx:      tx,
		queue:   queue,
		metrics: metrics,
	}
}

// ChangeStatus toggles the status of the book on behalf of userID. The direction
// is decided from the current status. Callers must invalidate their cached views
// of the book and its reservation after a successful call.
func (rc *ReservationCoordinator) ChangeStatus(ctx context.Context, bookID, userID string) (result ChangeResult, err error) {
	defer func() {
		rc.observe(result, err)
	}()

	if userID == "" {
		return result, &ReservationError{Kind: KindUnauthorized, Op: OpChangeStatus, BookID: bookID}
	}

	book, err := rc.books.GetOne(ctx, bookID)
	if errors.Is(err, ErrBookNotFound) {
		return result, &ReservationError{Kind: KindNotFound, Op: OpChangeStatus, BookID: bookID, Err: err}
	}
	if err != nil {
		return result, &ReservationError{Kind: KindReadFailed, Op: OpChangeStatus, BookID: bookID, Err: err}
	}

	now := rc.clock.Now().UTC()
	if book.Status.Toggle() == StatusAvailable {
		result, err = rc.release(ctx, bookID, userID, now)
	} else {
		result, err = rc.reserve(ctx, bookID, userID, now)
	}
	if err != nil {
		rc.logger.Error("reservation: status change failed",
			zap.String("book.id", bookID),
			zap.String("user.id", userID),
			zap.String("book.status", string(book.Status)),
			zap.Error(err),
		)
		return result, err
	}

	rc.logger.Info("reservation: status changed",
		zap.String("book.id", bookID),
		zap.String("user.id", userID),
		zap.String("book.status", string(result.Status)),
	)
	book.Status = result.Status
	book.UpdatedAt = now.String()
	rc.replicate(ctx, book, result.Reservation)
	return result, nil
}

// reserve moves an available book to reserved.
func (rc *ReservationCoordinator) reserve(ctx context.Context, bookID, userID string, now time.Time) (ChangeResult, error) {
	r := Reservation{
		ID:         rc.ids.Generate(ReservationIDPrefix),
		BookID:     bookID,
		UserID:     userID,
		ReservedAt: now,
	}

	if rc.tx != nil {
		if err := rc.tx.ReserveTx(ctx, r); err != nil {
			return ChangeResult{}, classifyWriteError(OpReserve, bookID, err)
		}
		return ChangeResult{BookID: bookID, Status: StatusReserved, Reservation: &r}, nil
	}

	if err := rc.ledger.Open(ctx, r); err != nil {
		return ChangeResult{}, classifyWriteError(OpReserve, bookID, err)
	}

	if err := rc.books.SetStatus(ctx, bookID, StatusAvailable, StatusReserved, now); err != nil {
		return ChangeResult{}, rc.partialFailure(ctx, OpReserve, bookID, err, func(ctx context.Context) error {
			return rc.ledger.Discard(ctx, r)
		})
	}
	return ChangeResult{BookID: bookID, Status: StatusReserved, Reservation: &r}, nil
}

// release moves a reserved book back to available.
func (rc *ReservationCoordinator) release(ctx context.Context, bookID, userID string, now time.Time) (ChangeResult, error) {
	if rc.config.OwnerOnlyReturn {
		open, err := rc.ledger.GetOpen(ctx, bookID)
		switch {
		case err == nil:
			if open.UserID != userID {
				return ChangeResult{}, &ReservationError{Kind: KindForbidden, Op: OpReturn, BookID: bookID}
			}
		case errors.Is(err, ErrNoOpenReservation):
		default:
			return ChangeResult{}, &ReservationError{Kind: KindReadFailed, Op: OpReturn, BookID: bookID, Err: err}
		}
	}

	if rc.tx != nil {
		closed, err := rc.tx.ReturnTx(ctx, bookID, now)
		if err != nil {
			return ChangeResult{}, classifyWriteError(OpReturn, bookID, err)
		}
		return ChangeResult{BookID: bookID, Status: StatusAvailable, Reservation: closed}, nil
	}

	var closed *Reservation
	r, err := rc.ledger.Close(ctx, bookID, now)
	switch {
	case err == nil:
		closed = &r
	case errors.Is(err, ErrNoOpenReservation):
		// The book is reserved without ledger entry: flipping the status heals it.
		rc.logger.Warn("reservation: reserved book without open reservation",
			zap.String("book.id", bookID),
			zap.String("user.id", userID),
		)
	default:
		return ChangeResult{}, classifyWriteError(OpReturn, bookID, err)
	}

	if err := rc.books.SetStatus(ctx, bookID, StatusReserved, StatusAvailable, now); err != nil {
		if closed == nil {
			return ChangeResult{}, classifyWriteError(OpReturn, bookID, err)
		}
		return ChangeResult{}, rc.partialFailure(ctx, OpReturn, bookID, err, func(ctx context.Context) error {
			return rc.ledger.Reopen(ctx, *closed)
		})
	}
	return ChangeResult{BookID: bookID, Status: StatusAvailable, Reservation: closed}, nil
}

// partialFailure reports a catalog write failure which happened after the ledger
// write succeeded. When enabled, the ledger write is undone before returning.
func (rc *ReservationCoordinator) partialFailure(ctx context.Context, op, bookID string, cause error, undo func(context.Context) error) error {
	rerr := &ReservationError{Kind: KindPartialFailure, Op: op, BookID: bookID, Err: cause}
	if !rc.config.Compensate {
		rc.logger.Error("reservation: ledger and catalog disagree", zap.String("book.id", bookID), zap.String("op", op), zap.Error(cause))
		return rerr
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := undo(cctx); err != nil {
		rc.logger.Error("reservation: compensation failed, ledger and catalog disagree",
			zap.String("book.id", bookID),
			zap.String("op", op),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		rerr.Err = errors.Join(cause, err)
		return rerr
	}
	rerr.Compensated = true
	return rerr
}

// classifyWriteError maps a store error on a write which left no partial state.
func classifyWriteError(op, bookID string, err error) error {
	kind := KindWriteFailed
	switch {
	case errors.Is(err, ErrBookNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrStatusConflict), errors.Is(err, ErrReservationOpen):
		kind = KindConflict
	}
	return &ReservationError{Kind: kind, Op: op, BookID: bookID, Err: err}
}

// replicate feeds the archive with the new book state and the reservation record.
func (rc *ReservationCoordinator) replicate(ctx context.Context, book Book, r *Reservation) {
	if err := rc.queue.Push(ctx, UpdateQueue, QueueItem{Book: &book}); err != nil {
		rc.logger.Error("reservation: failed to push book to queue", zap.String("qid", UpdateQueue), zap.Error(err))
	}
	if r == nil {
		return
	}
	if err := rc.queue.Push(ctx, LedgerQueue, QueueItem{Reservation: r}); err != nil {
		rc.logger.Error("reservation: failed to push reservation to queue", zap.String("qid", LedgerQueue), zap.Error(err))
	}
}

func (rc *ReservationCoordinator) observe(result ChangeResult, err error) {
	if err != nil {
		rc.metrics.ObserveStatusChange(string(KindOf(err)))
		return
	}
	rc.metrics.ObserveStatusChange(string(result.Status))
}

// GetOpen returns the open reservation of a book.
func (rc *ReservationCoordinator) GetOpen(ctx context.Context, bookID string) (Reservation, error) {
	return rc.ledger.GetOpen(ctx, bookID)
}

// ListByBook returns the reservation history of a book.
func (rc *ReservationCoordinator) ListByBook(ctx context.Context, bookID string) ([]Reservation, error) {
	return rc.ledger.ListByBook(ctx, bookID)
}

// ListByUser returns the reservations made by a user.
func (rc *ReservationCoordinator) ListByUser(ctx context.Context, userID string) ([]Reservation, error) {
	if userID == "" {
		return nil, &ReservationError{Kind: KindUnauthorized, Op: OpList}
	}
	return rc.ledger.ListByUser(ctx, userID)
}
