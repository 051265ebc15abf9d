package main

import (
	"context"
	"time"
)

const ReservationIDPrefix string = "rsv"

// Reservation is a time-bounded claim by a user on a book.
// A nil ReturnedAt means the reservation is still open.
type Reservation struct {
	ID         string     `json:"id"`
	BookID     string     `json:"bookId"`
	UserID     string     `json:"userId"`
	ReservedAt time.Time  `json:"reservedAt"`
	ReturnedAt *time.Time `json:"returnedAt"`
}

// IsOpen tells if the reservation was not returned yet.
func (r Reservation) IsOpen() bool {
	return r.ReturnedAt == nil
}

// ReservationStorage is the reservation ledger. Each engine enforces
// at most one open reservation per book.
type ReservationStorage interface {
	// Open inserts a new open reservation. ErrReservationOpen if the book already has one.
	Open(ctx context.Context, r Reservation) error
	// GetOpen returns the open reservation of a book or ErrNoOpenReservation.
	GetOpen(ctx context.Context, bookID string) (Reservation, error)
	// Close sets the return time of the open reservation of a book and returns it.
	Close(ctx context.Context, bookID string, at time.Time) (Reservation, error)
	// Reopen clears the return time of a previously closed reservation.
	Reopen(ctx context.Context, r Reservation) error
	// Discard removes a reservation which never took effect.
	Discard(ctx context.Context, r Reservation) error
	ListByBook(ctx context.Context, bookID string) ([]Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]Reservation, error)
}

// ReservationTransactor is implemented by engines able to run both
// reservation writes (ledger and catalog) inside a single transaction.
type ReservationTransactor interface {
	// ReserveTx opens the reservation and flips its book to reserved.
	ReserveTx(ctx context.Context, r Reservation) error
	// ReturnTx closes the open reservation of the book (if any) and flips
	// the book to available. The closed reservation is returned when it existed.
	ReturnTx(ctx context.Context, bookID string, at time.Time) (*Reservation, error)
}

// ChangeResult describes a successful reservation state change.
type ChangeResult struct {
	BookID      string       `json:"bookId"`
	Status      BookStatus   `json:"status"`
	Reservation *Reservation `json:"reservation"`
}
