package main

import (
	"context"
	"time"
)

// BookStatus is the availability state of a catalog entry.
type BookStatus string

const (
	StatusAvailable BookStatus = "available"
	StatusReserved  BookStatus = "reserved"
)

// IsValid reports whether the status is one of the two known states.
func (s BookStatus) IsValid() bool {
	return s == StatusAvailable || s == StatusReserved
}

// Toggle returns the status reached by a reservation state change.
func (s BookStatus) Toggle() BookStatus {
	if s == StatusReserved {
		return StatusAvailable
	}
	return StatusReserved
}

// Book represents a book entity.
type Book struct {
	ID          string     `json:"id" validate:"omitempty,max=64,bookid"`
	Title       string     `json:"title" validate:"required,max=256"`
	Description string     `json:"description" validate:"required"`
	Author      string     `json:"author" validate:"required,max=128"`
	Price       string     `json:"price" validate:"required,max=32"`
	Status      BookStatus `json:"status"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
}

// BookStorage defines possible operations on book entity.
// The catalog writes never change the status of an existing book: it is
// owned by SetStatus and the reservation transactions.
type BookStorage interface {
	// Add inserts a new book. It fails with ErrBookExists when the id is taken.
	Add(ctx context.Context, id string, book Book) error
	GetOne(ctx context.Context, id string) (Book, error)
	// Delete removes an available book. It fails with ErrBookReserved
	// when the stored book is reserved.
	Delete(ctx context.Context, id string) error
	// Update replaces the catalog fields and returns the stored book. The
	// stored status and creation date are kept. Unknown books are inserted.
	Update(ctx context.Context, id string, book Book) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
	// SetStatus moves the book from one status to another. It fails with
	// ErrStatusConflict when the stored status is not `from` anymore.
	SetStatus(ctx context.Context, id string, from, to BookStatus, at time.Time) error
}
