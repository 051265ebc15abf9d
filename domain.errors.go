package main

import (
	"errors"
	"fmt"
)

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrBookExists        = errors.New("book already exists")
	ErrBookReserved      = errors.New("book is currently reserved")
	ErrStatusConflict    = errors.New("book status changed concurrently")
	ErrReservationOpen   = errors.New("book already has an open reservation")
	ErrNoOpenReservation = errors.New("book has no open reservation")
)

// ErrorKind classifies the failures of a reservation state change.
type ErrorKind string

const (
	KindUnauthorized   ErrorKind = "unauthorized"
	KindNotFound       ErrorKind = "not_found"
	KindForbidden      ErrorKind = "forbidden"
	KindConflict       ErrorKind = "conflict"
	KindReadFailed     ErrorKind = "read_failed"
	KindWriteFailed    ErrorKind = "write_failed"
	KindPartialFailure ErrorKind = "partial_failure"
)

// ReservationError is the typed failure returned by the coordinator.
// Compensated is only meaningful for KindPartialFailure: it reports
// whether the first write was undone before returning.
type ReservationError struct {
	Kind        ErrorKind
	Op          string
	BookID      string
	Compensated bool
	Err         error
}

func (e *ReservationError) Error() string {
	msg := fmt.Sprintf("reservation: %s: book %q: %s", e.Op, e.BookID, e.Kind)
	if e.Kind == KindPartialFailure {
		msg += fmt.Sprintf(" (compensated=%t)", e.Compensated)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReservationError) Unwrap() error {
	return e.Err
}

// Retryable tells if the same call can be safely replayed.
func (e *ReservationError) Retryable() bool {
	switch e.Kind {
	case KindReadFailed, KindWriteFailed, KindConflict:
		return true
	case KindPartialFailure:
		return e.Compensated
	default:
		return false
	}
}

// KindOf returns the kind of a reservation error or an empty kind.
func KindOf(err error) ErrorKind {
	var re *ReservationError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsPartialFailure tells if the ledger and the catalog may disagree after err.
func IsPartialFailure(err error) bool {
	var re *ReservationError
	return errors.As(err, &re) && re.Kind == KindPartialFailure && !re.Compensated
}
