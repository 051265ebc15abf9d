package main

import (
	"context"
	"time"
)

// Tables emitting change events.
const (
	TableBooks        = "books"
	TableReservations = "reservations"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent notifies that a row related to a book changed.
type ChangeEvent struct {
	Type   EventType `json:"event_type"`
	Table  string    `json:"table"`
	BookID string    `json:"book_id"`
	At     time.Time `json:"at"`
}

// ChangeFilter selects events. Empty fields match everything.
type ChangeFilter struct {
	Table  string
	BookID string
}

// Match tells if the event is selected by the filter.
func (f ChangeFilter) Match(ev ChangeEvent) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.BookID != "" && f.BookID != ev.BookID {
		return false
	}
	return true
}

// Notifier is the publish/subscribe feed of row changes. Delivery is
// at-least-once and unordered so subscribers must be idempotent. The
// returned channel is closed once ctx is done.
type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	Subscribe(ctx context.Context, filter ChangeFilter) (<-chan ChangeEvent, error)
}
