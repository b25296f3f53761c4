// Package reminders provides durable single-delivery reminders backed by a
// polled store.
package reminders

import (
	"context"
	"errors"
	"time"
)

// Status is a reminder's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Reminder is one scheduled delivery. RunAt and timestamps are stored UTC.
// Once DeliveredAt is set the reminder is never re-delivered.
type Reminder struct {
	ID          string
	UserID      string
	ChannelID   string
	Task        string
	RunAt       time.Time
	CreatedAt   time.Time
	DeliveredAt *time.Time
	Status      Status
	Attempts    int
	ClaimedBy   string
}

// Update carries the mutable reminder fields; nil means unchanged.
type Update struct {
	Task  *string
	RunAt *time.Time
}

var (
	// ErrNotFound is returned for unknown reminder IDs.
	ErrNotFound = errors.New("reminder not found")
	// ErrNotPending is returned when mutating a reminder that already
	// reached a terminal state.
	ErrNotPending = errors.New("reminder is not pending")
)

// Store persists reminders. Claim is an atomic conditional update: of any
// number of concurrent workers, exactly one wins each due row.
type Store interface {
	// Create persists the reminder before returning its ID.
	Create(ctx context.Context, userID, channelID, task string, runAt time.Time) (string, error)
	// List returns the user's pending reminders, ascending run time.
	List(ctx context.Context, userID string) ([]*Reminder, error)
	// Update rewrites task and/or run time; pending reminders only.
	Update(ctx context.Context, id string, upd Update) error
	// Delete cancels a pending reminder. The cancelled marker blocks
	// delivery.
	Delete(ctx context.Context, id string) error

	// Claim marks one due pending row as owned by token and increments
	// its attempt counter. ok is false when another worker won the row or
	// nothing is due.
	Claim(ctx context.Context, id, token string, now time.Time) (ok bool, err error)
	// Due returns pending unclaimed rows with run_at <= now.
	Due(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)
	// MarkDelivered finalises a claimed row.
	MarkDelivered(ctx context.Context, id, token string, at time.Time) error
	// Release rolls a claim back for the next tick, or marks the row
	// failed when final is true.
	Release(ctx context.Context, id, token string, final bool) error
}

func cloneReminder(r *Reminder) *Reminder {
	cp := *r
	if r.DeliveredAt != nil {
		at := *r.DeliveredAt
		cp.DeliveredAt = &at
	}
	return &cp
}
