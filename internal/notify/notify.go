// Package notify delivers allocation events to operators without ever
// blocking or failing the allocation path.
package notify

import (
	"context"
	"errors"
	"time"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingCancelled     = "booking.cancelled"
	EventResourceInsufficient = "resource.insufficient"
	EventTripAssigned         = "trip.assigned"
	EventTripReassigned       = "trip.reassigned"
	EventTripUnassigned       = "trip.unassigned"
	EventTripCancelled        = "trip.cancelled"
)

type Event struct {
	Type      string         `json:"type"`
	BranchID  int64          `json:"branch_id,omitempty"`
	BookingID int64          `json:"booking_id,omitempty"`
	TripID    int64          `json:"trip_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	At        time.Time      `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
