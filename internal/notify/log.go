package notify

import (
	"context"
	"fmt"

	"charterops/internal/utils"
)

// Log writes events to the structured log.
type Log struct{}

func (Log) Notify(ctx context.Context, e Event) error {
	msg := e.Message
	if e.BookingID != 0 {
		msg = fmt.Sprintf("%s booking_id=%d", msg, e.BookingID)
	}
	if e.TripID != 0 {
		msg = fmt.Sprintf("%s trip_id=%d", msg, e.TripID)
	}
	utils.LogEvent(ctx, "NOTIFY", e.Type, msg)
	return nil
}
