package handlers

import (
	"context"

	"charterops/internal/services"
)

// Pinger reports storage health; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler carries the services behind the HTTP API.
type Handler struct {
	Tariff       services.TariffService
	Availability services.AvailabilityService
	Bookings     services.BookingService
	Dispatch     services.DispatchService
	DB           Pinger
}
