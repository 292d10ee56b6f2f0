package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"charterops/internal/config"
	"charterops/internal/domain/models"
	"charterops/internal/lock"
	"charterops/internal/notify"
	"charterops/internal/store"
)

// monday is the reference day for every fixture.
var monday = time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time { return monday.Add(time.Duration(hour) * time.Hour) }

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	ctx      context.Context
	m        *store.Memory
	branch   models.Branch
	oneWay   models.HireType
	round    models.HireType
	daily    models.HireType
	bus      models.VehicleCategory
	van      models.VehicleCategory
	rules    config.TariffRules
	sink     *recorder
	tariff   TariffService
	avail    AvailabilityService
	dispatch DispatchService
	booking  BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := store.NewMemory()
	f := &fixture{ctx: context.Background(), m: m, sink: &recorder{}}
	f.branch = m.PutBranch(models.Branch{Name: "Central", Active: true})
	f.oneWay = m.PutHireType(models.HireType{Code: models.HireOneWay, Name: "One way"})
	f.round = m.PutHireType(models.HireType{Code: models.HireRoundTrip, Name: "Round trip"})
	f.daily = m.PutHireType(models.HireType{Code: models.HireDaily, Name: "Daily charter"})
	f.bus = m.PutCategory(models.VehicleCategory{Name: "Bus 45", Active: true})
	f.van = m.PutCategory(models.VehicleCategory{Name: "Van 12", Active: true})

	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.PutPricing(models.VehicleCategoryPricing{
		CategoryID: f.bus.ID, BaseFare: 50000, PricePerKm: 10000, HighwayFee: 20000,
		FixedCosts: 30000, SameDayFixedPrice: 800000, EffectiveDate: effective, Status: models.PricingActive,
	})
	m.PutPricing(models.VehicleCategoryPricing{
		CategoryID: f.van.ID, BaseFare: 20000, PricePerKm: 5000, EffectiveDate: effective, Status: models.PricingActive,
	})

	f.rules = config.TariffRules{HolidayMultiplier: 1.5, WeekendMultiplier: 1.2, DepositRate: 0.3, ExtraStopFee: 10000}
	clock := func() time.Time { return monday.Add(-24 * time.Hour) }
	f.tariff = TariffService{Store: m, Rules: f.rules}
	f.avail = AvailabilityService{Store: m}
	f.dispatch = DispatchService{Store: m, Notifier: f.sink, Now: clock}
	f.booking = BookingService{
		Store:        m,
		Tariff:       f.tariff,
		Availability: f.avail,
		Dispatch:     f.dispatch,
		Locker:       lock.NewLocal(time.Second),
		Notifier:     f.sink,
		Rules:        f.rules,
		Now:          clock,
	}
	return f
}

func (f *fixture) vehicle(cat models.VehicleCategory) models.Vehicle {
	return f.m.PutVehicle(models.Vehicle{
		BranchID: f.branch.ID, CategoryID: cat.ID, Capacity: 45, Status: models.VehicleAvailable,
	})
}

func (f *fixture) driver(priority int, rating float64) models.Driver {
	return f.m.PutDriver(models.Driver{
		BranchID: f.branch.ID, Name: "driver", LicenseExpiry: monday.AddDate(1, 0, 0),
		Rating: rating, PriorityLevel: priority, Status: models.DriverAvailable,
	})
}

// trip stores a confirmed booking for lines with one SCHEDULED trip.
func (f *fixture) trip(t *testing.T, start, end time.Time, lines ...models.BookingLine) models.Trip {
	t.Helper()
	var trip models.Trip
	require.NoError(t, f.m.WithTx(f.ctx, func(tx store.Store) error {
		b := &models.Booking{
			BranchID: f.branch.ID, StartTime: start, EndTime: end,
			Status: models.BookingConfirmed, Lines: lines,
		}
		if err := tx.CreateBooking(f.ctx, b); err != nil {
			return err
		}
		trip = models.Trip{BookingID: b.ID, StartTime: start, EndTime: end, Status: models.TripScheduled}
		return tx.CreateTrip(f.ctx, &trip)
	}))
	return trip
}

// occupy attaches vehicle to trip directly in the store.
func (f *fixture) occupy(t *testing.T, trip models.Trip, vehicleID int64) {
	t.Helper()
	require.NoError(t, f.m.AddTripVehicle(f.ctx, models.TripVehicle{TripID: trip.ID, VehicleID: vehicleID, AssignedAt: monday}))
}

func line(cat models.VehicleCategory, qty int) models.BookingLine {
	return models.BookingLine{CategoryID: cat.ID, Quantity: qty}
}
