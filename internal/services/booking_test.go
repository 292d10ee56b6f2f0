package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/notify"
	"charterops/internal/utils"
)

func (f *fixture) createRequest(lines ...models.BookingLine) CreateBookingRequest {
	return CreateBookingRequest{
		CustomerPhone: "+62 812-3456-7890",
		CustomerName:  "  Rina   Wijaya ",
		BranchID:      f.branch.ID,
		HireTypeID:    f.oneWay.ID,
		Lines:         lines,
		Legs: []LegRequest{{
			StartLocation: "Depot", EndLocation: "Airport",
			StartTime: at(8), EndTime: at(12), DistanceKm: 100,
		}},
	}
}

func TestCreateBookingAutoAssignsByPriority(t *testing.T) {
	f := newFixture(t)
	low := f.driver(1, 5.0)
	high := f.driver(3, 4.0)
	mid := f.driver(2, 4.9)
	f.vehicle(f.bus)
	f.vehicle(f.bus)

	req := f.createRequest(line(f.bus, 2))
	req.AutoAssign = true
	req.ExtraPickupPoints = 1
	req.Legs[0].IncidentalCosts = 5000

	b, err := f.booking.CreateBooking(f.ctx, req, actor)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, utils.MoneyFromFloat((100*10000+50000)*2), b.EstimatedCost)
	assert.Equal(t, utils.MoneyFromFloat(2100000+10000+5000), b.TotalCost)
	assert.Equal(t, utils.MoneyFromFloat(634500), b.DepositAmount)
	require.Len(t, b.Trips, 1)
	assert.Equal(t, models.TripAssigned, b.Trips[0].Status)

	staffed, err := f.dispatch.Get(f.ctx, b.Trips[0].ID)
	require.NoError(t, err)
	require.Len(t, staffed.Drivers, 2)
	require.Len(t, staffed.Vehicles, 2)
	ids := []int64{staffed.Drivers[0].DriverID, staffed.Drivers[1].DriverID}
	assert.ElementsMatch(t, []int64{high.ID, mid.ID}, ids)
	assert.NotContains(t, ids, low.ID)

	for _, row := range f.history(t, b.Trips[0].ID) {
		assert.Equal(t, models.MethodAuto, row.Method)
	}
	assert.Contains(t, f.sink.types(), notify.EventBookingCreated)
}

func TestCreateBookingAddsCoDrivers(t *testing.T) {
	f := newFixture(t)
	f.driver(1, 4)
	f.driver(1, 4)
	f.vehicle(f.bus)

	req := f.createRequest(line(f.bus, 1))
	req.AutoAssign = true
	req.CoDriversPerLeg = 1

	b, err := f.booking.CreateBooking(f.ctx, req, actor)
	require.NoError(t, err)
	staffed, err := f.dispatch.Get(f.ctx, b.Trips[0].ID)
	require.NoError(t, err)
	assert.Len(t, staffed.Drivers, 2)
	assert.Len(t, staffed.Vehicles, 1)
}

func TestCreateBookingTooFewDriversLeavesBookingWithoutTrips(t *testing.T) {
	f := newFixture(t)
	f.driver(1, 4)
	f.vehicle(f.bus)
	f.vehicle(f.bus)

	_, err := f.booking.CreateBooking(f.ctx, f.createRequest(line(f.bus, 2)), actor)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInsufficientDrivers, domain.BusinessCode(err))
	assert.Contains(t, err.Error(), "not enough available drivers")

	dangling, err := f.booking.ListUnstaffed(f.ctx, f.branch.ID)
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	assert.Equal(t, models.BookingPending, dangling[0].Status)

	trips, err := f.m.ListTripsByBooking(f.ctx, dangling[0].ID)
	require.NoError(t, err)
	assert.Empty(t, trips)
	assert.Contains(t, f.sink.types(), notify.EventResourceInsufficient)
}

func TestCreateBookingTooFewVehiclesPersistsNothing(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.driver(1, 4)
	}
	f.vehicle(f.bus)

	_, err := f.booking.CreateBooking(f.ctx, f.createRequest(line(f.bus, 2)), actor)
	assert.Equal(t, domain.CodeInsufficientVehicles, domain.BusinessCode(err))

	_, err = f.m.GetBooking(f.ctx, 1)
	assert.True(t, domain.IsNotFound(err))
	assert.Contains(t, f.sink.types(), notify.EventResourceInsufficient)
}

func TestCreateBookingRespectsEarlierReservation(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.driver(1, 4)
	}
	f.vehicle(f.bus)
	f.vehicle(f.bus)

	_, err := f.booking.CreateBooking(f.ctx, f.createRequest(line(f.bus, 2)), actor)
	require.NoError(t, err)

	req := f.createRequest(line(f.bus, 1))
	req.CustomerPhone = "0811000222"
	_, err = f.booking.CreateBooking(f.ctx, req, actor)
	assert.Equal(t, domain.CodeInsufficientVehicles, domain.BusinessCode(err))
}

func TestCreateBookingReusesDriverOnSequentialLegs(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	f.vehicle(f.bus)

	req := f.createRequest(line(f.bus, 1))
	req.AutoAssign = true
	req.Legs = append(req.Legs, LegRequest{
		StartLocation: "Airport", EndLocation: "Depot", StartTime: at(12), EndTime: at(16), DistanceKm: 100,
	})

	b, err := f.booking.CreateBooking(f.ctx, req, actor)
	require.NoError(t, err)
	require.Len(t, b.Trips, 2)
	assert.Equal(t, at(8), b.StartTime)
	assert.Equal(t, at(16), b.EndTime)
	for _, trip := range b.Trips {
		staffed, err := f.dispatch.Get(f.ctx, trip.ID)
		require.NoError(t, err)
		require.Len(t, staffed.Drivers, 1)
		assert.Equal(t, d.ID, staffed.Drivers[0].DriverID)
		assert.Len(t, staffed.Vehicles, 1)
	}
}

func TestCreateBookingOverlappingLegsNeedDistinctDrivers(t *testing.T) {
	f := newFixture(t)
	f.driver(1, 4)
	f.vehicle(f.bus)

	req := f.createRequest(line(f.bus, 1))
	req.Legs = append(req.Legs, LegRequest{StartTime: at(10), EndTime: at(14), DistanceKm: 10})

	_, err := f.booking.CreateBooking(f.ctx, req, actor)
	assert.Equal(t, domain.CodeInsufficientDrivers, domain.BusinessCode(err))
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	inactive := f.m.PutBranch(models.Branch{Name: "Closed", Active: false})

	cases := map[string]func(*CreateBookingRequest){
		"missing phone":     func(r *CreateBookingRequest) { r.CustomerPhone = " - " },
		"no lines":          func(r *CreateBookingRequest) { r.Lines = nil },
		"no legs":           func(r *CreateBookingRequest) { r.Legs = nil },
		"zero quantity":     func(r *CreateBookingRequest) { r.Lines[0].Quantity = 0 },
		"leg ends early":    func(r *CreateBookingRequest) { r.Legs[0].EndTime = r.Legs[0].StartTime },
		"negative codriver": func(r *CreateBookingRequest) { r.CoDriversPerLeg = -1 },
		"inactive branch":   func(r *CreateBookingRequest) { r.BranchID = inactive.ID },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.createRequest(line(f.bus, 1))
			mutate(&req)
			_, err := f.booking.CreateBooking(f.ctx, req, actor)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
	unstaffed, err := f.booking.ListUnstaffed(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unstaffed)
}

func TestCreateBookingMergesLinesAndReusesCustomer(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.driver(1, 4)
	}
	for i := 0; i < 4; i++ {
		f.vehicle(f.van)
	}

	first, err := f.booking.CreateBooking(f.ctx, f.createRequest(line(f.van, 1), line(f.van, 1)), actor)
	require.NoError(t, err)
	require.Len(t, first.Lines, 1)
	assert.Equal(t, 2, first.Lines[0].Quantity)

	next := f.createRequest(line(f.van, 1))
	next.Legs[0].StartTime, next.Legs[0].EndTime = at(20), at(22)
	second, err := f.booking.CreateBooking(f.ctx, next, actor)
	require.NoError(t, err)
	assert.Equal(t, first.CustomerID, second.CustomerID)

	customer, err := f.m.FindCustomerByPhone(f.ctx, "+6281234567890")
	require.NoError(t, err)
	assert.Equal(t, "Rina Wijaya", customer.Name)
}

func TestAutoAssignStaffsExistingBooking(t *testing.T) {
	f := newFixture(t)
	f.driver(1, 4)
	f.vehicle(f.bus)

	b, err := f.booking.CreateBooking(f.ctx, f.createRequest(line(f.bus, 1)), actor)
	require.NoError(t, err)
	require.Equal(t, models.TripScheduled, b.Trips[0].Status)

	b, err = f.booking.AutoAssign(f.ctx, b.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, models.TripAssigned, b.Trips[0].Status)

	// Nothing left to staff.
	again, err := f.booking.AutoAssign(f.ctx, b.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, models.TripAssigned, again.Trips[0].Status)
	assert.Len(t, f.history(t, b.Trips[0].ID), 1)
}

func TestCancelBookingCancelsTrips(t *testing.T) {
	f := newFixture(t)
	f.driver(1, 4)
	f.vehicle(f.bus)
	req := f.createRequest(line(f.bus, 1))
	req.AutoAssign = true

	b, err := f.booking.CreateBooking(f.ctx, req, actor)
	require.NoError(t, err)

	b, err = f.booking.CancelBooking(f.ctx, b.ID, "trip called off", actor)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)
	require.Len(t, b.Trips, 1)
	assert.Equal(t, models.TripCancelled, b.Trips[0].Status)
	assert.Contains(t, f.sink.types(), notify.EventBookingCancelled)

	_, err = f.booking.CancelBooking(f.ctx, b.ID, "again", actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	res, err := f.avail.Check(f.ctx, f.request(1, 8, 12))
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestAutoAssignGivesVehicleToWaitingDriver(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	f.driver(5, 5)
	v := f.vehicle(f.bus)

	b, err := f.booking.CreateBooking(f.ctx, f.createRequest(line(f.bus, 1)), actor)
	require.NoError(t, err)
	trip := b.Trips[0]
	out := f.assign(t, trip, d.ID, 0)
	require.Equal(t, models.TripScheduled, out.Trip.Status)

	_, err = f.booking.AutoAssign(f.ctx, b.ID, actor)
	require.NoError(t, err)

	got, err := f.dispatch.Get(f.ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripAssigned, got.Trip.Status)
	require.Len(t, got.Drivers, 1)
	assert.Equal(t, d.ID, got.Drivers[0].DriverID)
	require.Len(t, got.Vehicles, 1)
	assert.Equal(t, v.ID, got.Vehicles[0].VehicleID)

	rows := f.history(t, trip.ID)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1].NewDriverID)
	assert.Equal(t, v.ID, *rows[1].NewVehicleID)
}

func TestCreateBookingIgnoresVehicleWithLapsedInspection(t *testing.T) {
	f := newFixture(t)
	f.driver(1, 4)
	lapsed := monday.AddDate(0, -1, 0)
	f.m.PutVehicle(models.Vehicle{BranchID: f.branch.ID, CategoryID: f.bus.ID, Status: models.VehicleAvailable, InspectionExpiry: &lapsed})

	req := f.createRequest(line(f.bus, 1))
	req.AutoAssign = true
	_, err := f.booking.CreateBooking(f.ctx, req, actor)
	assert.Equal(t, domain.CodeInsufficientVehicles, domain.BusinessCode(err))
}
