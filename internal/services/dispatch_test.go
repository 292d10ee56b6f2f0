package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/notify"
	"charterops/internal/store"
)

const actor = int64(42)

func (f *fixture) assign(t *testing.T, trip models.Trip, driverID, vehicleID int64) TripAssignment {
	t.Helper()
	out, err := f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, DriverID: driverID, VehicleID: vehicleID, ActorID: actor})
	require.NoError(t, err)
	return out
}

func (f *fixture) history(t *testing.T, tripID int64) []models.TripAssignmentHistory {
	t.Helper()
	rows, err := f.dispatch.History(f.ctx, tripID)
	require.NoError(t, err)
	return rows
}

func TestAssignBothRolesMarksTripAssigned(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4.5)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))

	out := f.assign(t, trip, d.ID, v.ID)
	assert.Equal(t, models.TripAssigned, out.Trip.Status)
	require.Len(t, out.Drivers, 1)
	require.Len(t, out.Vehicles, 1)

	rows := f.history(t, trip.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ActionAssign, rows[0].Action)
	assert.Equal(t, models.MethodManual, rows[0].Method)
	assert.Equal(t, actor, rows[0].ActorID)
	assert.Equal(t, d.ID, *rows[0].NewDriverID)
	assert.Equal(t, v.ID, *rows[0].NewVehicleID)
	assert.Contains(t, f.sink.types(), notify.EventTripAssigned)
}

func TestAssignDriverOnlyStaysScheduled(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4.5)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))

	out := f.assign(t, trip, d.ID, 0)
	assert.Equal(t, models.TripScheduled, out.Trip.Status)
	assert.Nil(t, f.history(t, trip.ID)[0].NewVehicleID)
}

func TestAssignRejectsOverlappingDriver(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4.5)
	first := f.trip(t, at(8), at(12), line(f.bus, 1))
	second := f.trip(t, at(10), at(14), line(f.bus, 1))
	f.assign(t, first, d.ID, 0)

	_, err := f.dispatch.Assign(f.ctx, AssignRequest{TripID: second.ID, DriverID: d.ID, ActorID: actor})
	assert.Equal(t, domain.CodeDriverIneligible, domain.BusinessCode(err))
	assert.Empty(t, f.history(t, second.ID))
}

func TestAssignConcurrentSameDriverOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4.5)
	trips := []models.Trip{
		f.trip(t, at(8), at(12), line(f.bus, 1)),
		f.trip(t, at(9), at(13), line(f.bus, 1)),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(trips))
	for i, trip := range trips {
		wg.Add(1)
		go func(i int, tripID int64) {
			defer wg.Done()
			_, errs[i] = f.dispatch.Assign(f.ctx, AssignRequest{TripID: tripID, DriverID: d.ID, ActorID: actor})
		}(i, trip.ID)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		// Losing the pre-check is a rule failure; losing inside the tx is a conflict.
		assert.Contains(t, []string{"conflict", domain.CodeDriverIneligible}, outcomeCode(err), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)
}

// racingStore runs before once ahead of the first transaction, after the
// lock-free pre-checks have already passed.
type racingStore struct {
	store.Store
	once   sync.Once
	before func()
}

func (r *racingStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	r.once.Do(r.before)
	return r.Store.WithTx(ctx, fn)
}

func TestAssignLostRaceIsConflict(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4.5)
	mine := f.trip(t, at(8), at(12), line(f.bus, 1))
	theirs := f.trip(t, at(9), at(13), line(f.bus, 1))

	svc := f.dispatch
	svc.Store = &racingStore{Store: f.m, before: func() { f.assign(t, theirs, d.ID, 0) }}

	_, err := svc.Assign(f.ctx, AssignRequest{TripID: mine.ID, DriverID: d.ID, ActorID: actor})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.True(t, domain.IsBusiness(err))
	assert.Equal(t, "conflict", outcomeCode(err))
	assert.Empty(t, f.history(t, mine.ID))
	assert.Len(t, f.history(t, theirs.ID), 1)
}

func TestAssignRejectsDuplicatesAndWrongVehicles(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4.5)
	bus1 := f.vehicle(f.bus)
	bus2 := f.vehicle(f.bus)
	van := f.vehicle(f.van)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d.ID, bus1.ID)

	_, err := f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, DriverID: d.ID, ActorID: actor})
	assert.Equal(t, domain.CodeAlreadyAssigned, domain.BusinessCode(err))

	_, err = f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, VehicleID: van.ID, ActorID: actor})
	assert.Equal(t, domain.CodeVehicleIneligible, domain.BusinessCode(err))

	_, err = f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, VehicleID: bus2.ID, ActorID: actor})
	assert.Equal(t, domain.CodeVehicleIneligible, domain.BusinessCode(err), "quantity already filled")

	_, err = f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, ActorID: actor})
	assert.True(t, domain.IsValidation(err))

	assert.Len(t, f.history(t, trip.ID), 1)
}

func TestReassignWritesSingleRow(t *testing.T) {
	f := newFixture(t)
	d1 := f.driver(1, 4.5)
	d2 := f.driver(1, 4.0)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d1.ID, v.ID)

	out, err := f.dispatch.Reassign(f.ctx, ReassignRequest{TripID: trip.ID, NewDriverID: d2.ID, Reason: "sick", ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, models.TripAssigned, out.Trip.Status)
	require.Len(t, out.Drivers, 1)
	assert.Equal(t, d2.ID, out.Drivers[0].DriverID)

	rows := f.history(t, trip.ID)
	require.Len(t, rows, 2)
	last := rows[1]
	assert.Equal(t, models.ActionReassign, last.Action)
	assert.Equal(t, d1.ID, *last.OldDriverID)
	assert.Equal(t, d2.ID, *last.NewDriverID)
	assert.Nil(t, last.OldVehicleID)
	assert.Equal(t, "sick", last.Reason)
}

func TestReassignNeedsOldWhenSeveral(t *testing.T) {
	f := newFixture(t)
	d1, d2, d3 := f.driver(1, 4), f.driver(1, 4), f.driver(1, 4)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d1.ID, 0)
	f.assign(t, trip, d2.ID, 0)

	_, err := f.dispatch.Reassign(f.ctx, ReassignRequest{TripID: trip.ID, NewDriverID: d3.ID, ActorID: actor})
	assert.True(t, domain.IsValidation(err))

	_, err = f.dispatch.Reassign(f.ctx, ReassignRequest{TripID: trip.ID, OldDriverID: d2.ID, NewDriverID: d3.ID, ActorID: actor})
	require.NoError(t, err)
}

func TestReassignVehicleKeepsQuantity(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	bus1, bus2 := f.vehicle(f.bus), f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d.ID, bus1.ID)

	out, err := f.dispatch.Reassign(f.ctx, ReassignRequest{TripID: trip.ID, NewVehicleID: bus2.ID, Reason: "flat tyre", ActorID: actor})
	require.NoError(t, err)
	require.Len(t, out.Vehicles, 1)
	assert.Equal(t, bus2.ID, out.Vehicles[0].VehicleID)
}

func TestUnassignReturnsTripToScheduled(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d.ID, v.ID)

	out, err := f.dispatch.Unassign(f.ctx, UnassignRequest{TripID: trip.ID, VehicleID: v.ID, Reason: "swap", ActorID: actor})
	require.NoError(t, err)
	assert.Equal(t, models.TripScheduled, out.Trip.Status)
	assert.Empty(t, out.Vehicles)

	rows := f.history(t, trip.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ActionUnassign, rows[1].Action)
	assert.Equal(t, v.ID, *rows[1].OldVehicleID)

	_, err = f.dispatch.Unassign(f.ctx, UnassignRequest{TripID: trip.ID, VehicleID: v.ID, ActorID: actor})
	assert.True(t, domain.IsNotFound(err))
	assert.Len(t, f.history(t, trip.ID), 2)
}

func TestCancelTripFreesResources(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d.ID, v.ID)

	out, err := f.dispatch.Cancel(f.ctx, trip.ID, "customer called", actor)
	require.NoError(t, err)
	assert.Equal(t, models.TripCancelled, out.Trip.Status)
	assert.Empty(t, out.Drivers)
	assert.Empty(t, out.Vehicles)

	rows := f.history(t, trip.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ActionCancel, rows[1].Action)
	assert.Equal(t, "customer called", rows[1].Reason)
	require.NotNil(t, rows[1].OldDriverID)
	require.NotNil(t, rows[1].OldVehicleID)
	assert.Equal(t, d.ID, *rows[1].OldDriverID)
	assert.Equal(t, v.ID, *rows[1].OldVehicleID)

	_, err = f.dispatch.Cancel(f.ctx, trip.ID, "again", actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))
	_, err = f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, DriverID: d.ID, ActorID: actor})
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	other := f.trip(t, at(9), at(11), line(f.bus, 1))
	f.assign(t, other, d.ID, v.ID)
}

func TestCancelListsEveryReleasedResource(t *testing.T) {
	f := newFixture(t)
	d1, d2 := f.driver(1, 4), f.driver(1, 4)
	v1, v2 := f.vehicle(f.bus), f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 2))
	f.assign(t, trip, d1.ID, v1.ID)
	f.assign(t, trip, d2.ID, v2.ID)

	_, err := f.dispatch.Cancel(f.ctx, trip.ID, "weather", actor)
	require.NoError(t, err)

	rows := f.history(t, trip.ID)
	last := rows[len(rows)-1]
	assert.Equal(t, models.ActionCancel, last.Action)
	assert.Nil(t, last.OldDriverID)
	assert.Nil(t, last.OldVehicleID)
	assert.Equal(t, fmt.Sprintf("weather (released drivers %d,%d; vehicles %d,%d)", d1.ID, d2.ID, v1.ID, v2.ID), last.Reason)
}

func TestAcceptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	stranger := f.driver(1, 4)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))
	f.assign(t, trip, d.ID, 0)

	out, err := f.dispatch.Accept(f.ctx, trip.ID, d.ID, d.ID)
	require.NoError(t, err)
	require.NotNil(t, out.Drivers[0].AcceptedAt)

	_, err = f.dispatch.Accept(f.ctx, trip.ID, d.ID, d.ID)
	require.NoError(t, err)
	rows := f.history(t, trip.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, models.ActionAccept, rows[1].Action)

	_, err = f.dispatch.Accept(f.ctx, trip.ID, stranger.ID, stranger.ID)
	assert.True(t, domain.IsNotFound(err))
}

func TestStartAndCompleteLifecycle(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))

	_, err := f.dispatch.Start(f.ctx, trip.ID, actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	f.assign(t, trip, d.ID, v.ID)
	out, err := f.dispatch.Start(f.ctx, trip.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, models.TripOngoing, out.Trip.Status)

	gotDriver, err := f.m.GetDriver(f.ctx, d.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.DriverOnTrip, gotDriver.Status)
	gotVehicle, err := f.m.GetVehicle(f.ctx, v.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleInUse, gotVehicle.Status)

	_, err = f.dispatch.Unassign(f.ctx, UnassignRequest{TripID: trip.ID, DriverID: d.ID, ActorID: actor})
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	out, err = f.dispatch.Complete(f.ctx, trip.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, models.TripCompleted, out.Trip.Status)

	gotDriver, _ = f.m.GetDriver(f.ctx, d.ID, false)
	gotVehicle, _ = f.m.GetVehicle(f.ctx, v.ID, false)
	assert.Equal(t, models.DriverAvailable, gotDriver.Status)
	assert.Equal(t, models.VehicleAvailable, gotVehicle.Status)

	b, err := f.m.GetBooking(f.ctx, trip.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, b.Status)
}

func TestLifecycleRejectsOutOfOrderMoves(t *testing.T) {
	f := newFixture(t)
	d := f.driver(1, 4)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))

	_, err := f.dispatch.Complete(f.ctx, trip.ID, actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	f.assign(t, trip, d.ID, v.ID)
	_, err = f.dispatch.Complete(f.ctx, trip.ID, actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	_, err = f.dispatch.Start(f.ctx, trip.ID, actor)
	require.NoError(t, err)
	_, err = f.dispatch.Start(f.ctx, trip.ID, actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	_, err = f.dispatch.Complete(f.ctx, trip.ID, actor)
	require.NoError(t, err)
	_, err = f.dispatch.Cancel(f.ctx, trip.ID, "late", actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))
	_, err = f.dispatch.Start(f.ctx, trip.ID, actor)
	assert.Equal(t, domain.CodeInvalidTransition, domain.BusinessCode(err))

	got, err := f.m.GetTrip(f.ctx, trip.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.TripCompleted, got.Status)
}

func TestEveryMutationLeavesOneAuditRow(t *testing.T) {
	f := newFixture(t)
	d1, d2 := f.driver(1, 4), f.driver(1, 4)
	v := f.vehicle(f.bus)
	trip := f.trip(t, at(8), at(12), line(f.bus, 1))

	steps := []func() error{
		func() error { _, err := f.dispatch.Assign(f.ctx, AssignRequest{TripID: trip.ID, DriverID: d1.ID, VehicleID: v.ID, ActorID: actor}); return err },
		func() error { _, err := f.dispatch.Reassign(f.ctx, ReassignRequest{TripID: trip.ID, NewDriverID: d2.ID, ActorID: actor}); return err },
		func() error { _, err := f.dispatch.Unassign(f.ctx, UnassignRequest{TripID: trip.ID, DriverID: d2.ID, ActorID: actor}); return err },
		func() error { _, err := f.dispatch.Cancel(f.ctx, trip.ID, "done", actor); return err },
	}
	for i, step := range steps {
		require.NoError(t, step())
		rows := f.history(t, trip.ID)
		require.Len(t, rows, i+1)
		assert.NotEmpty(t, rows[i].Action)
		assert.Equal(t, actor, rows[i].ActorID)
	}
}
