package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/metrics"
	"charterops/internal/notify"
	"charterops/internal/store"
	"charterops/internal/utils"
)

// DispatchService attaches drivers and vehicles to trips. Every mutation
// runs in one transaction and writes exactly one history row.
type DispatchService struct {
	Store    store.Store
	Notifier notify.Notifier
	Now      func() time.Time
}

type AssignRequest struct {
	TripID    int64                   `json:"-"`
	DriverID  int64                   `json:"driver_id"`
	VehicleID int64                   `json:"vehicle_id"`
	ActorID   int64                   `json:"-"`
	Method    models.AssignmentMethod `json:"method"`
	Note      string                  `json:"note"`
}

type ReassignRequest struct {
	TripID       int64  `json:"-"`
	OldDriverID  int64  `json:"old_driver_id"`
	NewDriverID  int64  `json:"new_driver_id"`
	OldVehicleID int64  `json:"old_vehicle_id"`
	NewVehicleID int64  `json:"new_vehicle_id"`
	Reason       string `json:"reason"`
	ActorID      int64  `json:"-"`
}

type UnassignRequest struct {
	TripID    int64  `json:"-"`
	DriverID  int64  `json:"driver_id"`
	VehicleID int64  `json:"vehicle_id"`
	Reason    string `json:"reason"`
	ActorID   int64  `json:"-"`
}

// TripAssignment is a trip with its current join rows.
type TripAssignment struct {
	Trip     models.Trip          `json:"trip"`
	Drivers  []models.TripDriver  `json:"drivers"`
	Vehicles []models.TripVehicle `json:"vehicles"`
}

func (s DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return utils.NowUTC()
}

func (s DispatchService) Get(ctx context.Context, tripID int64) (TripAssignment, error) {
	return loadAssignment(ctx, s.Store, tripID)
}

func (s DispatchService) History(ctx context.Context, tripID int64) ([]models.TripAssignmentHistory, error) {
	if _, err := s.Store.GetTrip(ctx, tripID, false); err != nil {
		return nil, err
	}
	return s.Store.ListHistory(ctx, tripID)
}

// Assign

func (s DispatchService) Assign(ctx context.Context, req AssignRequest) (out TripAssignment, err error) {
	if req.Method == "" {
		req.Method = models.MethodManual
	}
	defer func() { s.record(models.ActionAssign, req.Method, err) }()

	if err := validateAssign(req); err != nil {
		return TripAssignment{}, err
	}
	// Cheap pre-check without row locks so obvious rejections skip the tx.
	if _, err := s.checkAssign(ctx, s.Store, req, false); err != nil {
		return TripAssignment{}, err
	}

	var plan assignPlan
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		p, err := s.assignTx(ctx, tx, req)
		if err != nil {
			return raced(err)
		}
		plan = p
		out, err = loadAssignment(ctx, tx, req.TripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}

	utils.LogEvent(ctx, "dispatch", "assign", fmt.Sprintf("trip=%d driver=%d vehicle=%d method=%s", req.TripID, req.DriverID, req.VehicleID, req.Method))
	s.emit(ctx, notify.EventTripAssigned, out.Trip, plan.booking.BranchID, "trip assigned", map[string]any{
		"driver_id": req.DriverID, "vehicle_id": req.VehicleID, "method": string(req.Method),
	})
	return out, nil
}

func validateAssign(req AssignRequest) error {
	switch {
	case req.TripID <= 0:
		return domain.ValidationError{Field: "trip_id", Msg: "required"}
	case req.DriverID <= 0 && req.VehicleID <= 0:
		return domain.ValidationError{Field: "driver_id", Msg: "driver_id or vehicle_id required"}
	case req.Method != models.MethodManual && req.Method != models.MethodAuto:
		return domain.ValidationError{Field: "method", Msg: "must be AUTO or MANUAL"}
	}
	return nil
}

type assignPlan struct {
	trip     models.Trip
	booking  models.Booking
	drivers  []models.TripDriver
	vehicles []models.TripVehicle
}

// loadPlan reads the trip and its current rows; the trip must still accept
// assignment changes.
func loadPlan(ctx context.Context, st store.Store, tripID int64, forUpdate bool) (assignPlan, error) {
	trip, err := st.GetTrip(ctx, tripID, forUpdate)
	if err != nil {
		return assignPlan{}, err
	}
	if !trip.Status.Mutable() {
		return assignPlan{}, domain.BusinessError{
			Code:    domain.CodeInvalidTransition,
			Reason:  fmt.Sprintf("trip is %s", trip.Status),
			Details: map[string]any{"trip_id": trip.ID, "status": string(trip.Status)},
		}
	}
	booking, err := st.GetBooking(ctx, trip.BookingID)
	if err != nil {
		return assignPlan{}, err
	}
	drivers, err := st.ListTripDrivers(ctx, trip.ID)
	if err != nil {
		return assignPlan{}, err
	}
	vehicles, err := st.ListTripVehicles(ctx, trip.ID)
	if err != nil {
		return assignPlan{}, err
	}
	return assignPlan{trip: trip, booking: booking, drivers: drivers, vehicles: vehicles}, nil
}

func (p assignPlan) hasDriver(id int64) bool {
	for _, d := range p.drivers {
		if d.DriverID == id {
			return true
		}
	}
	return false
}

func (p assignPlan) hasVehicle(id int64) bool {
	for _, v := range p.vehicles {
		if v.VehicleID == id {
			return true
		}
	}
	return false
}

func (s DispatchService) checkAssign(ctx context.Context, st store.Store, req AssignRequest, forUpdate bool) (assignPlan, error) {
	plan, err := loadPlan(ctx, st, req.TripID, forUpdate)
	if err != nil {
		return assignPlan{}, err
	}
	if req.DriverID > 0 {
		if plan.hasDriver(req.DriverID) {
			return assignPlan{}, alreadyAssigned("driver", req.DriverID, plan.trip.ID)
		}
		if err := checkDriver(ctx, st, req.DriverID, plan.trip, forUpdate); err != nil {
			return assignPlan{}, err
		}
	}
	if req.VehicleID > 0 {
		if plan.hasVehicle(req.VehicleID) {
			return assignPlan{}, alreadyAssigned("vehicle", req.VehicleID, plan.trip.ID)
		}
		if err := checkVehicle(ctx, st, req.VehicleID, plan, 0, forUpdate); err != nil {
			return assignPlan{}, err
		}
	}
	return plan, nil
}

// assignTx re-validates under row locks and writes the join rows, one
// history row, and the recomputed trip status.
func (s DispatchService) assignTx(ctx context.Context, tx store.Store, req AssignRequest) (assignPlan, error) {
	plan, err := s.checkAssign(ctx, tx, req, true)
	if err != nil {
		return assignPlan{}, err
	}
	now := s.now()
	if req.DriverID > 0 {
		if err := tx.AddTripDriver(ctx, models.TripDriver{TripID: plan.trip.ID, DriverID: req.DriverID, AssignedAt: now, Note: req.Note}); err != nil {
			return assignPlan{}, err
		}
	}
	if req.VehicleID > 0 {
		if err := tx.AddTripVehicle(ctx, models.TripVehicle{TripID: plan.trip.ID, VehicleID: req.VehicleID, AssignedAt: now, Note: req.Note}); err != nil {
			return assignPlan{}, err
		}
	}
	err = tx.AppendHistory(ctx, &models.TripAssignmentHistory{
		TripID:       plan.trip.ID,
		NewDriverID:  models.Int64Ptr(req.DriverID),
		NewVehicleID: models.Int64Ptr(req.VehicleID),
		Action:       models.ActionAssign,
		Method:       req.Method,
		ActorID:      req.ActorID,
		Reason:       req.Note,
		CreatedAt:    now,
	})
	if err != nil {
		return assignPlan{}, err
	}
	if plan.trip, err = syncStatus(ctx, tx, plan.trip); err != nil {
		return assignPlan{}, err
	}
	return plan, nil
}

func checkDriver(ctx context.Context, st store.Store, driverID int64, trip models.Trip, forUpdate bool) error {
	d, err := st.GetDriver(ctx, driverID, forUpdate)
	if err != nil {
		return err
	}
	ok, reason, err := driverEligibility(ctx, st, d, trip)
	if err != nil {
		return err
	}
	if !ok {
		return domain.BusinessError{
			Code:    domain.CodeDriverIneligible,
			Reason:  reason,
			Details: map[string]any{"driver_id": driverID, "trip_id": trip.ID},
		}
	}
	return nil
}

// checkVehicle validates vehicleID for the plan's trip. replacing is a
// vehicle about to leave the trip and is not counted against the quantity.
func checkVehicle(ctx context.Context, st store.Store, vehicleID int64, plan assignPlan, replacing int64, forUpdate bool) error {
	v, err := st.GetVehicle(ctx, vehicleID, forUpdate)
	if err != nil {
		return err
	}
	ok, reason, err := vehicleEligibility(ctx, st, v, plan.trip, bookingCategories(plan.booking))
	if err != nil {
		return err
	}
	if ok {
		attached := 0
		for _, tv := range plan.vehicles {
			if tv.VehicleID == replacing {
				continue
			}
			other, err := st.GetVehicle(ctx, tv.VehicleID, false)
			if err != nil {
				return err
			}
			if other.CategoryID == v.CategoryID {
				attached++
			}
		}
		if attached >= plan.booking.QuantityFor(v.CategoryID) {
			ok, reason = false, "booking quantity for category already filled"
		}
	}
	if !ok {
		return domain.BusinessError{
			Code:    domain.CodeVehicleIneligible,
			Reason:  reason,
			Details: map[string]any{"vehicle_id": vehicleID, "trip_id": plan.trip.ID},
		}
	}
	return nil
}

func alreadyAssigned(kind string, id, tripID int64) error {
	return domain.BusinessError{
		Code:    domain.CodeAlreadyAssigned,
		Reason:  fmt.Sprintf("%s %d already on trip %d", kind, id, tripID),
		Details: map[string]any{kind + "_id": id, "trip_id": tripID},
	}
}

// raced turns a rule failure seen only under row locks into a retryable
// conflict: the unlocked pre-check passed, so another writer got there first.
func raced(err error) error {
	if domain.IsBusiness(err) || domain.IsValidation(err) {
		return domain.ConflictError{Resource: "trip", Msg: "assignment changed concurrently, retry", Err: err}
	}
	return err
}

// syncStatus moves a mutable trip between SCHEDULED and ASSIGNED: ASSIGNED
// once it has at least one driver and one vehicle.
func syncStatus(ctx context.Context, st store.Store, trip models.Trip) (models.Trip, error) {
	if !trip.Status.Mutable() {
		return trip, nil
	}
	drivers, err := st.ListTripDrivers(ctx, trip.ID)
	if err != nil {
		return trip, err
	}
	vehicles, err := st.ListTripVehicles(ctx, trip.ID)
	if err != nil {
		return trip, err
	}
	target := models.TripScheduled
	if len(drivers) > 0 && len(vehicles) > 0 {
		target = models.TripAssigned
	}
	if target == trip.Status {
		return trip, nil
	}
	return moveTrip(ctx, st, trip, target)
}

// checkTransition rejects a trip status change the state machine does not
// allow, including a repeat of the current status.
func checkTransition(trip models.Trip, to models.TripStatus) error {
	if trip.Status == to || !models.CanTransition(trip.Status, to) {
		return transitionError(trip, to)
	}
	return nil
}

// moveTrip is the only writer of trip status.
func moveTrip(ctx context.Context, st store.Store, trip models.Trip, to models.TripStatus) (models.Trip, error) {
	if err := checkTransition(trip, to); err != nil {
		return trip, err
	}
	if err := st.UpdateTripStatus(ctx, trip.ID, to); err != nil {
		return trip, err
	}
	trip.Status = to
	return trip, nil
}

// Reassign

func (s DispatchService) Reassign(ctx context.Context, req ReassignRequest) (out TripAssignment, err error) {
	defer func() { s.record(models.ActionReassign, models.MethodManual, err) }()

	if req.TripID <= 0 {
		return TripAssignment{}, domain.ValidationError{Field: "trip_id", Msg: "required"}
	}
	if req.NewDriverID <= 0 && req.NewVehicleID <= 0 {
		return TripAssignment{}, domain.ValidationError{Field: "new_driver_id", Msg: "new_driver_id or new_vehicle_id required"}
	}
	if _, err := s.checkReassign(ctx, s.Store, req, false); err != nil {
		return TripAssignment{}, err
	}

	var resolved ReassignRequest
	var branchID int64
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		r, err := s.checkReassign(ctx, tx, req, true)
		if err != nil {
			return raced(err)
		}
		resolved, branchID = r.req, r.plan.booking.BranchID
		now := s.now()
		if r.req.NewDriverID > 0 {
			if err := tx.RemoveTripDriver(ctx, req.TripID, r.req.OldDriverID); err != nil {
				return err
			}
			if err := tx.AddTripDriver(ctx, models.TripDriver{TripID: req.TripID, DriverID: r.req.NewDriverID, AssignedAt: now, Note: req.Reason}); err != nil {
				return err
			}
		}
		if r.req.NewVehicleID > 0 {
			if err := tx.RemoveTripVehicle(ctx, req.TripID, r.req.OldVehicleID); err != nil {
				return err
			}
			if err := tx.AddTripVehicle(ctx, models.TripVehicle{TripID: req.TripID, VehicleID: r.req.NewVehicleID, AssignedAt: now, Note: req.Reason}); err != nil {
				return err
			}
		}
		err = tx.AppendHistory(ctx, &models.TripAssignmentHistory{
			TripID:       req.TripID,
			OldDriverID:  models.Int64Ptr(r.req.OldDriverID),
			NewDriverID:  models.Int64Ptr(r.req.NewDriverID),
			OldVehicleID: models.Int64Ptr(r.req.OldVehicleID),
			NewVehicleID: models.Int64Ptr(r.req.NewVehicleID),
			Action:       models.ActionReassign,
			Method:       models.MethodManual,
			ActorID:      req.ActorID,
			Reason:       req.Reason,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if _, err := syncStatus(ctx, tx, r.plan.trip); err != nil {
			return err
		}
		out, err = loadAssignment(ctx, tx, req.TripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}

	utils.LogEvent(ctx, "dispatch", "reassign", fmt.Sprintf("trip=%d driver=%d->%d vehicle=%d->%d",
		req.TripID, resolved.OldDriverID, resolved.NewDriverID, resolved.OldVehicleID, resolved.NewVehicleID))
	s.emit(ctx, notify.EventTripReassigned, out.Trip, branchID, "trip reassigned", map[string]any{
		"old_driver_id": resolved.OldDriverID, "new_driver_id": resolved.NewDriverID,
		"old_vehicle_id": resolved.OldVehicleID, "new_vehicle_id": resolved.NewVehicleID,
		"reason": req.Reason,
	})
	return out, nil
}

type reassignPlan struct {
	plan assignPlan
	req  ReassignRequest // old ids resolved
}

func (s DispatchService) checkReassign(ctx context.Context, st store.Store, req ReassignRequest, forUpdate bool) (reassignPlan, error) {
	plan, err := loadPlan(ctx, st, req.TripID, forUpdate)
	if err != nil {
		return reassignPlan{}, err
	}
	if req.NewDriverID > 0 {
		ids := make([]int64, len(plan.drivers))
		for i, d := range plan.drivers {
			ids[i] = d.DriverID
		}
		if req.OldDriverID, err = resolveOld("old_driver_id", req.OldDriverID, ids); err != nil {
			return reassignPlan{}, err
		}
		if req.NewDriverID == req.OldDriverID {
			return reassignPlan{}, domain.ValidationError{Field: "new_driver_id", Msg: "must differ from old_driver_id"}
		}
		if plan.hasDriver(req.NewDriverID) {
			return reassignPlan{}, alreadyAssigned("driver", req.NewDriverID, plan.trip.ID)
		}
		if err := checkDriver(ctx, st, req.NewDriverID, plan.trip, forUpdate); err != nil {
			return reassignPlan{}, err
		}
	}
	if req.NewVehicleID > 0 {
		ids := make([]int64, len(plan.vehicles))
		for i, v := range plan.vehicles {
			ids[i] = v.VehicleID
		}
		if req.OldVehicleID, err = resolveOld("old_vehicle_id", req.OldVehicleID, ids); err != nil {
			return reassignPlan{}, err
		}
		if req.NewVehicleID == req.OldVehicleID {
			return reassignPlan{}, domain.ValidationError{Field: "new_vehicle_id", Msg: "must differ from old_vehicle_id"}
		}
		if plan.hasVehicle(req.NewVehicleID) {
			return reassignPlan{}, alreadyAssigned("vehicle", req.NewVehicleID, plan.trip.ID)
		}
		if err := checkVehicle(ctx, st, req.NewVehicleID, plan, req.OldVehicleID, forUpdate); err != nil {
			return reassignPlan{}, err
		}
	}
	return reassignPlan{plan: plan, req: req}, nil
}

// resolveOld defaults the replaced id to the single active one.
func resolveOld(field string, old int64, active []int64) (int64, error) {
	if old > 0 {
		for _, id := range active {
			if id == old {
				return old, nil
			}
		}
		return 0, domain.ValidationError{Field: field, Msg: "not assigned to this trip"}
	}
	switch len(active) {
	case 0:
		return 0, domain.ValidationError{Field: field, Msg: "trip has nothing to replace"}
	case 1:
		return active[0], nil
	default:
		return 0, domain.ValidationError{Field: field, Msg: "required when the trip has several"}
	}
}

// Unassign

func (s DispatchService) Unassign(ctx context.Context, req UnassignRequest) (out TripAssignment, err error) {
	defer func() { s.record(models.ActionUnassign, models.MethodManual, err) }()

	if req.TripID <= 0 {
		return TripAssignment{}, domain.ValidationError{Field: "trip_id", Msg: "required"}
	}
	if req.DriverID <= 0 && req.VehicleID <= 0 {
		return TripAssignment{}, domain.ValidationError{Field: "driver_id", Msg: "driver_id or vehicle_id required"}
	}

	var branchID int64
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		plan, err := loadPlan(ctx, tx, req.TripID, true)
		if err != nil {
			return err
		}
		branchID = plan.booking.BranchID
		if req.DriverID > 0 {
			if err := tx.RemoveTripDriver(ctx, req.TripID, req.DriverID); err != nil {
				return err
			}
		}
		if req.VehicleID > 0 {
			if err := tx.RemoveTripVehicle(ctx, req.TripID, req.VehicleID); err != nil {
				return err
			}
		}
		err = tx.AppendHistory(ctx, &models.TripAssignmentHistory{
			TripID:       req.TripID,
			OldDriverID:  models.Int64Ptr(req.DriverID),
			OldVehicleID: models.Int64Ptr(req.VehicleID),
			Action:       models.ActionUnassign,
			Method:       models.MethodManual,
			ActorID:      req.ActorID,
			Reason:       req.Reason,
			CreatedAt:    s.now(),
		})
		if err != nil {
			return err
		}
		if _, err := syncStatus(ctx, tx, plan.trip); err != nil {
			return err
		}
		out, err = loadAssignment(ctx, tx, req.TripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}

	utils.LogEvent(ctx, "dispatch", "unassign", fmt.Sprintf("trip=%d driver=%d vehicle=%d", req.TripID, req.DriverID, req.VehicleID))
	s.emit(ctx, notify.EventTripUnassigned, out.Trip, branchID, "trip unassigned", map[string]any{
		"driver_id": req.DriverID, "vehicle_id": req.VehicleID, "reason": req.Reason,
	})
	return out, nil
}

// Cancel

func (s DispatchService) Cancel(ctx context.Context, tripID int64, reason string, actorID int64) (out TripAssignment, err error) {
	defer func() { s.record(models.ActionCancel, models.MethodManual, err) }()

	var branchID int64
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		b, err := s.cancelTx(ctx, tx, tripID, reason, actorID)
		if err != nil {
			return err
		}
		branchID = b.BranchID
		out, err = loadAssignment(ctx, tx, tripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}

	utils.LogEvent(ctx, "dispatch", "cancel", fmt.Sprintf("trip=%d reason=%q", tripID, reason))
	s.emit(ctx, notify.EventTripCancelled, out.Trip, branchID, "trip cancelled", map[string]any{"reason": reason})
	return out, nil
}

// cancelTx cancels one trip inside tx and drops its join rows. An ONGOING
// trip hands its resources back first.
func (s DispatchService) cancelTx(ctx context.Context, tx store.Store, tripID int64, reason string, actorID int64) (models.Booking, error) {
	trip, err := tx.GetTrip(ctx, tripID, true)
	if err != nil {
		return models.Booking{}, err
	}
	if err := checkTransition(trip, models.TripCancelled); err != nil {
		return models.Booking{}, err
	}
	booking, err := tx.GetBooking(ctx, trip.BookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if trip.Status == models.TripOngoing {
		if err := setResourceStatus(ctx, tx, trip.ID, models.DriverAvailable, models.VehicleAvailable); err != nil {
			return models.Booking{}, err
		}
	}
	drivers, vehicles, err := releaseRows(ctx, tx, trip.ID)
	if err != nil {
		return models.Booking{}, err
	}
	if _, err := moveTrip(ctx, tx, trip, models.TripCancelled); err != nil {
		return models.Booking{}, err
	}
	row := &models.TripAssignmentHistory{
		TripID:    trip.ID,
		Action:    models.ActionCancel,
		Method:    models.MethodManual,
		ActorID:   actorID,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if len(drivers) == 1 {
		row.OldDriverID = &drivers[0]
	}
	if len(vehicles) == 1 {
		row.OldVehicleID = &vehicles[0]
	}
	if len(drivers) > 1 || len(vehicles) > 1 {
		row.Reason = strings.TrimSpace(fmt.Sprintf("%s (released drivers %s; vehicles %s)", reason, joinIDs(drivers), joinIDs(vehicles)))
	}
	return booking, tx.AppendHistory(ctx, row)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// releaseRows drops every join row of the trip and returns the driver and
// vehicle ids it released.
func releaseRows(ctx context.Context, tx store.Store, tripID int64) (drivers, vehicles []int64, err error) {
	tds, err := tx.ListTripDrivers(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range tds {
		if err := tx.RemoveTripDriver(ctx, tripID, d.DriverID); err != nil {
			return nil, nil, err
		}
		drivers = append(drivers, d.DriverID)
	}
	tvs, err := tx.ListTripVehicles(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	for _, v := range tvs {
		if err := tx.RemoveTripVehicle(ctx, tripID, v.VehicleID); err != nil {
			return nil, nil, err
		}
		vehicles = append(vehicles, v.VehicleID)
	}
	return drivers, vehicles, nil
}

// Accept

func (s DispatchService) Accept(ctx context.Context, tripID, driverID, actorID int64) (out TripAssignment, err error) {
	defer func() { s.record(models.ActionAccept, models.MethodManual, err) }()

	if driverID <= 0 {
		return TripAssignment{}, domain.ValidationError{Field: "driver_id", Msg: "required"}
	}
	accepted := false
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		trip, err := tx.GetTrip(ctx, tripID, true)
		if err != nil {
			return err
		}
		if trip.Status.Terminal() {
			return domain.BusinessError{
				Code:    domain.CodeInvalidTransition,
				Reason:  fmt.Sprintf("trip is %s", trip.Status),
				Details: map[string]any{"trip_id": trip.ID, "status": string(trip.Status)},
			}
		}
		drivers, err := tx.ListTripDrivers(ctx, tripID)
		if err != nil {
			return err
		}
		var row *models.TripDriver
		for i := range drivers {
			if drivers[i].DriverID == driverID {
				row = &drivers[i]
			}
		}
		if row == nil {
			return domain.NotFoundError{Resource: "trip_driver"}
		}
		if row.AcceptedAt == nil {
			now := s.now()
			if err := tx.SetDriverAccepted(ctx, tripID, driverID, now); err != nil {
				return err
			}
			err = tx.AppendHistory(ctx, &models.TripAssignmentHistory{
				TripID:      tripID,
				NewDriverID: models.Int64Ptr(driverID),
				Action:      models.ActionAccept,
				Method:      models.MethodManual,
				ActorID:     actorID,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			accepted = true
		}
		out, err = loadAssignment(ctx, tx, tripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}
	if accepted {
		utils.LogEvent(ctx, "dispatch", "accept", fmt.Sprintf("trip=%d driver=%d", tripID, driverID))
	}
	return out, nil
}

// Start and Complete

func (s DispatchService) Start(ctx context.Context, tripID, actorID int64) (TripAssignment, error) {
	var out TripAssignment
	err := s.Store.WithTx(ctx, func(tx store.Store) error {
		trip, err := tx.GetTrip(ctx, tripID, true)
		if err != nil {
			return err
		}
		if err := checkTransition(trip, models.TripOngoing); err != nil {
			return err
		}
		if err := setResourceStatus(ctx, tx, tripID, models.DriverOnTrip, models.VehicleInUse); err != nil {
			return err
		}
		if _, err := moveTrip(ctx, tx, trip, models.TripOngoing); err != nil {
			return err
		}
		out, err = loadAssignment(ctx, tx, tripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}
	utils.LogEvent(ctx, "dispatch", "start", fmt.Sprintf("trip=%d actor=%d", tripID, actorID))
	return out, nil
}

// Complete finishes an ONGOING trip and settles the booking once every
// trip of it is terminal.
func (s DispatchService) Complete(ctx context.Context, tripID, actorID int64) (TripAssignment, error) {
	var out TripAssignment
	err := s.Store.WithTx(ctx, func(tx store.Store) error {
		trip, err := tx.GetTrip(ctx, tripID, true)
		if err != nil {
			return err
		}
		if err := checkTransition(trip, models.TripCompleted); err != nil {
			return err
		}
		if err := setResourceStatus(ctx, tx, tripID, models.DriverAvailable, models.VehicleAvailable); err != nil {
			return err
		}
		if _, err := moveTrip(ctx, tx, trip, models.TripCompleted); err != nil {
			return err
		}
		if err := settleBooking(ctx, tx, trip.BookingID); err != nil {
			return err
		}
		out, err = loadAssignment(ctx, tx, tripID)
		return err
	})
	if err != nil {
		return TripAssignment{}, err
	}
	utils.LogEvent(ctx, "dispatch", "complete", fmt.Sprintf("trip=%d actor=%d", tripID, actorID))
	return out, nil
}

func transitionError(trip models.Trip, to models.TripStatus) error {
	return domain.BusinessError{
		Code:    domain.CodeInvalidTransition,
		Reason:  fmt.Sprintf("cannot move trip from %s to %s", trip.Status, to),
		Details: map[string]any{"trip_id": trip.ID, "status": string(trip.Status)},
	}
}

func setResourceStatus(ctx context.Context, tx store.Store, tripID int64, ds models.DriverStatus, vs models.VehicleStatus) error {
	drivers, err := tx.ListTripDrivers(ctx, tripID)
	if err != nil {
		return err
	}
	for _, d := range drivers {
		if err := tx.UpdateDriverStatus(ctx, d.DriverID, ds); err != nil {
			return err
		}
	}
	vehicles, err := tx.ListTripVehicles(ctx, tripID)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		if err := tx.UpdateVehicleStatus(ctx, v.VehicleID, vs); err != nil {
			return err
		}
	}
	return nil
}

func settleBooking(ctx context.Context, tx store.Store, bookingID int64) error {
	b, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if !b.Status.Holds() {
		return nil
	}
	trips, err := tx.ListTripsByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	for _, t := range trips {
		if !t.Status.Terminal() {
			return nil
		}
	}
	return tx.UpdateBookingStatus(ctx, bookingID, models.BookingCompleted)
}

func loadAssignment(ctx context.Context, st store.Store, tripID int64) (TripAssignment, error) {
	trip, err := st.GetTrip(ctx, tripID, false)
	if err != nil {
		return TripAssignment{}, err
	}
	drivers, err := st.ListTripDrivers(ctx, tripID)
	if err != nil {
		return TripAssignment{}, err
	}
	vehicles, err := st.ListTripVehicles(ctx, tripID)
	if err != nil {
		return TripAssignment{}, err
	}
	return TripAssignment{Trip: trip, Drivers: drivers, Vehicles: vehicles}, nil
}

func (s DispatchService) emit(ctx context.Context, typ string, trip models.Trip, branchID int64, msg string, details map[string]any) {
	if s.Notifier == nil {
		return
	}
	_ = s.Notifier.Notify(ctx, notify.Event{
		Type:      typ,
		BranchID:  branchID,
		BookingID: trip.BookingID,
		TripID:    trip.ID,
		Message:   msg,
		Details:   details,
		RequestID: utils.RequestIDFrom(ctx),
		At:        s.now(),
	})
}

func (s DispatchService) record(action models.AssignmentAction, method models.AssignmentMethod, err error) {
	metrics.Assignments.WithLabelValues(string(action), string(method), metrics.Outcome(err, outcomeCode)).Inc()
}

// outcomeCode labels errors for counters.
func outcomeCode(err error) string {
	if domain.IsConflict(err) {
		return "conflict"
	}
	if c := domain.BusinessCode(err); c != "" {
		return c
	}
	switch {
	case domain.IsValidation(err):
		return "invalid"
	case domain.IsNotFound(err):
		return "not_found"
	}
	return ""
}
