package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"charterops/internal/config"
	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/lock"
	"charterops/internal/metrics"
	"charterops/internal/notify"
	"charterops/internal/store"
	"charterops/internal/utils"
)

// BookingService turns a hire request into a priced booking with one trip
// per leg and, optionally, staffed trips.
type BookingService struct {
	Store        store.Store
	Tariff       TariffService
	Availability AvailabilityService
	Dispatch     DispatchService
	Customers    CustomerDirectory
	Locker       lock.Locker
	Notifier     notify.Notifier
	Rules        config.TariffRules
	Now          func() time.Time
}

type LegRequest struct {
	StartLocation   string    `json:"start_location"`
	EndLocation     string    `json:"end_location"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DistanceKm      float64   `json:"distance_km"`
	IncidentalCosts float64   `json:"incidental_costs"`
	UseHighway      bool      `json:"use_highway"`
}

type CreateBookingRequest struct {
	CustomerPhone      string               `json:"customer_phone"`
	CustomerName       string               `json:"customer_name"`
	BranchID           int64                `json:"branch_id"`
	HireTypeID         int64                `json:"hire_type_id"`
	IsHoliday          bool                 `json:"is_holiday"`
	IsWeekend          bool                 `json:"is_weekend"`
	UseHighway         bool                 `json:"use_highway"`
	ExtraPickupPoints  int                  `json:"extra_pickup_points"`
	ExtraDropoffPoints int                  `json:"extra_dropoff_points"`
	Lines              []models.BookingLine `json:"lines"`
	Legs               []LegRequest         `json:"legs"`
	CoDriversPerLeg    int                  `json:"co_drivers_per_leg"`
	AutoAssign         bool                 `json:"auto_assign"`
}

func (s BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return utils.NowUTC()
}

func (s BookingService) customers() CustomerDirectory {
	if s.Customers != nil {
		return s.Customers
	}
	return StoreCustomerDirectory{Store: s.Store}
}

// processLocker serializes allocation when no shared Locker is configured.
var processLocker = lock.NewLocal(lock.DefaultWait)

func (s BookingService) locker() lock.Locker {
	if s.Locker != nil {
		return s.Locker
	}
	return processLocker
}

// CreateBooking validates, checks inventory under the (branch, category)
// locks, prices, then persists in two transactions: the booking first and
// its trips second. A staffing shortfall in the second leaves the booking
// PENDING without trips; ListUnstaffed surfaces those.
func (s BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest, actorID int64) (b models.Booking, err error) {
	defer func() { metrics.Bookings.WithLabelValues(metrics.Outcome(err, outcomeCode)).Inc() }()

	if err := normalizeBooking(&req); err != nil {
		return models.Booking{}, err
	}
	branch, err := s.Store.GetBranch(ctx, req.BranchID)
	if err != nil {
		return models.Booking{}, err
	}
	if !branch.Active {
		return models.Booking{}, domain.ValidationError{Field: "branch_id", Msg: "branch is inactive"}
	}
	customer, err := s.customers().FindOrCreateByPhone(ctx, req.CustomerPhone, req.CustomerName)
	if err != nil {
		return models.Booking{}, err
	}

	release, err := s.acquire(ctx, req.BranchID, req.Lines)
	if err != nil {
		return models.Booking{}, err
	}
	defer release()

	if err := s.ensureInventory(ctx, req); err != nil {
		return models.Booking{}, err
	}

	estimated, incidental, err := s.priceLegs(ctx, req)
	if err != nil {
		return models.Booking{}, err
	}
	extraStops := utils.MoneyFromFloat(float64(req.ExtraPickupPoints+req.ExtraDropoffPoints) * s.Rules.ExtraStopFee)
	total := (estimated + extraStops + incidental).NonNegative()

	now := s.now()
	start, end := legSpan(req.Legs)
	b = models.Booking{
		CustomerID:         customer.ID,
		BranchID:           req.BranchID,
		HireTypeID:         req.HireTypeID,
		IsHoliday:          req.IsHoliday,
		IsWeekend:          req.IsWeekend,
		UseHighway:         req.UseHighway,
		ExtraPickupPoints:  req.ExtraPickupPoints,
		ExtraDropoffPoints: req.ExtraDropoffPoints,
		StartTime:          start,
		EndTime:            end,
		EstimatedCost:      estimated,
		TotalCost:          total,
		DepositAmount:      utils.MoneyFromFloat(total.Float() * s.Rules.DepositRate),
		Status:             models.BookingPending,
		CreatedBy:          actorID,
		CreatedAt:          now,
		UpdatedAt:          now,
		Lines:              req.Lines,
	}
	if err := s.Store.WithTx(ctx, func(tx store.Store) error {
		return tx.CreateBooking(ctx, &b)
	}); err != nil {
		return models.Booking{}, err
	}

	var trips []models.Trip
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		created, err := s.createTrips(ctx, tx, b, req.Legs, now)
		if err != nil {
			return err
		}
		need := b.TotalQuantity() + req.CoDriversPerLeg
		slots := make([]staffingSlot, len(created))
		for i, t := range created {
			slots[i] = staffingSlot{trip: t, need: need}
		}
		picks, err := pickDrivers(ctx, tx, b.BranchID, slots)
		if err != nil {
			return err
		}
		if req.AutoAssign {
			for i := range created {
				if err := s.staffTrip(ctx, tx, b, created[i], 0, picks[i], actorID); err != nil {
					return err
				}
			}
		}
		trips, err = tx.ListTripsByBooking(ctx, b.ID)
		return err
	})
	if err != nil {
		if domain.BusinessCode(err) == domain.CodeInsufficientDrivers {
			utils.LogEvent(ctx, "booking", "create", fmt.Sprintf("booking=%d left without trips: %v", b.ID, err))
			s.emit(ctx, notify.EventResourceInsufficient, b, "not enough available drivers", businessDetails(err))
		}
		return models.Booking{}, err
	}
	b.Trips = trips

	utils.LogEvent(ctx, "booking", "create", fmt.Sprintf("booking=%d branch=%d legs=%d total=%s", b.ID, b.BranchID, len(trips), b.TotalCost))
	s.emit(ctx, notify.EventBookingCreated, b, "booking created", map[string]any{
		"customer_id": b.CustomerID, "total_cost": b.TotalCost, "auto_assign": req.AutoAssign,
	})
	return b, nil
}

// normalizeBooking checks the request shape and merges duplicate lines.
func normalizeBooking(req *CreateBookingRequest) error {
	req.CustomerPhone = utils.NormalizePhone(req.CustomerPhone)
	req.CustomerName = utils.NormalizeSpace(req.CustomerName)
	switch {
	case req.CustomerPhone == "":
		return domain.ValidationError{Field: "customer_phone", Msg: "required"}
	case req.BranchID <= 0:
		return domain.ValidationError{Field: "branch_id", Msg: "required"}
	case len(req.Lines) == 0:
		return domain.ValidationError{Field: "lines", Msg: "at least one category line required"}
	case len(req.Legs) == 0:
		return domain.ValidationError{Field: "legs", Msg: "at least one leg required"}
	case req.CoDriversPerLeg < 0:
		return domain.ValidationError{Field: "co_drivers_per_leg", Msg: "must not be negative"}
	case req.ExtraPickupPoints < 0 || req.ExtraDropoffPoints < 0:
		return domain.ValidationError{Field: "extra_pickup_points", Msg: "must not be negative"}
	}

	merged := map[int64]int{}
	for i, l := range req.Lines {
		if l.CategoryID <= 0 {
			return domain.ValidationError{Field: fmt.Sprintf("lines[%d].category_id", i), Msg: "required"}
		}
		if l.Quantity <= 0 {
			return domain.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Msg: "must be positive"}
		}
		merged[l.CategoryID] += l.Quantity
	}
	lines := make([]models.BookingLine, 0, len(merged))
	for cat, qty := range merged {
		lines = append(lines, models.BookingLine{CategoryID: cat, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].CategoryID < lines[j].CategoryID })
	req.Lines = lines

	for i := range req.Legs {
		leg := &req.Legs[i]
		leg.StartLocation = strings.TrimSpace(leg.StartLocation)
		leg.EndLocation = strings.TrimSpace(leg.EndLocation)
		w := utils.Window{Start: leg.StartTime, End: leg.EndTime}
		switch {
		case !w.Valid():
			return domain.ValidationError{Field: fmt.Sprintf("legs[%d].end_time", i), Msg: "must be after start_time"}
		case leg.DistanceKm < 0:
			return domain.ValidationError{Field: fmt.Sprintf("legs[%d].distance_km", i), Msg: "must not be negative"}
		case leg.IncidentalCosts < 0:
			return domain.ValidationError{Field: fmt.Sprintf("legs[%d].incidental_costs", i), Msg: "must not be negative"}
		}
	}
	return nil
}

func (s BookingService) acquire(ctx context.Context, branchID int64, lines []models.BookingLine) (func(), error) {
	keys := make([]string, len(lines))
	for i, l := range lines {
		keys[i] = lock.Key(branchID, l.CategoryID)
	}
	started := time.Now()
	release, err := lock.AcquireAll(ctx, s.locker(), keys)
	metrics.LockWait.Observe(time.Since(started).Seconds())
	return release, err
}

type shortage struct {
	CategoryID int64     `json:"category_id"`
	Leg        int       `json:"leg"`
	Start      time.Time `json:"start_time"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
}

// ensureInventory checks every line against every leg window.
func (s BookingService) ensureInventory(ctx context.Context, req CreateBookingRequest) error {
	var short []shortage
	for _, l := range req.Lines {
		for i, leg := range req.Legs {
			res, err := s.Availability.check(ctx, s.Store, AvailabilityRequest{
				BranchID:   req.BranchID,
				CategoryID: l.CategoryID,
				StartTime:  leg.StartTime,
				EndTime:    leg.EndTime,
				Quantity:   l.Quantity,
			})
			if err != nil {
				return err
			}
			if !res.OK {
				short = append(short, shortage{
					CategoryID: l.CategoryID, Leg: i, Start: leg.StartTime,
					Requested: l.Quantity, Available: res.AvailableCount,
				})
			}
		}
	}
	if len(short) == 0 {
		return nil
	}
	err := domain.BusinessError{
		Code:    domain.CodeInsufficientVehicles,
		Reason:  "not enough available vehicles",
		Details: map[string]any{"branch_id": req.BranchID, "shortages": short},
	}
	utils.LogEvent(ctx, "booking", "availability", fmt.Sprintf("branch=%d shortages=%d", req.BranchID, len(short)))
	s.emit(ctx, notify.EventResourceInsufficient, models.Booking{BranchID: req.BranchID}, err.Reason, err.Details)
	return err
}

// priceLegs returns the tariff total over all legs and the summed
// incidental costs.
func (s BookingService) priceLegs(ctx context.Context, req CreateBookingRequest) (utils.Money, utils.Money, error) {
	lines := make([]QuoteLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = QuoteLine{CategoryID: l.CategoryID, Quantity: l.Quantity}
	}
	var estimated, incidental utils.Money
	for _, leg := range req.Legs {
		price, err := s.Tariff.Price(ctx, QuoteRequest{
			Lines:      lines,
			DistanceKm: leg.DistanceKm,
			UseHighway: leg.UseHighway || req.UseHighway,
			HireTypeID: req.HireTypeID,
			IsHoliday:  req.IsHoliday,
			IsWeekend:  req.IsWeekend,
			StartTime:  leg.StartTime,
			EndTime:    leg.EndTime,
		})
		if err != nil {
			return 0, 0, err
		}
		estimated += price
		incidental += utils.MoneyFromFloat(leg.IncidentalCosts)
	}
	return estimated, incidental, nil
}

func legSpan(legs []LegRequest) (time.Time, time.Time) {
	start, end := legs[0].StartTime, legs[0].EndTime
	for _, l := range legs[1:] {
		if l.StartTime.Before(start) {
			start = l.StartTime
		}
		if l.EndTime.After(end) {
			end = l.EndTime
		}
	}
	return start, end
}

func (s BookingService) createTrips(ctx context.Context, tx store.Store, b models.Booking, legs []LegRequest, now time.Time) ([]models.Trip, error) {
	trips := make([]models.Trip, 0, len(legs))
	span := b.Window()
	for _, leg := range legs {
		if !span.Contains(utils.Window{Start: leg.StartTime, End: leg.EndTime}) {
			return nil, domain.InternalError{Msg: "leg falls outside the booking window"}
		}
		t := models.Trip{
			BookingID:       b.ID,
			StartLocation:   leg.StartLocation,
			EndLocation:     leg.EndLocation,
			StartTime:       leg.StartTime,
			EndTime:         leg.EndTime,
			DistanceKm:      leg.DistanceKm,
			IncidentalCosts: utils.MoneyFromFloat(leg.IncidentalCosts),
			UseHighway:      leg.UseHighway || b.UseHighway,
			Status:          models.TripScheduled,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateTrip(ctx, &t); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

// staffingSlot is one trip still needing drivers. onTrip holds drivers
// already attached to it.
type staffingSlot struct {
	trip   models.Trip
	need   int
	idle   int // drivers already on the trip without a vehicle
	onTrip map[int64]bool
}

// pickDrivers chooses drivers per slot by priority, rating, then id. A
// driver picked for one slot is not picked for an overlapping one.
func pickDrivers(ctx context.Context, tx store.Store, branchID int64, slots []staffingSlot) ([][]models.Driver, error) {
	drivers, err := tx.ListDrivers(ctx, branchID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		a, b := drivers[i], drivers[j]
		if a.PriorityLevel != b.PriorityLevel {
			return a.PriorityLevel > b.PriorityLevel
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.ID < b.ID
	})
	ids := make([]int64, len(drivers))
	for i, d := range drivers {
		ids[i] = d.ID
	}
	dayOffs, err := tx.ListDayOffs(ctx, ids)
	if err != nil {
		return nil, err
	}
	windows, err := tx.ListDriverWindows(ctx, ids)
	if err != nil {
		return nil, err
	}

	picked := map[int64][]utils.Window{}
	out := make([][]models.Driver, len(slots))
	for i, slot := range slots {
		tw := slot.trip.Window()
		for _, d := range drivers {
			if len(out[i]) == slot.need {
				break
			}
			if slot.onTrip[d.ID] || overlapsAny(picked[d.ID], tw) {
				continue
			}
			if ok, _ := validateDriver(d, slot.trip, dayOffs, windows); !ok {
				continue
			}
			out[i] = append(out[i], d)
			picked[d.ID] = append(picked[d.ID], tw)
		}
		if len(out[i]) < slot.need {
			return nil, domain.BusinessError{
				Code:   domain.CodeInsufficientDrivers,
				Reason: "not enough available drivers",
				Details: map[string]any{
					"booking_id": slot.trip.BookingID,
					"trip_start": slot.trip.StartTime,
					"required":   slot.need,
					"available":  len(out[i]),
				},
			}
		}
	}
	return out, nil
}

func overlapsAny(ws []utils.Window, w utils.Window) bool {
	for _, o := range ws {
		if o.Overlaps(w) {
			return true
		}
	}
	return false
}

// staffTrip fills the trip's unfilled vehicle slots. idle drivers are
// already on the trip without a vehicle and get the free vehicles first;
// after them each picked driver is paired with one. Picked drivers past the
// last slot ride as co-drivers without a vehicle.
func (s BookingService) staffTrip(ctx context.Context, tx store.Store, b models.Booking, trip models.Trip, idle int, drivers []models.Driver, actorID int64) error {
	remaining, err := openVehicleSlots(ctx, tx, b, trip.ID)
	if err != nil {
		return err
	}
	categories := bookingCategories(b)
	used := map[int64]bool{}
	next := 0

	for _, l := range b.Lines {
		candidates, err := tx.ListVehicles(ctx, store.VehicleFilter{
			BranchID: b.BranchID, CategoryID: l.CategoryID, Status: models.VehicleAvailable,
		})
		if err != nil {
			return err
		}
		for n := 0; n < remaining[l.CategoryID] && (idle > 0 || next < len(drivers)); n++ {
			vehicleID, err := freeVehicle(ctx, tx, candidates, used, trip, categories)
			if err != nil {
				return err
			}
			req := AssignRequest{TripID: trip.ID, VehicleID: vehicleID, ActorID: actorID, Method: models.MethodAuto, Note: "auto-assigned"}
			if idle > 0 {
				if vehicleID == 0 {
					// Nothing left in this category for the waiting drivers.
					break
				}
				idle--
			} else {
				req.DriverID = drivers[next].ID
				next++
			}
			if _, err := s.Dispatch.assignTx(ctx, tx, req); err != nil {
				return raced(err)
			}
		}
	}
	for ; next < len(drivers); next++ {
		req := AssignRequest{TripID: trip.ID, DriverID: drivers[next].ID, ActorID: actorID, Method: models.MethodAuto, Note: "co-driver"}
		if _, err := s.Dispatch.assignTx(ctx, tx, req); err != nil {
			return raced(err)
		}
	}
	return nil
}

// freeVehicle returns the first eligible candidate not yet used, or 0.
func freeVehicle(ctx context.Context, tx store.Store, candidates []models.Vehicle, used map[int64]bool, trip models.Trip, categories map[int64]bool) (int64, error) {
	for _, v := range candidates {
		if used[v.ID] {
			continue
		}
		ok, _, err := vehicleEligibility(ctx, tx, v, trip, categories)
		if err != nil {
			return 0, err
		}
		if ok {
			used[v.ID] = true
			return v.ID, nil
		}
	}
	return 0, nil
}

// openVehicleSlots returns, per category, how many vehicles the trip still
// lacks against the booking lines.
func openVehicleSlots(ctx context.Context, st store.Store, b models.Booking, tripID int64) (map[int64]int, error) {
	open := map[int64]int{}
	for _, l := range b.Lines {
		open[l.CategoryID] += l.Quantity
	}
	attached, err := st.ListTripVehicles(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, tv := range attached {
		v, err := st.GetVehicle(ctx, tv.VehicleID, false)
		if err != nil {
			return nil, err
		}
		if open[v.CategoryID] > 0 {
			open[v.CategoryID]--
		}
	}
	return open, nil
}

// AutoAssign staffs the SCHEDULED trips of an existing booking. Drivers
// already on a trip without a vehicle are given one first; each slot still
// open after that gets a new driver and, when one is free, a vehicle.
func (s BookingService) AutoAssign(ctx context.Context, bookingID, actorID int64) (models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if !b.Status.Holds() {
		return models.Booking{}, domain.BusinessError{
			Code:    domain.CodeInvalidTransition,
			Reason:  fmt.Sprintf("booking is %s", b.Status),
			Details: map[string]any{"booking_id": b.ID, "status": string(b.Status)},
		}
	}
	release, err := s.acquire(ctx, b.BranchID, b.Lines)
	if err != nil {
		return models.Booking{}, err
	}
	defer release()

	assigned := 0
	err = s.Store.WithTx(ctx, func(tx store.Store) error {
		trips, err := tx.ListTripsByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		var slots []staffingSlot
		for _, t := range trips {
			if t.Status != models.TripScheduled {
				continue
			}
			open, err := openVehicleSlots(ctx, tx, b, t.ID)
			if err != nil {
				return err
			}
			slotsOpen := 0
			for _, n := range open {
				slotsOpen += n
			}
			if slotsOpen == 0 {
				continue
			}
			current, err := tx.ListTripDrivers(ctx, t.ID)
			if err != nil {
				return err
			}
			vehicles, err := tx.ListTripVehicles(ctx, t.ID)
			if err != nil {
				return err
			}
			onTrip := make(map[int64]bool, len(current))
			for _, d := range current {
				onTrip[d.DriverID] = true
			}
			idle := max(0, len(current)-len(vehicles))
			slots = append(slots, staffingSlot{trip: t, need: max(0, slotsOpen-idle), idle: idle, onTrip: onTrip})
		}
		if len(slots) == 0 {
			return nil
		}
		picks, err := pickDrivers(ctx, tx, b.BranchID, slots)
		if err != nil {
			return err
		}
		for i, slot := range slots {
			if err := s.staffTrip(ctx, tx, b, slot.trip, slot.idle, picks[i], actorID); err != nil {
				return err
			}
			assigned += len(picks[i])
		}
		return nil
	})
	if err != nil {
		if domain.BusinessCode(err) == domain.CodeInsufficientDrivers {
			s.emit(ctx, notify.EventResourceInsufficient, b, "not enough available drivers", businessDetails(err))
		}
		return models.Booking{}, err
	}

	utils.LogEvent(ctx, "booking", "auto_assign", fmt.Sprintf("booking=%d drivers=%d", b.ID, assigned))
	return s.Get(ctx, b.ID)
}

// CancelBooking cancels every live trip and then the booking, atomically.
func (s BookingService) CancelBooking(ctx context.Context, bookingID int64, reason string, actorID int64) (models.Booking, error) {
	err := s.Store.WithTx(ctx, func(tx store.Store) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.Holds() {
			return domain.BusinessError{
				Code:    domain.CodeInvalidTransition,
				Reason:  fmt.Sprintf("booking is %s", b.Status),
				Details: map[string]any{"booking_id": b.ID, "status": string(b.Status)},
			}
		}
		trips, err := tx.ListTripsByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, t := range trips {
			if t.Status.Terminal() {
				continue
			}
			if _, err := s.Dispatch.cancelTx(ctx, tx, t.ID, reason, actorID); err != nil {
				return err
			}
		}
		return tx.UpdateBookingStatus(ctx, bookingID, models.BookingCancelled)
	})
	if err != nil {
		return models.Booking{}, err
	}

	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	utils.LogEvent(ctx, "booking", "cancel", fmt.Sprintf("booking=%d reason=%q", bookingID, reason))
	s.emit(ctx, notify.EventBookingCancelled, b, "booking cancelled", map[string]any{"reason": reason})
	return b, nil
}

// Get returns the booking with its lines and trips.
func (s BookingService) Get(ctx context.Context, bookingID int64) (models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Trips, err = s.Store.ListTripsByBooking(ctx, bookingID); err != nil {
		return models.Booking{}, err
	}
	return b, nil
}

// ListUnstaffed lists PENDING bookings that have no trips. branchID 0
// means every branch.
func (s BookingService) ListUnstaffed(ctx context.Context, branchID int64) ([]models.Booking, error) {
	return s.Store.ListUnstaffedBookings(ctx, branchID)
}

func (s BookingService) emit(ctx context.Context, typ string, b models.Booking, msg string, details map[string]any) {
	if s.Notifier == nil {
		return
	}
	_ = s.Notifier.Notify(ctx, notify.Event{
		Type:      typ,
		BranchID:  b.BranchID,
		BookingID: b.ID,
		Message:   msg,
		Details:   details,
		RequestID: utils.RequestIDFrom(ctx),
		At:        s.now(),
	})
}

func businessDetails(err error) map[string]any {
	var be domain.BusinessError
	if errors.As(err, &be) {
		return be.Details
	}
	return nil
}
