package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/metrics"
	"charterops/internal/store"
	"charterops/internal/utils"
)

const (
	defaultSlotHorizon = 14 * 24 * time.Hour
	defaultMaxSlots    = 3
)

type AvailabilityService struct {
	Store    store.Store
	Horizon  time.Duration // how far ahead next slots are searched
	MaxSlots int
}

type AvailabilityRequest struct {
	BranchID   int64     `json:"branch_id"`
	CategoryID int64     `json:"category_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Quantity   int       `json:"quantity"`
	// ExcludeBookingID keeps a booking from competing with its own reservation.
	ExcludeBookingID int64 `json:"exclude_booking_id,omitempty"`
}

type CategoryAvailability struct {
	CategoryID     int64  `json:"category_id"`
	Name           string `json:"name"`
	AvailableCount int    `json:"available_count"`
}

type AvailabilityResult struct {
	OK                    bool                   `json:"ok"`
	AvailableCount        int                    `json:"available_count"`
	BusyCount             int                    `json:"busy_count"`
	BusyFromAssignment    int                    `json:"busy_from_assignment"`
	Reserved              int                    `json:"reserved"`
	TotalCandidates       int                    `json:"total_candidates"`
	AlternativeCategories []CategoryAvailability `json:"alternative_categories,omitempty"`
	NextAvailableSlots    []utils.Window         `json:"next_available_slots,omitempty"`
}

func (s AvailabilityService) Check(ctx context.Context, req AvailabilityRequest) (AvailabilityResult, error) {
	return s.check(ctx, s.Store, req)
}

// inventory is everything needed to count one category at one branch.
type inventory struct {
	candidates int
	windows    []models.AssignmentWindow
	demand     []models.ReservedDemand
}

func (s AvailabilityService) check(ctx context.Context, st store.Store, req AvailabilityRequest) (AvailabilityResult, error) {
	if err := validateAvailability(req); err != nil {
		return AvailabilityResult{}, err
	}
	if _, err := st.GetBranch(ctx, req.BranchID); err != nil {
		return AvailabilityResult{}, err
	}

	window := utils.Window{Start: req.StartTime, End: req.EndTime}
	inv, err := loadInventory(ctx, st, req.BranchID, req.CategoryID, req.ExcludeBookingID, window.Start)
	if err != nil {
		return AvailabilityResult{}, err
	}
	res := inv.count(window)
	res.OK = res.AvailableCount >= req.Quantity

	if res.OK {
		metrics.AvailabilityChecks.WithLabelValues("ok").Inc()
		return res, nil
	}
	metrics.AvailabilityChecks.WithLabelValues("insufficient").Inc()

	// Suggestions are best-effort; a failure here never hides the result.
	if alts, err := s.alternatives(ctx, st, req, window); err == nil {
		res.AlternativeCategories = alts
	} else {
		utils.LogFailure(ctx, "availability", "alternatives", err)
	}
	res.NextAvailableSlots = s.nextSlots(inv, window, req.Quantity)
	return res, nil
}

func validateAvailability(req AvailabilityRequest) error {
	switch {
	case req.BranchID <= 0:
		return domain.ValidationError{Field: "branch_id", Msg: "required"}
	case req.CategoryID <= 0:
		return domain.ValidationError{Field: "category_id", Msg: "required"}
	case req.Quantity <= 0:
		return domain.ValidationError{Field: "quantity", Msg: "must be positive"}
	case req.StartTime.IsZero() || !req.EndTime.After(req.StartTime):
		return domain.ValidationError{Field: "end_time", Msg: "must be after start_time"}
	}
	return nil
}

// loadInventory collects the AVAILABLE vehicles of a category whose
// inspection is still valid on the day of start, with their windows and the
// competing reserved demand.
func loadInventory(ctx context.Context, st store.Store, branchID, categoryID, excludeBookingID int64, start time.Time) (inventory, error) {
	listed, err := st.ListVehicles(ctx, store.VehicleFilter{
		BranchID: branchID, CategoryID: categoryID, Status: models.VehicleAvailable,
	})
	if err != nil {
		return inventory{}, err
	}
	vehicles := make([]models.Vehicle, 0, len(listed))
	for _, v := range listed {
		if inspectionValid(v, start) {
			vehicles = append(vehicles, v)
		}
	}
	ids := make([]int64, len(vehicles))
	for i, v := range vehicles {
		ids[i] = v.ID
	}
	windows, err := st.ListVehicleWindows(ctx, ids)
	if err != nil {
		return inventory{}, err
	}
	demand, err := st.ListReservedDemand(ctx, branchID, categoryID, excludeBookingID)
	if err != nil {
		return inventory{}, err
	}
	return inventory{candidates: len(vehicles), windows: windows, demand: demand}, nil
}

// count derives the figures for one window. A vehicle is busy when any of
// its trips overlaps. A reserving booking counts once, with its largest
// unattached remainder over its overlapping trips.
func (inv inventory) count(w utils.Window) AvailabilityResult {
	busy := map[int64]bool{}
	for _, a := range inv.windows {
		if a.Window().Overlaps(w) {
			busy[a.ResourceID] = true
		}
	}
	perBooking := map[int64]int{}
	for _, d := range inv.demand {
		if !utils.Overlaps(d.Start, d.End, w.Start, w.End) {
			continue
		}
		if r := d.Remainder(); r > perBooking[d.BookingID] {
			perBooking[d.BookingID] = r
		}
	}
	reserved := 0
	for _, r := range perBooking {
		reserved += r
	}

	res := AvailabilityResult{
		TotalCandidates:    inv.candidates,
		BusyFromAssignment: len(busy),
		Reserved:           reserved,
		BusyCount:          len(busy) + reserved,
	}
	if avail := inv.candidates - res.BusyCount; avail > 0 {
		res.AvailableCount = avail
	}
	return res
}

func (s AvailabilityService) alternatives(ctx context.Context, st store.Store, req AvailabilityRequest, w utils.Window) ([]CategoryAvailability, error) {
	cats, err := st.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := []CategoryAvailability{}
	for _, c := range cats {
		if c.ID == req.CategoryID {
			continue
		}
		inv, err := loadInventory(ctx, st, req.BranchID, c.ID, req.ExcludeBookingID, w.Start)
		if err != nil {
			return nil, err
		}
		if n := inv.count(w).AvailableCount; n >= req.Quantity {
			out = append(out, CategoryAvailability{CategoryID: c.ID, Name: c.Name, AvailableCount: n})
		}
	}
	return out, nil
}

// nextSlots tries the same-length window starting at each busy or reserved
// end after the requested start, earliest first.
func (s AvailabilityService) nextSlots(inv inventory, w utils.Window, quantity int) []utils.Window {
	horizon := s.Horizon
	if horizon <= 0 {
		horizon = defaultSlotHorizon
	}
	maxSlots := s.MaxSlots
	if maxSlots <= 0 {
		maxSlots = defaultMaxSlots
	}
	limit := w.Start.Add(horizon)

	seen := map[int64]bool{}
	var starts []time.Time
	add := func(t time.Time) {
		if !t.After(w.Start) || t.After(limit) || seen[t.UnixNano()] {
			return
		}
		seen[t.UnixNano()] = true
		starts = append(starts, t)
	}
	for _, a := range inv.windows {
		add(a.End)
	}
	for _, d := range inv.demand {
		if d.Remainder() > 0 {
			add(d.End)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	slots := []utils.Window{}
	for _, t := range starts {
		candidate := w.ShiftTo(t)
		if inv.count(candidate).AvailableCount >= quantity {
			slots = append(slots, candidate)
			if len(slots) == maxSlots {
				break
			}
		}
	}
	return slots
}
