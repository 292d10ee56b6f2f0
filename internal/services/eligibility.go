package services

import (
	"context"
	"time"

	"charterops/internal/domain/models"
	"charterops/internal/store"
	"charterops/internal/utils"
)

// validateDriver reports whether d may drive trip. windows are d's other
// non-terminal assignments; rows for trip itself are ignored.
func validateDriver(d models.Driver, trip models.Trip, dayOffs []models.DriverDayOff, windows []models.AssignmentWindow) (bool, string) {
	if d.Status == models.DriverInactive {
		return false, "driver is inactive"
	}
	if !d.LicenseExpiry.IsZero() && utils.StartOfDay(d.LicenseExpiry).Before(utils.StartOfDay(trip.StartTime.In(d.LicenseExpiry.Location()))) {
		return false, "driver license expired"
	}
	tw := trip.Window()
	for _, off := range dayOffs {
		if off.DriverID != d.ID || off.Status != models.DayOffApproved {
			continue
		}
		if off.Window().Overlaps(tw) {
			return false, "driver has approved day off"
		}
	}
	for _, w := range windows {
		if w.ResourceID != d.ID || w.TripID == trip.ID {
			continue
		}
		if w.Window().Overlaps(tw) {
			return false, "driver already assigned to an overlapping trip"
		}
	}
	return true, ""
}

// validateVehicle reports whether v may serve trip for a booking whose
// lines cover categories.
func validateVehicle(v models.Vehicle, trip models.Trip, categories map[int64]bool, windows []models.AssignmentWindow) (bool, string) {
	switch v.Status {
	case models.VehicleMaintenance:
		return false, "vehicle under maintenance"
	case models.VehicleInactive:
		return false, "vehicle is inactive"
	}
	if !inspectionValid(v, trip.StartTime) {
		return false, "vehicle inspection expired"
	}
	if !categories[v.CategoryID] {
		return false, "vehicle category not requested by booking"
	}
	tw := trip.Window()
	for _, w := range windows {
		if w.ResourceID != v.ID || w.TripID == trip.ID {
			continue
		}
		if w.Window().Overlaps(tw) {
			return false, "vehicle already assigned to an overlapping trip"
		}
	}
	return true, ""
}

// inspectionValid is true when v has no recorded inspection expiry or it
// falls on or after the day of at.
func inspectionValid(v models.Vehicle, at time.Time) bool {
	if v.InspectionExpiry == nil {
		return true
	}
	exp := utils.StartOfDay(*v.InspectionExpiry)
	return !exp.Before(utils.StartOfDay(at.In(exp.Location())))
}

func bookingCategories(b models.Booking) map[int64]bool {
	set := make(map[int64]bool, len(b.Lines))
	for _, l := range b.Lines {
		if l.Quantity > 0 {
			set[l.CategoryID] = true
		}
	}
	return set
}

// driverEligibility loads what validateDriver needs for one driver.
func driverEligibility(ctx context.Context, st store.Store, d models.Driver, trip models.Trip) (bool, string, error) {
	offs, err := st.ListDayOffs(ctx, []int64{d.ID})
	if err != nil {
		return false, "", err
	}
	windows, err := st.ListDriverWindows(ctx, []int64{d.ID})
	if err != nil {
		return false, "", err
	}
	ok, reason := validateDriver(d, trip, offs, windows)
	return ok, reason, nil
}

func vehicleEligibility(ctx context.Context, st store.Store, v models.Vehicle, trip models.Trip, categories map[int64]bool) (bool, string, error) {
	windows, err := st.ListVehicleWindows(ctx, []int64{v.ID})
	if err != nil {
		return false, "", err
	}
	ok, reason := validateVehicle(v, trip, categories, windows)
	return ok, reason, nil
}
