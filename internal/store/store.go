package store

import (
	"context"
	"time"

	"charterops/internal/domain/models"
)

// Store is the persistence collaborator used by the services.
// Reads flagged forUpdate take a row lock when called inside WithTx.
type Store interface {
	// WithTx runs fn in one transaction. Any error from fn rolls back
	// every write made through tx.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Reference data
	GetBranch(ctx context.Context, id int64) (models.Branch, error)
	GetHireType(ctx context.Context, id int64) (models.HireType, error)
	ListActiveCategories(ctx context.Context) ([]models.VehicleCategory, error)
	GetEffectivePricing(ctx context.Context, categoryID int64, at time.Time) (models.VehicleCategoryPricing, error)

	// Customers
	FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error

	// Fleet
	ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error)
	GetVehicle(ctx context.Context, id int64, forUpdate bool) (models.Vehicle, error)
	UpdateVehicleStatus(ctx context.Context, id int64, status models.VehicleStatus) error
	ListDrivers(ctx context.Context, branchID int64) ([]models.Driver, error)
	GetDriver(ctx context.Context, id int64, forUpdate bool) (models.Driver, error)
	UpdateDriverStatus(ctx context.Context, id int64, status models.DriverStatus) error
	ListDayOffs(ctx context.Context, driverIDs []int64) ([]models.DriverDayOff, error)

	// Occupancy on non-terminal trips
	ListVehicleWindows(ctx context.Context, vehicleIDs []int64) ([]models.AssignmentWindow, error)
	ListDriverWindows(ctx context.Context, driverIDs []int64) ([]models.AssignmentWindow, error)
	ListReservedDemand(ctx context.Context, branchID, categoryID, excludeBookingID int64) ([]models.ReservedDemand, error)

	// Bookings
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error
	ListUnstaffedBookings(ctx context.Context, branchID int64) ([]models.Booking, error)

	// Trips
	CreateTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id int64, forUpdate bool) (models.Trip, error)
	ListTripsByBooking(ctx context.Context, bookingID int64) ([]models.Trip, error)
	UpdateTripStatus(ctx context.Context, id int64, status models.TripStatus) error

	// Assignments
	ListTripDrivers(ctx context.Context, tripID int64) ([]models.TripDriver, error)
	AddTripDriver(ctx context.Context, td models.TripDriver) error
	RemoveTripDriver(ctx context.Context, tripID, driverID int64) error
	SetDriverAccepted(ctx context.Context, tripID, driverID int64, at time.Time) error
	ListTripVehicles(ctx context.Context, tripID int64) ([]models.TripVehicle, error)
	AddTripVehicle(ctx context.Context, tv models.TripVehicle) error
	RemoveTripVehicle(ctx context.Context, tripID, vehicleID int64) error

	// Audit
	AppendHistory(ctx context.Context, h *models.TripAssignmentHistory) error
	ListHistory(ctx context.Context, tripID int64) ([]models.TripAssignmentHistory, error)
}

// VehicleFilter narrows ListVehicles. Zero values match everything.
type VehicleFilter struct {
	BranchID   int64
	CategoryID int64
	Status     models.VehicleStatus
}

func (f VehicleFilter) Match(v models.Vehicle) bool {
	if f.BranchID != 0 && v.BranchID != f.BranchID {
		return false
	}
	if f.CategoryID != 0 && v.CategoryID != f.CategoryID {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	return true
}
