package models

import (
	"time"

	"charterops/internal/utils"
)

type DriverStatus string

const (
	DriverAvailable DriverStatus = "AVAILABLE"
	DriverOnTrip    DriverStatus = "ON_TRIP"
	DriverOffDuty   DriverStatus = "OFF_DUTY"
	DriverInactive  DriverStatus = "INACTIVE"
)

type Driver struct {
	ID              int64        `json:"id"`
	BranchID        int64        `json:"branch_id"`
	Name            string       `json:"name"`
	Phone           string       `json:"phone"`
	LicenseNumber   string       `json:"license_number"`
	LicenseClass    string       `json:"license_class"`
	LicenseExpiry   time.Time    `json:"license_expiry"`
	HealthCheckDate *time.Time   `json:"health_check_date,omitempty"`
	Rating          float64      `json:"rating"`
	PriorityLevel   int          `json:"priority_level"`
	Status          DriverStatus `json:"status"`
}

type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "AVAILABLE"
	VehicleInUse       VehicleStatus = "INUSE"
	VehicleMaintenance VehicleStatus = "MAINTENANCE"
	VehicleInactive    VehicleStatus = "INACTIVE"
)

type Vehicle struct {
	ID               int64         `json:"id"`
	BranchID         int64         `json:"branch_id"`
	CategoryID       int64         `json:"category_id"`
	LicensePlate     string        `json:"license_plate"`
	Capacity         int           `json:"capacity"`
	InspectionExpiry *time.Time    `json:"inspection_expiry,omitempty"`
	Status           VehicleStatus `json:"status"`
}

type PricingStatus string

const (
	PricingActive   PricingStatus = "ACTIVE"
	PricingInactive PricingStatus = "INACTIVE"
)

// VehicleCategoryPricing is one dated tariff row for a category.
type VehicleCategoryPricing struct {
	ID                int64         `json:"id"`
	CategoryID        int64         `json:"category_id"`
	CategoryName      string        `json:"category_name"`
	BaseFare          float64       `json:"base_fare"`
	PricePerKm        float64       `json:"price_per_km"`
	HighwayFee        float64       `json:"highway_fee"`
	FixedCosts        float64       `json:"fixed_costs"`
	SameDayFixedPrice float64       `json:"same_day_fixed_price"`
	IsPremium         bool          `json:"is_premium"`
	PremiumSurcharge  float64       `json:"premium_surcharge"`
	EffectiveDate     time.Time     `json:"effective_date"`
	Status            PricingStatus `json:"status"`
}

type DayOffStatus string

const (
	DayOffPending  DayOffStatus = "PENDING"
	DayOffApproved DayOffStatus = "APPROVED"
	DayOffRejected DayOffStatus = "REJECTED"
)

// DriverDayOff spans StartDate..EndDate inclusive.
type DriverDayOff struct {
	ID        int64        `json:"id"`
	DriverID  int64        `json:"driver_id"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Status    DayOffStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
}

func (d DriverDayOff) Window() utils.Window {
	return utils.DateSpan(d.StartDate, d.EndDate)
}
