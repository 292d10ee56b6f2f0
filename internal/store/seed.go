package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"charterops/internal/domain/models"
	"charterops/internal/utils"
)

// Seed is the YAML fixture format loaded into a Memory store for local
// runs. Dates are YYYY-MM-DD.
type Seed struct {
	Branches   []SeedBranch   `yaml:"branches"`
	HireTypes  []SeedHireType `yaml:"hire_types"`
	Categories []SeedCategory `yaml:"categories"`
	Pricing    []SeedPricing  `yaml:"pricing"`
	Vehicles   []SeedVehicle  `yaml:"vehicles"`
	Drivers    []SeedDriver   `yaml:"drivers"`
	DayOffs    []SeedDayOff   `yaml:"day_offs"`
}

type SeedBranch struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Active bool   `yaml:"active"`
}

type SeedHireType struct {
	ID   int64  `yaml:"id"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type SeedCategory struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Active bool   `yaml:"active"`
}

type SeedPricing struct {
	CategoryID        int64   `yaml:"category_id"`
	BaseFare          float64 `yaml:"base_fare"`
	PricePerKm        float64 `yaml:"price_per_km"`
	HighwayFee        float64 `yaml:"highway_fee"`
	FixedCosts        float64 `yaml:"fixed_costs"`
	SameDayFixedPrice float64 `yaml:"same_day_fixed_price"`
	IsPremium         bool    `yaml:"is_premium"`
	PremiumSurcharge  float64 `yaml:"premium_surcharge"`
	EffectiveDate     string  `yaml:"effective_date"`
	Status            string  `yaml:"status"`
}

type SeedVehicle struct {
	ID               int64  `yaml:"id"`
	BranchID         int64  `yaml:"branch_id"`
	CategoryID       int64  `yaml:"category_id"`
	LicensePlate     string `yaml:"license_plate"`
	Capacity         int    `yaml:"capacity"`
	InspectionExpiry string `yaml:"inspection_expiry"`
	Status           string `yaml:"status"`
}

type SeedDriver struct {
	ID            int64   `yaml:"id"`
	BranchID      int64   `yaml:"branch_id"`
	Name          string  `yaml:"name"`
	Phone         string  `yaml:"phone"`
	LicenseNumber string  `yaml:"license_number"`
	LicenseClass  string  `yaml:"license_class"`
	LicenseExpiry string  `yaml:"license_expiry"`
	Rating        float64 `yaml:"rating"`
	PriorityLevel int     `yaml:"priority_level"`
	Status        string  `yaml:"status"`
}

type SeedDayOff struct {
	DriverID  int64  `yaml:"driver_id"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Status    string `yaml:"status"`
	Reason    string `yaml:"reason"`
}

// LoadSeedFile reads path and applies it to m.
func LoadSeedFile(m *Memory, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	return s.Apply(m)
}

// Apply writes every fixture into m. Status fields default to the
// AVAILABLE / ACTIVE values when empty.
func (s Seed) Apply(m *Memory) error {
	for _, b := range s.Branches {
		m.PutBranch(models.Branch{ID: b.ID, Name: b.Name, Active: b.Active})
	}
	for _, h := range s.HireTypes {
		m.PutHireType(models.HireType{ID: h.ID, Code: models.HireTypeCode(h.Code), Name: h.Name})
	}
	for _, c := range s.Categories {
		m.PutCategory(models.VehicleCategory{ID: c.ID, Name: c.Name, Active: c.Active})
	}
	for i, p := range s.Pricing {
		effective, err := utils.ParseDate(p.EffectiveDate)
		if err != nil {
			return fmt.Errorf("pricing[%d].effective_date: %w", i, err)
		}
		m.PutPricing(models.VehicleCategoryPricing{
			CategoryID:        p.CategoryID,
			BaseFare:          p.BaseFare,
			PricePerKm:        p.PricePerKm,
			HighwayFee:        p.HighwayFee,
			FixedCosts:        p.FixedCosts,
			SameDayFixedPrice: p.SameDayFixedPrice,
			IsPremium:         p.IsPremium,
			PremiumSurcharge:  p.PremiumSurcharge,
			EffectiveDate:     effective,
			Status:            models.PricingStatus(orDefault(p.Status, string(models.PricingActive))),
		})
	}
	for i, v := range s.Vehicles {
		inspection, err := optionalDate(v.InspectionExpiry)
		if err != nil {
			return fmt.Errorf("vehicles[%d].inspection_expiry: %w", i, err)
		}
		m.PutVehicle(models.Vehicle{
			ID:               v.ID,
			BranchID:         v.BranchID,
			CategoryID:       v.CategoryID,
			LicensePlate:     v.LicensePlate,
			Capacity:         v.Capacity,
			InspectionExpiry: inspection,
			Status:           models.VehicleStatus(orDefault(v.Status, string(models.VehicleAvailable))),
		})
	}
	for i, d := range s.Drivers {
		expiry, err := utils.ParseDate(d.LicenseExpiry)
		if err != nil {
			return fmt.Errorf("drivers[%d].license_expiry: %w", i, err)
		}
		m.PutDriver(models.Driver{
			ID:            d.ID,
			BranchID:      d.BranchID,
			Name:          d.Name,
			Phone:         utils.NormalizePhone(d.Phone),
			LicenseNumber: d.LicenseNumber,
			LicenseClass:  d.LicenseClass,
			LicenseExpiry: expiry,
			Rating:        d.Rating,
			PriorityLevel: d.PriorityLevel,
			Status:        models.DriverStatus(orDefault(d.Status, string(models.DriverAvailable))),
		})
	}
	for i, o := range s.DayOffs {
		start, err := utils.ParseDate(o.StartDate)
		if err != nil {
			return fmt.Errorf("day_offs[%d].start_date: %w", i, err)
		}
		end, err := utils.ParseDate(o.EndDate)
		if err != nil {
			return fmt.Errorf("day_offs[%d].end_date: %w", i, err)
		}
		m.PutDayOff(models.DriverDayOff{
			DriverID:  o.DriverID,
			StartDate: start,
			EndDate:   end,
			Status:    models.DayOffStatus(orDefault(o.Status, string(models.DayOffApproved))),
			Reason:    o.Reason,
		})
	}
	return nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := utils.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
