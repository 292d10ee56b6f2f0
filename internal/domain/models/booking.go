package models

import (
	"time"

	"charterops/internal/utils"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Holds reports whether the booking still reserves inventory.
func (s BookingStatus) Holds() bool {
	return s == BookingPending || s == BookingConfirmed
}

// Booking is a customer hire request spanning one or more legs.
type Booking struct {
	ID                 int64         `json:"id"`
	CustomerID         int64         `json:"customer_id"`
	BranchID           int64         `json:"branch_id"`
	HireTypeID         int64         `json:"hire_type_id"`
	IsHoliday          bool          `json:"is_holiday"`
	IsWeekend          bool          `json:"is_weekend"`
	UseHighway         bool          `json:"use_highway"`
	ExtraPickupPoints  int           `json:"extra_pickup_points"`
	ExtraDropoffPoints int           `json:"extra_dropoff_points"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	EstimatedCost      utils.Money   `json:"estimated_cost"`
	TotalCost          utils.Money   `json:"total_cost"`
	DepositAmount      utils.Money   `json:"deposit_amount"`
	Status             BookingStatus `json:"status"`
	CreatedBy          int64         `json:"created_by"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Lines              []BookingLine `json:"lines"`
	Trips              []Trip        `json:"trips,omitempty"`
}

// BookingLine requests Quantity vehicles of one category.
type BookingLine struct {
	BookingID  int64 `json:"booking_id,omitempty"`
	CategoryID int64 `json:"category_id"`
	Quantity   int   `json:"quantity"`
}

func (b Booking) Window() utils.Window {
	return utils.Window{Start: b.StartTime, End: b.EndTime}
}

// QuantityFor returns the requested quantity of a category, 0 if absent.
func (b Booking) QuantityFor(categoryID int64) int {
	n := 0
	for _, l := range b.Lines {
		if l.CategoryID == categoryID {
			n += l.Quantity
		}
	}
	return n
}

// TotalQuantity sums vehicles over all lines.
func (b Booking) TotalQuantity() int {
	n := 0
	for _, l := range b.Lines {
		n += l.Quantity
	}
	return n
}
