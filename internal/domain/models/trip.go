package models

import (
	"time"

	"charterops/internal/utils"
)

type TripStatus string

const (
	TripScheduled TripStatus = "SCHEDULED"
	TripAssigned  TripStatus = "ASSIGNED"
	TripOngoing   TripStatus = "ONGOING"
	TripCompleted TripStatus = "COMPLETED"
	TripCancelled TripStatus = "CANCELLED"
)

// Terminal trips never hold resources again.
func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

// Mutable is true while assignments may still change.
func (s TripStatus) Mutable() bool {
	return s == TripScheduled || s == TripAssigned
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled: {TripAssigned, TripCancelled},
	TripAssigned:  {TripScheduled, TripOngoing, TripCancelled},
	TripOngoing:   {TripCompleted, TripCancelled},
}

// CanTransition reports whether from -> to is a legal trip status change.
func CanTransition(from, to TripStatus) bool {
	if from == to {
		return true
	}
	for _, s := range tripTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Trip is one leg of a booking.
type Trip struct {
	ID              int64       `json:"id"`
	BookingID       int64       `json:"booking_id"`
	StartLocation   string      `json:"start_location"`
	EndLocation     string      `json:"end_location"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	DistanceKm      float64     `json:"distance_km"`
	IncidentalCosts utils.Money `json:"incidental_costs"`
	UseHighway      bool        `json:"use_highway"`
	Status          TripStatus  `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (t Trip) Window() utils.Window {
	return utils.Window{Start: t.StartTime, End: t.EndTime}
}

type TripDriver struct {
	TripID     int64      `json:"trip_id"`
	DriverID   int64      `json:"driver_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	Note       string     `json:"note,omitempty"`
}

type TripVehicle struct {
	TripID     int64     `json:"trip_id"`
	VehicleID  int64     `json:"vehicle_id"`
	AssignedAt time.Time `json:"assigned_at"`
	Note       string    `json:"note,omitempty"`
}

type AssignmentAction string

const (
	ActionAssign   AssignmentAction = "ASSIGN"
	ActionReassign AssignmentAction = "REASSIGN"
	ActionUnassign AssignmentAction = "UNASSIGN"
	ActionAccept   AssignmentAction = "ACCEPT"
	ActionCancel   AssignmentAction = "CANCEL"
)

type AssignmentMethod string

const (
	MethodAuto   AssignmentMethod = "AUTO"
	MethodManual AssignmentMethod = "MANUAL"
)

// TripAssignmentHistory is an insert-only audit row.
type TripAssignmentHistory struct {
	ID           int64            `json:"id"`
	TripID       int64            `json:"trip_id"`
	OldDriverID  *int64           `json:"old_driver_id,omitempty"`
	NewDriverID  *int64           `json:"new_driver_id,omitempty"`
	OldVehicleID *int64           `json:"old_vehicle_id,omitempty"`
	NewVehicleID *int64           `json:"new_vehicle_id,omitempty"`
	Action       AssignmentAction `json:"action"`
	Method       AssignmentMethod `json:"method"`
	ActorID      int64            `json:"actor_id"`
	Reason       string           `json:"reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// AssignmentWindow is a resource's occupancy on a non-terminal trip.
type AssignmentWindow struct {
	ResourceID int64
	TripID     int64
	Start      time.Time
	End        time.Time
}

func (a AssignmentWindow) Window() utils.Window {
	return utils.Window{Start: a.Start, End: a.End}
}

// ReservedDemand is one trip of another holding booking with its
// requested and already attached quantity for a category.
type ReservedDemand struct {
	BookingID int64
	TripID    int64
	Start     time.Time
	End       time.Time
	Quantity  int
	Attached  int
}

func (r ReservedDemand) Remainder() int {
	if r.Attached >= r.Quantity {
		return 0
	}
	return r.Quantity - r.Attached
}

// Int64Ptr is a small helper for optional ids in history rows.
func Int64Ptr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
