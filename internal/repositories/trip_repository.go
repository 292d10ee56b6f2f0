package repositories

import (
	"context"
	"database/sql"
	"time"

	intdb "charterops/internal/db"
	"charterops/internal/domain/models"
	"charterops/internal/utils"
)

// TripRepository stores trips, their driver/vehicle join rows and the
// assignment audit trail.
type TripRepository struct {
	DB dbtx
}

func (r TripRepository) CreateTrip(ctx context.Context, t *models.Trip) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO trips (
			booking_id, start_location, end_location, start_time, end_time,
			distance_km, incidental_costs, use_highway, status, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.BookingID, t.StartLocation, t.EndLocation, t.StartTime, t.EndTime,
		t.DistanceKm, int64(t.IncidentalCosts), t.UseHighway, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return intdb.MapError("trip", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return intdb.MapError("trip", err)
	}
	t.ID = id
	return nil
}

const tripColumns = `id, booking_id, start_location, end_location, start_time, end_time,
	distance_km, incidental_costs, use_highway, status, created_at, updated_at`

func scanTrip(sc interface{ Scan(...any) error }) (models.Trip, error) {
	var (
		t          models.Trip
		incidental int64
		status     string
	)
	err := sc.Scan(&t.ID, &t.BookingID, &t.StartLocation, &t.EndLocation, &t.StartTime, &t.EndTime,
		&t.DistanceKm, &incidental, &t.UseHighway, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Trip{}, err
	}
	t.IncidentalCosts = utils.Money(incidental)
	t.Status = models.TripStatus(status)
	return t, nil
}

func (r TripRepository) GetTrip(ctx context.Context, id int64, forUpdate bool) (models.Trip, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=?`+lockSuffix(forUpdate), id)
	t, err := scanTrip(row)
	if err != nil {
		return models.Trip{}, intdb.MapError("trip", err)
	}
	return t, nil
}

func (r TripRepository) ListTripsByBooking(ctx context.Context, bookingID int64) ([]models.Trip, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE booking_id=? ORDER BY id`, bookingID)
	if err != nil {
		return nil, intdb.MapError("trip", err)
	}
	defer rows.Close()

	out := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, intdb.MapError("trip", err)
		}
		out = append(out, t)
	}
	return out, intdb.MapError("trip", rows.Err())
}

func (r TripRepository) UpdateTripStatus(ctx context.Context, id int64, status models.TripStatus) error {
	return execOne(ctx, r.DB, "trip",
		`UPDATE trips SET status=?, updated_at=? WHERE id=?`, string(status), utils.NowUTC(), id)
}

func (r TripRepository) ListTripDrivers(ctx context.Context, tripID int64) ([]models.TripDriver, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT trip_id, driver_id, assigned_at, accepted_at, note
		FROM trip_drivers WHERE trip_id=? ORDER BY assigned_at, driver_id`, tripID)
	if err != nil {
		return nil, intdb.MapError("trip_driver", err)
	}
	defer rows.Close()

	out := []models.TripDriver{}
	for rows.Next() {
		var (
			td       models.TripDriver
			accepted sql.NullTime
		)
		if err := rows.Scan(&td.TripID, &td.DriverID, &td.AssignedAt, &accepted, &td.Note); err != nil {
			return nil, intdb.MapError("trip_driver", err)
		}
		td.AcceptedAt = timePtr(accepted)
		out = append(out, td)
	}
	return out, intdb.MapError("trip_driver", rows.Err())
}

func (r TripRepository) AddTripDriver(ctx context.Context, td models.TripDriver) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO trip_drivers (trip_id, driver_id, assigned_at, note) VALUES (?,?,?,?)`,
		td.TripID, td.DriverID, td.AssignedAt, td.Note)
	return intdb.MapError("trip_driver", err)
}

func (r TripRepository) RemoveTripDriver(ctx context.Context, tripID, driverID int64) error {
	return execOne(ctx, r.DB, "trip_driver",
		`DELETE FROM trip_drivers WHERE trip_id=? AND driver_id=?`, tripID, driverID)
}

func (r TripRepository) SetDriverAccepted(ctx context.Context, tripID, driverID int64, at time.Time) error {
	return execOne(ctx, r.DB, "trip_driver",
		`UPDATE trip_drivers SET accepted_at=? WHERE trip_id=? AND driver_id=?`, at, tripID, driverID)
}

func (r TripRepository) ListTripVehicles(ctx context.Context, tripID int64) ([]models.TripVehicle, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT trip_id, vehicle_id, assigned_at, note
		FROM trip_vehicles WHERE trip_id=? ORDER BY assigned_at, vehicle_id`, tripID)
	if err != nil {
		return nil, intdb.MapError("trip_vehicle", err)
	}
	defer rows.Close()

	out := []models.TripVehicle{}
	for rows.Next() {
		var tv models.TripVehicle
		if err := rows.Scan(&tv.TripID, &tv.VehicleID, &tv.AssignedAt, &tv.Note); err != nil {
			return nil, intdb.MapError("trip_vehicle", err)
		}
		out = append(out, tv)
	}
	return out, intdb.MapError("trip_vehicle", rows.Err())
}

func (r TripRepository) AddTripVehicle(ctx context.Context, tv models.TripVehicle) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO trip_vehicles (trip_id, vehicle_id, assigned_at, note) VALUES (?,?,?,?)`,
		tv.TripID, tv.VehicleID, tv.AssignedAt, tv.Note)
	return intdb.MapError("trip_vehicle", err)
}

func (r TripRepository) RemoveTripVehicle(ctx context.Context, tripID, vehicleID int64) error {
	return execOne(ctx, r.DB, "trip_vehicle",
		`DELETE FROM trip_vehicles WHERE trip_id=? AND vehicle_id=?`, tripID, vehicleID)
}

// AppendHistory is the only write path for trip_assignment_history.
func (r TripRepository) AppendHistory(ctx context.Context, h *models.TripAssignmentHistory) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO trip_assignment_history (
			trip_id, old_driver_id, new_driver_id, old_vehicle_id, new_vehicle_id,
			action, method, actor_id, reason, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		h.TripID, nullInt64(h.OldDriverID), nullInt64(h.NewDriverID),
		nullInt64(h.OldVehicleID), nullInt64(h.NewVehicleID),
		string(h.Action), string(h.Method), h.ActorID, h.Reason, h.CreatedAt)
	if err != nil {
		return intdb.MapError("assignment_history", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return intdb.MapError("assignment_history", err)
	}
	h.ID = id
	return nil
}

func (r TripRepository) ListHistory(ctx context.Context, tripID int64) ([]models.TripAssignmentHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, trip_id, old_driver_id, new_driver_id, old_vehicle_id, new_vehicle_id,
			action, method, actor_id, reason, created_at
		FROM trip_assignment_history WHERE trip_id=? ORDER BY id`, tripID)
	if err != nil {
		return nil, intdb.MapError("assignment_history", err)
	}
	defer rows.Close()

	out := []models.TripAssignmentHistory{}
	for rows.Next() {
		var (
			h              models.TripAssignmentHistory
			oldD, newD     sql.NullInt64
			oldV, newV     sql.NullInt64
			action, method string
		)
		if err := rows.Scan(&h.ID, &h.TripID, &oldD, &newD, &oldV, &newV,
			&action, &method, &h.ActorID, &h.Reason, &h.CreatedAt); err != nil {
			return nil, intdb.MapError("assignment_history", err)
		}
		h.OldDriverID, h.NewDriverID = int64Ptr(oldD), int64Ptr(newD)
		h.OldVehicleID, h.NewVehicleID = int64Ptr(oldV), int64Ptr(newV)
		h.Action = models.AssignmentAction(action)
		h.Method = models.AssignmentMethod(method)
		out = append(out, h)
	}
	return out, intdb.MapError("assignment_history", rows.Err())
}
