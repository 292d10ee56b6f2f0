package repositories

import (
	"context"
	"database/sql"
	"strings"

	intdb "charterops/internal/db"
	"charterops/internal/domain/models"
	"charterops/internal/store"
)

// FleetRepository covers vehicles, drivers, day-offs and their occupancy.
type FleetRepository struct {
	DB dbtx
}

const vehicleColumns = `id, branch_id, category_id, license_plate, capacity, inspection_expiry, status`

func scanVehicle(sc interface{ Scan(...any) error }) (models.Vehicle, error) {
	var (
		v          models.Vehicle
		inspection sql.NullTime
		status     string
	)
	if err := sc.Scan(&v.ID, &v.BranchID, &v.CategoryID, &v.LicensePlate, &v.Capacity, &inspection, &status); err != nil {
		return models.Vehicle{}, err
	}
	v.InspectionExpiry = timePtr(inspection)
	v.Status = models.VehicleStatus(status)
	return v, nil
}

func (r FleetRepository) ListVehicles(ctx context.Context, f store.VehicleFilter) ([]models.Vehicle, error) {
	var (
		where []string
		args  []any
	)
	if f.BranchID != 0 {
		where = append(where, "branch_id=?")
		args = append(args, f.BranchID)
	}
	if f.CategoryID != 0 {
		where = append(where, "category_id=?")
		args = append(args, f.CategoryID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, intdb.MapError("vehicle", err)
	}
	defer rows.Close()

	out := []models.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, intdb.MapError("vehicle", err)
		}
		out = append(out, v)
	}
	return out, intdb.MapError("vehicle", rows.Err())
}

func (r FleetRepository) GetVehicle(ctx context.Context, id int64, forUpdate bool) (models.Vehicle, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id=?`+lockSuffix(forUpdate), id)
	v, err := scanVehicle(row)
	if err != nil {
		return models.Vehicle{}, intdb.MapError("vehicle", err)
	}
	return v, nil
}

func (r FleetRepository) UpdateVehicleStatus(ctx context.Context, id int64, status models.VehicleStatus) error {
	return execOne(ctx, r.DB, "vehicle", `UPDATE vehicles SET status=? WHERE id=?`, string(status), id)
}

const driverColumns = `id, branch_id, name, phone, license_number, license_class,
	license_expiry, health_check_date, rating, priority_level, status`

func scanDriver(sc interface{ Scan(...any) error }) (models.Driver, error) {
	var (
		d      models.Driver
		health sql.NullTime
		status string
	)
	if err := sc.Scan(&d.ID, &d.BranchID, &d.Name, &d.Phone, &d.LicenseNumber, &d.LicenseClass,
		&d.LicenseExpiry, &health, &d.Rating, &d.PriorityLevel, &status); err != nil {
		return models.Driver{}, err
	}
	d.HealthCheckDate = timePtr(health)
	d.Status = models.DriverStatus(status)
	return d, nil
}

func (r FleetRepository) ListDrivers(ctx context.Context, branchID int64) ([]models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers`
	var args []any
	if branchID != 0 {
		query += ` WHERE branch_id=?`
		args = append(args, branchID)
	}
	query += ` ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, intdb.MapError("driver", err)
	}
	defer rows.Close()

	out := []models.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, intdb.MapError("driver", err)
		}
		out = append(out, d)
	}
	return out, intdb.MapError("driver", rows.Err())
}

func (r FleetRepository) GetDriver(ctx context.Context, id int64, forUpdate bool) (models.Driver, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE id=?`+lockSuffix(forUpdate), id)
	d, err := scanDriver(row)
	if err != nil {
		return models.Driver{}, intdb.MapError("driver", err)
	}
	return d, nil
}

func (r FleetRepository) UpdateDriverStatus(ctx context.Context, id int64, status models.DriverStatus) error {
	return execOne(ctx, r.DB, "driver", `UPDATE drivers SET status=? WHERE id=?`, string(status), id)
}

func (r FleetRepository) ListDayOffs(ctx context.Context, driverIDs []int64) ([]models.DriverDayOff, error) {
	if len(driverIDs) == 0 {
		return []models.DriverDayOff{}, nil
	}
	in, args := inClause(driverIDs)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, driver_id, start_date, end_date, status, reason
		FROM driver_day_offs
		WHERE driver_id IN (`+in+`)
		ORDER BY driver_id, start_date`, args...)
	if err != nil {
		return nil, intdb.MapError("day_off", err)
	}
	defer rows.Close()

	out := []models.DriverDayOff{}
	for rows.Next() {
		var (
			o      models.DriverDayOff
			status string
		)
		if err := rows.Scan(&o.ID, &o.DriverID, &o.StartDate, &o.EndDate, &status, &o.Reason); err != nil {
			return nil, intdb.MapError("day_off", err)
		}
		o.Status = models.DayOffStatus(status)
		out = append(out, o)
	}
	return out, intdb.MapError("day_off", rows.Err())
}

func (r FleetRepository) ListVehicleWindows(ctx context.Context, vehicleIDs []int64) ([]models.AssignmentWindow, error) {
	return r.windows(ctx, "trip_vehicles", "vehicle_id", vehicleIDs)
}

func (r FleetRepository) ListDriverWindows(ctx context.Context, driverIDs []int64) ([]models.AssignmentWindow, error) {
	return r.windows(ctx, "trip_drivers", "driver_id", driverIDs)
}

// windows lists occupancy of resources on trips that are not yet terminal.
func (r FleetRepository) windows(ctx context.Context, table, column string, ids []int64) ([]models.AssignmentWindow, error) {
	if len(ids) == 0 {
		return []models.AssignmentWindow{}, nil
	}
	in, args := inClause(ids)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT a.`+column+`, t.id, t.start_time, t.end_time
		FROM `+table+` a
		JOIN trips t ON t.id = a.trip_id
		WHERE a.`+column+` IN (`+in+`)
		  AND t.status NOT IN ('COMPLETED','CANCELLED')
		ORDER BY t.start_time`, args...)
	if err != nil {
		return nil, intdb.MapError(table, err)
	}
	defer rows.Close()

	out := []models.AssignmentWindow{}
	for rows.Next() {
		var w models.AssignmentWindow
		if err := rows.Scan(&w.ResourceID, &w.TripID, &w.Start, &w.End); err != nil {
			return nil, intdb.MapError(table, err)
		}
		out = append(out, w)
	}
	return out, intdb.MapError(table, rows.Err())
}

// execOne runs a single-row write and reports a missing row as not found.
func execOne(ctx context.Context, q dbtx, resource, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return intdb.MapError(resource, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return intdb.MapError(resource, err)
	}
	if n == 0 {
		return intdb.MapError(resource, sql.ErrNoRows)
	}
	return nil
}
