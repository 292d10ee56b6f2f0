package repositories

import (
	"context"

	intdb "charterops/internal/db"
	"charterops/internal/domain/models"
	"charterops/internal/utils"
)

// BookingRepository stores bookings and their category lines.
type BookingRepository struct {
	DB dbtx
}

// CreateBooking inserts the header and its lines; run it inside WithTx.
func (r BookingRepository) CreateBooking(ctx context.Context, b *models.Booking) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO bookings (
			customer_id, branch_id, hire_type_id, is_holiday, is_weekend, use_highway,
			extra_pickup_points, extra_dropoff_points, start_time, end_time,
			estimated_cost, total_cost, deposit_amount, status, created_by, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.CustomerID, b.BranchID, b.HireTypeID, b.IsHoliday, b.IsWeekend, b.UseHighway,
		b.ExtraPickupPoints, b.ExtraDropoffPoints, b.StartTime, b.EndTime,
		int64(b.EstimatedCost), int64(b.TotalCost), int64(b.DepositAmount),
		string(b.Status), b.CreatedBy, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return intdb.MapError("booking", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return intdb.MapError("booking", err)
	}
	b.ID = id

	for i := range b.Lines {
		b.Lines[i].BookingID = id
		if _, err := r.DB.ExecContext(ctx,
			`INSERT INTO booking_lines (booking_id, category_id, quantity) VALUES (?,?,?)`,
			id, b.Lines[i].CategoryID, b.Lines[i].Quantity); err != nil {
			return intdb.MapError("booking_line", err)
		}
	}
	return nil
}

const bookingColumns = `id, customer_id, branch_id, hire_type_id, is_holiday, is_weekend, use_highway,
	extra_pickup_points, extra_dropoff_points, start_time, end_time,
	estimated_cost, total_cost, deposit_amount, status, created_by, created_at, updated_at`

func scanBooking(sc interface{ Scan(...any) error }) (models.Booking, error) {
	var (
		b                         models.Booking
		estimated, total, deposit int64
		status                    string
	)
	err := sc.Scan(&b.ID, &b.CustomerID, &b.BranchID, &b.HireTypeID, &b.IsHoliday, &b.IsWeekend, &b.UseHighway,
		&b.ExtraPickupPoints, &b.ExtraDropoffPoints, &b.StartTime, &b.EndTime,
		&estimated, &total, &deposit, &status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return models.Booking{}, err
	}
	b.EstimatedCost = utils.Money(estimated)
	b.TotalCost = utils.Money(total)
	b.DepositAmount = utils.Money(deposit)
	b.Status = models.BookingStatus(status)
	return b, nil
}

func (r BookingRepository) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=? LIMIT 1`, id)
	b, err := scanBooking(row)
	if err != nil {
		return models.Booking{}, intdb.MapError("booking", err)
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	b.Lines = lines
	return b, nil
}

func (r BookingRepository) listLines(ctx context.Context, bookingID int64) ([]models.BookingLine, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT booking_id, category_id, quantity FROM booking_lines WHERE booking_id=? ORDER BY category_id`, bookingID)
	if err != nil {
		return nil, intdb.MapError("booking_line", err)
	}
	defer rows.Close()

	out := []models.BookingLine{}
	for rows.Next() {
		var l models.BookingLine
		if err := rows.Scan(&l.BookingID, &l.CategoryID, &l.Quantity); err != nil {
			return nil, intdb.MapError("booking_line", err)
		}
		out = append(out, l)
	}
	return out, intdb.MapError("booking_line", rows.Err())
}

func (r BookingRepository) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	return execOne(ctx, r.DB, "booking",
		`UPDATE bookings SET status=?, updated_at=? WHERE id=?`, string(status), utils.NowUTC(), id)
}

// ListUnstaffedBookings returns PENDING bookings that never got trips.
func (r BookingRepository) ListUnstaffedBookings(ctx context.Context, branchID int64) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b
		WHERE b.status='PENDING'
		  AND NOT EXISTS (SELECT 1 FROM trips t WHERE t.booking_id = b.id)`
	var args []any
	if branchID != 0 {
		query += ` AND b.branch_id=?`
		args = append(args, branchID)
	}
	query += ` ORDER BY b.id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, intdb.MapError("booking", err)
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, intdb.MapError("booking", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, intdb.MapError("booking", err)
	}
	for i := range out {
		lines, err := r.listLines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

// ListReservedDemand returns, per non-terminal trip of another holding
// booking at the branch, the booking's line quantity for the category and
// how many vehicles of that category the trip already carries.
func (r BookingRepository) ListReservedDemand(ctx context.Context, branchID, categoryID, excludeBookingID int64) ([]models.ReservedDemand, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT b.id, t.id, t.start_time, t.end_time, l.quantity,
			(SELECT COUNT(*) FROM trip_vehicles tv
				JOIN vehicles v ON v.id = tv.vehicle_id
				WHERE tv.trip_id = t.id AND v.category_id = l.category_id) AS attached
		FROM bookings b
		JOIN booking_lines l ON l.booking_id = b.id AND l.category_id = ?
		JOIN trips t ON t.booking_id = b.id
		WHERE b.branch_id = ?
		  AND b.id <> ?
		  AND b.status IN ('PENDING','CONFIRMED')
		  AND t.status NOT IN ('COMPLETED','CANCELLED')
		ORDER BY t.id`, categoryID, branchID, excludeBookingID)
	if err != nil {
		return nil, intdb.MapError("reserved_demand", err)
	}
	defer rows.Close()

	out := []models.ReservedDemand{}
	for rows.Next() {
		var d models.ReservedDemand
		if err := rows.Scan(&d.BookingID, &d.TripID, &d.Start, &d.End, &d.Quantity, &d.Attached); err != nil {
			return nil, intdb.MapError("reserved_demand", err)
		}
		out = append(out, d)
	}
	return out, intdb.MapError("reserved_demand", rows.Err())
}
