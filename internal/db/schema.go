package db

import (
	"context"
	"database/sql"
	"fmt"

	"charterops/internal/utils"
)

type tableDDL struct {
	name string
	ddl  string
}

var schema = []tableDDL{
	{"branches", `CREATE TABLE IF NOT EXISTS branches (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		active TINYINT(1) NOT NULL DEFAULT 1
	)`},
	{"hire_types", `CREATE TABLE IF NOT EXISTS hire_types (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(32) NOT NULL,
		name VARCHAR(120) NOT NULL DEFAULT ''
	)`},
	{"vehicle_categories", `CREATE TABLE IF NOT EXISTS vehicle_categories (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		active TINYINT(1) NOT NULL DEFAULT 1
	)`},
	{"vehicle_category_pricing", `CREATE TABLE IF NOT EXISTS vehicle_category_pricing (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		category_id BIGINT NOT NULL,
		base_fare DECIMAL(14,2) NOT NULL DEFAULT 0,
		price_per_km DECIMAL(14,2) NOT NULL DEFAULT 0,
		highway_fee DECIMAL(14,2) NOT NULL DEFAULT 0,
		fixed_costs DECIMAL(14,2) NOT NULL DEFAULT 0,
		same_day_fixed_price DECIMAL(14,2) NOT NULL DEFAULT 0,
		is_premium TINYINT(1) NOT NULL DEFAULT 0,
		premium_surcharge DECIMAL(14,2) NOT NULL DEFAULT 0,
		effective_date DATETIME NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE',
		KEY idx_pricing_category_date (category_id, effective_date)
	)`},
	{"customers", `CREATE TABLE IF NOT EXISTS customers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		phone VARCHAR(32) NOT NULL,
		name VARCHAR(160) NOT NULL DEFAULT '',
		UNIQUE KEY uq_customers_phone (phone)
	)`},
	{"vehicles", `CREATE TABLE IF NOT EXISTS vehicles (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		branch_id BIGINT NOT NULL,
		category_id BIGINT NOT NULL,
		license_plate VARCHAR(32) NOT NULL,
		capacity INT NOT NULL DEFAULT 0,
		inspection_expiry DATE NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE',
		KEY idx_vehicles_branch_category (branch_id, category_id)
	)`},
	{"drivers", `CREATE TABLE IF NOT EXISTS drivers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		branch_id BIGINT NOT NULL,
		name VARCHAR(160) NOT NULL,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		license_number VARCHAR(64) NOT NULL DEFAULT '',
		license_class VARCHAR(16) NOT NULL DEFAULT '',
		license_expiry DATE NOT NULL,
		health_check_date DATE NULL,
		rating DECIMAL(3,2) NOT NULL DEFAULT 0,
		priority_level INT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE',
		KEY idx_drivers_branch (branch_id)
	)`},
	{"driver_day_offs", `CREATE TABLE IF NOT EXISTS driver_day_offs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		driver_id BIGINT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		reason VARCHAR(255) NOT NULL DEFAULT '',
		KEY idx_day_offs_driver (driver_id)
	)`},
	{"bookings", `CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		branch_id BIGINT NOT NULL,
		hire_type_id BIGINT NOT NULL,
		is_holiday TINYINT(1) NOT NULL DEFAULT 0,
		is_weekend TINYINT(1) NOT NULL DEFAULT 0,
		use_highway TINYINT(1) NOT NULL DEFAULT 0,
		extra_pickup_points INT NOT NULL DEFAULT 0,
		extra_dropoff_points INT NOT NULL DEFAULT 0,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		estimated_cost BIGINT NOT NULL DEFAULT 0,
		total_cost BIGINT NOT NULL DEFAULT 0,
		deposit_amount BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		created_by BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_bookings_branch_status (branch_id, status)
	)`},
	{"booking_lines", `CREATE TABLE IF NOT EXISTS booking_lines (
		booking_id BIGINT NOT NULL,
		category_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (booking_id, category_id)
	)`},
	{"trips", `CREATE TABLE IF NOT EXISTS trips (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT NOT NULL,
		start_location VARCHAR(255) NOT NULL DEFAULT '',
		end_location VARCHAR(255) NOT NULL DEFAULT '',
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		distance_km DECIMAL(10,2) NOT NULL DEFAULT 0,
		incidental_costs BIGINT NOT NULL DEFAULT 0,
		use_highway TINYINT(1) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'SCHEDULED',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_trips_booking (booking_id),
		KEY idx_trips_window (start_time, end_time)
	)`},
	{"trip_drivers", `CREATE TABLE IF NOT EXISTS trip_drivers (
		trip_id BIGINT NOT NULL,
		driver_id BIGINT NOT NULL,
		assigned_at DATETIME NOT NULL,
		accepted_at DATETIME NULL,
		note VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (trip_id, driver_id),
		KEY idx_trip_drivers_driver (driver_id)
	)`},
	{"trip_vehicles", `CREATE TABLE IF NOT EXISTS trip_vehicles (
		trip_id BIGINT NOT NULL,
		vehicle_id BIGINT NOT NULL,
		assigned_at DATETIME NOT NULL,
		note VARCHAR(255) NOT NULL DEFAULT '',
		PRIMARY KEY (trip_id, vehicle_id),
		KEY idx_trip_vehicles_vehicle (vehicle_id)
	)`},
	{"trip_assignment_history", `CREATE TABLE IF NOT EXISTS trip_assignment_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		trip_id BIGINT NOT NULL,
		old_driver_id BIGINT NULL,
		new_driver_id BIGINT NULL,
		old_vehicle_id BIGINT NULL,
		new_vehicle_id BIGINT NULL,
		action VARCHAR(16) NOT NULL,
		method VARCHAR(16) NOT NULL,
		actor_id BIGINT NOT NULL DEFAULT 0,
		reason VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		KEY idx_history_trip (trip_id)
	)`},
}

// EnsureSchema creates missing tables and backfills columns added after
// the first release. Existing tables are left untouched otherwise.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	for _, t := range schema {
		if HasTable(ctx, conn, t.name) {
			continue
		}
		if _, err := conn.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
		utils.LogEvent(ctx, "DB", "create_table", t.name)
	}
	if !HasColumn(ctx, conn, "trip_drivers", "accepted_at") {
		if _, err := conn.ExecContext(ctx, `ALTER TABLE trip_drivers ADD COLUMN accepted_at DATETIME NULL AFTER assigned_at`); err != nil {
			return fmt.Errorf("alter trip_drivers: %w", err)
		}
		utils.LogEvent(ctx, "DB", "add_column", "trip_drivers.accepted_at")
	}
	return nil
}
