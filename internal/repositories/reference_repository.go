package repositories

import (
	"context"
	"time"

	intdb "charterops/internal/db"
	"charterops/internal/domain/models"
)

// ReferenceRepository reads branches, hire types, categories, tariffs
// and customers.
type ReferenceRepository struct {
	DB dbtx
}

func (r ReferenceRepository) GetBranch(ctx context.Context, id int64) (models.Branch, error) {
	var b models.Branch
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, active FROM branches WHERE id=? LIMIT 1`, id).
		Scan(&b.ID, &b.Name, &b.Active)
	if err != nil {
		return models.Branch{}, intdb.MapError("branch", err)
	}
	return b, nil
}

func (r ReferenceRepository) GetHireType(ctx context.Context, id int64) (models.HireType, error) {
	var h models.HireType
	var code string
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, code, name FROM hire_types WHERE id=? LIMIT 1`, id).
		Scan(&h.ID, &code, &h.Name)
	if err != nil {
		return models.HireType{}, intdb.MapError("hire_type", err)
	}
	h.Code = models.HireTypeCode(code)
	return h, nil
}

func (r ReferenceRepository) ListActiveCategories(ctx context.Context) ([]models.VehicleCategory, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, name, active FROM vehicle_categories WHERE active=1 ORDER BY id`)
	if err != nil {
		return nil, intdb.MapError("vehicle_category", err)
	}
	defer rows.Close()

	out := []models.VehicleCategory{}
	for rows.Next() {
		var c models.VehicleCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, intdb.MapError("vehicle_category", err)
		}
		out = append(out, c)
	}
	return out, intdb.MapError("vehicle_category", rows.Err())
}

// GetEffectivePricing returns the latest row with effective_date <= at,
// whatever its status; callers decide whether an INACTIVE row counts.
func (r ReferenceRepository) GetEffectivePricing(ctx context.Context, categoryID int64, at time.Time) (models.VehicleCategoryPricing, error) {
	var (
		p      models.VehicleCategoryPricing
		status string
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT p.id, p.category_id, COALESCE(c.name,''),
			p.base_fare, p.price_per_km, p.highway_fee, p.fixed_costs,
			p.same_day_fixed_price, p.is_premium, p.premium_surcharge,
			p.effective_date, p.status
		FROM vehicle_category_pricing p
		LEFT JOIN vehicle_categories c ON c.id = p.category_id
		WHERE p.category_id=? AND p.effective_date <= ?
		ORDER BY p.effective_date DESC, p.id DESC
		LIMIT 1`, categoryID, at).
		Scan(&p.ID, &p.CategoryID, &p.CategoryName,
			&p.BaseFare, &p.PricePerKm, &p.HighwayFee, &p.FixedCosts,
			&p.SameDayFixedPrice, &p.IsPremium, &p.PremiumSurcharge,
			&p.EffectiveDate, &status)
	if err != nil {
		return models.VehicleCategoryPricing{}, intdb.MapError("pricing", err)
	}
	p.Status = models.PricingStatus(status)
	return p, nil
}

func (r ReferenceRepository) FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	var c models.Customer
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, phone, name FROM customers WHERE phone=? LIMIT 1`, phone).
		Scan(&c.ID, &c.Phone, &c.Name)
	if err != nil {
		return models.Customer{}, intdb.MapError("customer", err)
	}
	return c, nil
}

func (r ReferenceRepository) CreateCustomer(ctx context.Context, c *models.Customer) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO customers (phone, name) VALUES (?, ?)`, c.Phone, c.Name)
	if err != nil {
		return intdb.MapError("customer", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return intdb.MapError("customer", err)
	}
	c.ID = id
	return nil
}
