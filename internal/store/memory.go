package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"charterops/internal/domain"
	"charterops/internal/domain/models"
)

// Memory is an in-process Store used by tests and STORE_DRIVER=memory.
// Transactions are serialized under one mutex; a failed transaction
// restores the snapshot taken when it began.
type Memory struct {
	mu   *sync.Mutex
	d    *memData
	inTx bool
}

type memData struct {
	ids map[string]int64

	branches     map[int64]models.Branch
	hireTypes    map[int64]models.HireType
	categories   map[int64]models.VehicleCategory
	pricing      []models.VehicleCategoryPricing
	customers    map[int64]models.Customer
	vehicles     map[int64]models.Vehicle
	drivers      map[int64]models.Driver
	dayOffs      []models.DriverDayOff
	bookings     map[int64]models.Booking
	trips        map[int64]models.Trip
	tripDrivers  []models.TripDriver
	tripVehicles []models.TripVehicle
	history      []models.TripAssignmentHistory
}

func NewMemory() *Memory {
	return &Memory{
		mu: &sync.Mutex{},
		d: &memData{
			ids:        map[string]int64{},
			branches:   map[int64]models.Branch{},
			hireTypes:  map[int64]models.HireType{},
			categories: map[int64]models.VehicleCategory{},
			customers:  map[int64]models.Customer{},
			vehicles:   map[int64]models.Vehicle{},
			drivers:    map[int64]models.Driver{},
			bookings:   map[int64]models.Booking{},
			trips:      map[int64]models.Trip{},
		},
	}
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (d *memData) next(table string) int64 {
	d.ids[table]++
	return d.ids[table]
}

// bump keeps generated ids ahead of explicitly seeded ones.
func (d *memData) bump(table string, id int64) int64 {
	if id == 0 {
		return d.next(table)
	}
	if id > d.ids[table] {
		d.ids[table] = id
	}
	return id
}

func (d *memData) clone() *memData {
	c := &memData{
		ids:          cloneMap(d.ids),
		branches:     cloneMap(d.branches),
		hireTypes:    cloneMap(d.hireTypes),
		categories:   cloneMap(d.categories),
		pricing:      append([]models.VehicleCategoryPricing(nil), d.pricing...),
		customers:    cloneMap(d.customers),
		vehicles:     cloneMap(d.vehicles),
		drivers:      cloneMap(d.drivers),
		dayOffs:      append([]models.DriverDayOff(nil), d.dayOffs...),
		bookings:     make(map[int64]models.Booking, len(d.bookings)),
		trips:        cloneMap(d.trips),
		tripDrivers:  append([]models.TripDriver(nil), d.tripDrivers...),
		tripVehicles: append([]models.TripVehicle(nil), d.tripVehicles...),
		history:      append([]models.TripAssignmentHistory(nil), d.history...),
	}
	for id, b := range d.bookings {
		b.Lines = append([]models.BookingLine(nil), b.Lines...)
		c.bookings[id] = b
	}
	return c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.d.clone()
	if err := fn(&Memory{mu: m.mu, d: m.d, inTx: true}); err != nil {
		*m.d = *snap
		return err
	}
	return nil
}

// Seeding helpers. Zero ids are assigned.

func (m *Memory) PutBranch(b models.Branch) models.Branch {
	defer m.lock()()
	b.ID = m.d.bump("branches", b.ID)
	m.d.branches[b.ID] = b
	return b
}

func (m *Memory) PutHireType(h models.HireType) models.HireType {
	defer m.lock()()
	h.ID = m.d.bump("hire_types", h.ID)
	m.d.hireTypes[h.ID] = h
	return h
}

func (m *Memory) PutCategory(c models.VehicleCategory) models.VehicleCategory {
	defer m.lock()()
	c.ID = m.d.bump("categories", c.ID)
	m.d.categories[c.ID] = c
	return c
}

func (m *Memory) PutPricing(p models.VehicleCategoryPricing) models.VehicleCategoryPricing {
	defer m.lock()()
	p.ID = m.d.bump("pricing", p.ID)
	m.d.pricing = append(m.d.pricing, p)
	return p
}

func (m *Memory) PutVehicle(v models.Vehicle) models.Vehicle {
	defer m.lock()()
	v.ID = m.d.bump("vehicles", v.ID)
	m.d.vehicles[v.ID] = v
	return v
}

func (m *Memory) PutDriver(dr models.Driver) models.Driver {
	defer m.lock()()
	dr.ID = m.d.bump("drivers", dr.ID)
	m.d.drivers[dr.ID] = dr
	return dr
}

func (m *Memory) PutDayOff(o models.DriverDayOff) models.DriverDayOff {
	defer m.lock()()
	o.ID = m.d.bump("day_offs", o.ID)
	m.d.dayOffs = append(m.d.dayOffs, o)
	return o
}

// Reference data

func (m *Memory) GetBranch(ctx context.Context, id int64) (models.Branch, error) {
	defer m.lock()()
	b, ok := m.d.branches[id]
	if !ok {
		return models.Branch{}, domain.NotFoundError{Resource: "branch"}
	}
	return b, nil
}

func (m *Memory) GetHireType(ctx context.Context, id int64) (models.HireType, error) {
	defer m.lock()()
	h, ok := m.d.hireTypes[id]
	if !ok {
		return models.HireType{}, domain.NotFoundError{Resource: "hire_type"}
	}
	return h, nil
}

func (m *Memory) ListActiveCategories(ctx context.Context) ([]models.VehicleCategory, error) {
	defer m.lock()()
	out := make([]models.VehicleCategory, 0, len(m.d.categories))
	for _, c := range m.d.categories {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetEffectivePricing(ctx context.Context, categoryID int64, at time.Time) (models.VehicleCategoryPricing, error) {
	defer m.lock()()
	var (
		best  models.VehicleCategoryPricing
		found bool
	)
	for _, p := range m.d.pricing {
		if p.CategoryID != categoryID || p.EffectiveDate.After(at) {
			continue
		}
		if !found || p.EffectiveDate.After(best.EffectiveDate) ||
			(p.EffectiveDate.Equal(best.EffectiveDate) && p.ID > best.ID) {
			best, found = p, true
		}
	}
	if !found {
		return models.VehicleCategoryPricing{}, domain.NotFoundError{Resource: "pricing"}
	}
	return best, nil
}

// Customers

func (m *Memory) FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	defer m.lock()()
	for _, c := range m.d.customers {
		if c.Phone == phone {
			return c, nil
		}
	}
	return models.Customer{}, domain.NotFoundError{Resource: "customer"}
}

func (m *Memory) CreateCustomer(ctx context.Context, c *models.Customer) error {
	defer m.lock()()
	for _, existing := range m.d.customers {
		if existing.Phone == c.Phone {
			return domain.ConflictError{Resource: "customer", Msg: "phone already registered"}
		}
	}
	c.ID = m.d.next("customers")
	m.d.customers[c.ID] = *c
	return nil
}

// Fleet

func (m *Memory) ListVehicles(ctx context.Context, f VehicleFilter) ([]models.Vehicle, error) {
	defer m.lock()()
	out := []models.Vehicle{}
	for _, v := range m.d.vehicles {
		if f.Match(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id int64, forUpdate bool) (models.Vehicle, error) {
	defer m.lock()()
	v, ok := m.d.vehicles[id]
	if !ok {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle"}
	}
	return v, nil
}

func (m *Memory) UpdateVehicleStatus(ctx context.Context, id int64, status models.VehicleStatus) error {
	defer m.lock()()
	v, ok := m.d.vehicles[id]
	if !ok {
		return domain.NotFoundError{Resource: "vehicle"}
	}
	v.Status = status
	m.d.vehicles[id] = v
	return nil
}

func (m *Memory) ListDrivers(ctx context.Context, branchID int64) ([]models.Driver, error) {
	defer m.lock()()
	out := []models.Driver{}
	for _, d := range m.d.drivers {
		if branchID == 0 || d.BranchID == branchID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDriver(ctx context.Context, id int64, forUpdate bool) (models.Driver, error) {
	defer m.lock()()
	d, ok := m.d.drivers[id]
	if !ok {
		return models.Driver{}, domain.NotFoundError{Resource: "driver"}
	}
	return d, nil
}

func (m *Memory) UpdateDriverStatus(ctx context.Context, id int64, status models.DriverStatus) error {
	defer m.lock()()
	d, ok := m.d.drivers[id]
	if !ok {
		return domain.NotFoundError{Resource: "driver"}
	}
	d.Status = status
	m.d.drivers[id] = d
	return nil
}

func (m *Memory) ListDayOffs(ctx context.Context, driverIDs []int64) ([]models.DriverDayOff, error) {
	defer m.lock()()
	want := idSet(driverIDs)
	out := []models.DriverDayOff{}
	for _, o := range m.d.dayOffs {
		if want[o.DriverID] {
			out = append(out, o)
		}
	}
	return out, nil
}

// Occupancy

func (m *Memory) ListVehicleWindows(ctx context.Context, vehicleIDs []int64) ([]models.AssignmentWindow, error) {
	defer m.lock()()
	want := idSet(vehicleIDs)
	out := []models.AssignmentWindow{}
	for _, tv := range m.d.tripVehicles {
		if !want[tv.VehicleID] {
			continue
		}
		if t, ok := m.d.trips[tv.TripID]; ok && !t.Status.Terminal() {
			out = append(out, models.AssignmentWindow{ResourceID: tv.VehicleID, TripID: t.ID, Start: t.StartTime, End: t.EndTime})
		}
	}
	return out, nil
}

func (m *Memory) ListDriverWindows(ctx context.Context, driverIDs []int64) ([]models.AssignmentWindow, error) {
	defer m.lock()()
	want := idSet(driverIDs)
	out := []models.AssignmentWindow{}
	for _, td := range m.d.tripDrivers {
		if !want[td.DriverID] {
			continue
		}
		if t, ok := m.d.trips[td.TripID]; ok && !t.Status.Terminal() {
			out = append(out, models.AssignmentWindow{ResourceID: td.DriverID, TripID: t.ID, Start: t.StartTime, End: t.EndTime})
		}
	}
	return out, nil
}

func (m *Memory) ListReservedDemand(ctx context.Context, branchID, categoryID, excludeBookingID int64) ([]models.ReservedDemand, error) {
	defer m.lock()()
	out := []models.ReservedDemand{}
	for _, b := range m.d.bookings {
		if b.BranchID != branchID || b.ID == excludeBookingID || !b.Status.Holds() {
			continue
		}
		qty := b.QuantityFor(categoryID)
		if qty <= 0 {
			continue
		}
		for _, t := range m.d.trips {
			if t.BookingID != b.ID || t.Status.Terminal() {
				continue
			}
			attached := 0
			for _, tv := range m.d.tripVehicles {
				if tv.TripID == t.ID && m.d.vehicles[tv.VehicleID].CategoryID == categoryID {
					attached++
				}
			}
			out = append(out, models.ReservedDemand{
				BookingID: b.ID, TripID: t.ID, Start: t.StartTime, End: t.EndTime,
				Quantity: qty, Attached: attached,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	return out, nil
}

// Bookings

func (m *Memory) CreateBooking(ctx context.Context, b *models.Booking) error {
	defer m.lock()()
	b.ID = m.d.next("bookings")
	for i := range b.Lines {
		b.Lines[i].BookingID = b.ID
	}
	stored := *b
	stored.Lines = append([]models.BookingLine(nil), b.Lines...)
	stored.Trips = nil
	m.d.bookings[b.ID] = stored
	return nil
}

func (m *Memory) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	defer m.lock()()
	b, ok := m.d.bookings[id]
	if !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	b.Lines = append([]models.BookingLine(nil), b.Lines...)
	return b, nil
}

func (m *Memory) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	defer m.lock()()
	b, ok := m.d.bookings[id]
	if !ok {
		return domain.NotFoundError{Resource: "booking"}
	}
	b.Status = status
	m.d.bookings[id] = b
	return nil
}

func (m *Memory) ListUnstaffedBookings(ctx context.Context, branchID int64) ([]models.Booking, error) {
	defer m.lock()()
	staffed := map[int64]bool{}
	for _, t := range m.d.trips {
		staffed[t.BookingID] = true
	}
	out := []models.Booking{}
	for _, b := range m.d.bookings {
		if b.Status != models.BookingPending || staffed[b.ID] {
			continue
		}
		if branchID != 0 && b.BranchID != branchID {
			continue
		}
		b.Lines = append([]models.BookingLine(nil), b.Lines...)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Trips

func (m *Memory) CreateTrip(ctx context.Context, t *models.Trip) error {
	defer m.lock()()
	if _, ok := m.d.bookings[t.BookingID]; !ok {
		return domain.NotFoundError{Resource: "booking"}
	}
	t.ID = m.d.next("trips")
	m.d.trips[t.ID] = *t
	return nil
}

func (m *Memory) GetTrip(ctx context.Context, id int64, forUpdate bool) (models.Trip, error) {
	defer m.lock()()
	t, ok := m.d.trips[id]
	if !ok {
		return models.Trip{}, domain.NotFoundError{Resource: "trip"}
	}
	return t, nil
}

func (m *Memory) ListTripsByBooking(ctx context.Context, bookingID int64) ([]models.Trip, error) {
	defer m.lock()()
	out := []models.Trip{}
	for _, t := range m.d.trips {
		if t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateTripStatus(ctx context.Context, id int64, status models.TripStatus) error {
	defer m.lock()()
	t, ok := m.d.trips[id]
	if !ok {
		return domain.NotFoundError{Resource: "trip"}
	}
	t.Status = status
	m.d.trips[id] = t
	return nil
}

// Assignments

func (m *Memory) ListTripDrivers(ctx context.Context, tripID int64) ([]models.TripDriver, error) {
	defer m.lock()()
	out := []models.TripDriver{}
	for _, td := range m.d.tripDrivers {
		if td.TripID == tripID {
			out = append(out, td)
		}
	}
	return out, nil
}

func (m *Memory) AddTripDriver(ctx context.Context, td models.TripDriver) error {
	defer m.lock()()
	for _, existing := range m.d.tripDrivers {
		if existing.TripID == td.TripID && existing.DriverID == td.DriverID {
			return domain.ConflictError{Resource: "trip_driver", Msg: "driver already on trip"}
		}
	}
	m.d.tripDrivers = append(m.d.tripDrivers, td)
	return nil
}

func (m *Memory) RemoveTripDriver(ctx context.Context, tripID, driverID int64) error {
	defer m.lock()()
	for i, td := range m.d.tripDrivers {
		if td.TripID == tripID && td.DriverID == driverID {
			m.d.tripDrivers = append(m.d.tripDrivers[:i:i], m.d.tripDrivers[i+1:]...)
			return nil
		}
	}
	return domain.NotFoundError{Resource: "trip_driver"}
}

func (m *Memory) SetDriverAccepted(ctx context.Context, tripID, driverID int64, at time.Time) error {
	defer m.lock()()
	for i, td := range m.d.tripDrivers {
		if td.TripID == tripID && td.DriverID == driverID {
			accepted := at
			m.d.tripDrivers[i].AcceptedAt = &accepted
			return nil
		}
	}
	return domain.NotFoundError{Resource: "trip_driver"}
}

func (m *Memory) ListTripVehicles(ctx context.Context, tripID int64) ([]models.TripVehicle, error) {
	defer m.lock()()
	out := []models.TripVehicle{}
	for _, tv := range m.d.tripVehicles {
		if tv.TripID == tripID {
			out = append(out, tv)
		}
	}
	return out, nil
}

func (m *Memory) AddTripVehicle(ctx context.Context, tv models.TripVehicle) error {
	defer m.lock()()
	for _, existing := range m.d.tripVehicles {
		if existing.TripID == tv.TripID && existing.VehicleID == tv.VehicleID {
			return domain.ConflictError{Resource: "trip_vehicle", Msg: "vehicle already on trip"}
		}
	}
	m.d.tripVehicles = append(m.d.tripVehicles, tv)
	return nil
}

func (m *Memory) RemoveTripVehicle(ctx context.Context, tripID, vehicleID int64) error {
	defer m.lock()()
	for i, tv := range m.d.tripVehicles {
		if tv.TripID == tripID && tv.VehicleID == vehicleID {
			m.d.tripVehicles = append(m.d.tripVehicles[:i:i], m.d.tripVehicles[i+1:]...)
			return nil
		}
	}
	return domain.NotFoundError{Resource: "trip_vehicle"}
}

// Audit

func (m *Memory) AppendHistory(ctx context.Context, h *models.TripAssignmentHistory) error {
	defer m.lock()()
	h.ID = m.d.next("history")
	m.d.history = append(m.d.history, *h)
	return nil
}

func (m *Memory) ListHistory(ctx context.Context, tripID int64) ([]models.TripAssignmentHistory, error) {
	defer m.lock()()
	out := []models.TripAssignmentHistory{}
	for _, h := range m.d.history {
		if h.TripID == tripID {
			out = append(out, h)
		}
	}
	return out, nil
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

var _ Store = (*Memory)(nil)
