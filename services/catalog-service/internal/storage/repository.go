package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type Unit struct {
	ID        string
	CompanyID string
	Name      string
	Address   string
	Phone     string
	CreatedAt time.Time
}

// DefaultUnitName is given to the unit seeded for a fresh company.
const DefaultUnitName = "Barbearia Principal"

// ListUnits seeds the default unit when a company has none yet, so the
// app never shows an empty unit picker.
func (r *Repository) ListUnits(ctx context.Context, companyID string) ([]Unit, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO units (id, company_id, name)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM units WHERE company_id = $2)
	`, uuid.NewString(), companyID, DefaultUnitName)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, company_id::text, name, COALESCE(address, ''), COALESCE(phone, ''), created_at
		FROM units
		WHERE company_id = $1
		ORDER BY created_at ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Name, &u.Address, &u.Phone, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) CreateUnit(ctx context.Context, companyID, name, address, phone string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO units (id, company_id, name, address, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
	`, id, companyID, name, address, phone)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UnitBelongsToCompany(ctx context.Context, companyID, unitID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM units WHERE id = $1 AND company_id = $2)
	`, unitID, companyID).Scan(&exists)
	return exists, err
}

type Barber struct {
	ID             string
	CompanyID      string
	UnitID         string
	Name           string
	Phone          string
	PhotoURL       string
	CalendarColor  string
	CommissionRate float64
	IsActive       bool
	CreatedAt      time.Time
}

func (r *Repository) CreateBarber(ctx context.Context, b Barber) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO barbers (id, company_id, unit_id, name, phone, photo_url, calendar_color, commission_rate, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
	`, id, b.CompanyID, b.UnitID, b.Name, b.Phone, b.PhotoURL, b.CalendarColor, b.CommissionRate, b.IsActive)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListBarbers(ctx context.Context, companyID string, limit int) ([]Barber, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, company_id::text, unit_id::text, name,
		       COALESCE(phone, ''), COALESCE(photo_url, ''),
		       calendar_color, commission_rate, is_active, created_at
		FROM barbers
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Barber
	for rows.Next() {
		var b Barber
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.UnitID, &b.Name, &b.Phone, &b.PhotoURL, &b.CalendarColor, &b.CommissionRate, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetBarber(ctx context.Context, companyID, barberID string) (Barber, error) {
	var b Barber
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, company_id::text, unit_id::text, name,
		       COALESCE(phone, ''), COALESCE(photo_url, ''),
		       calendar_color, commission_rate, is_active, created_at
		FROM barbers
		WHERE company_id = $1 AND id = $2
	`, companyID, barberID).Scan(&b.ID, &b.CompanyID, &b.UnitID, &b.Name, &b.Phone, &b.PhotoURL, &b.CalendarColor, &b.CommissionRate, &b.IsActive, &b.CreatedAt)
	return b, err
}

func (r *Repository) UpdateBarber(ctx context.Context, b Barber) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE barbers
		SET unit_id = $3,
		    name = $4,
		    phone = NULLIF($5, ''),
		    photo_url = NULLIF($6, ''),
		    calendar_color = $7,
		    commission_rate = $8,
		    is_active = $9,
		    updated_at = now()
		WHERE company_id = $1 AND id = $2
	`, b.CompanyID, b.ID, b.UnitID, b.Name, b.Phone, b.PhotoURL, b.CalendarColor, b.CommissionRate, b.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteBarber is a hard delete. The product treats removing a barber
// as permanent, including their appointment history links.
func (r *Repository) DeleteBarber(ctx context.Context, companyID, barberID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM barbers
		WHERE company_id = $1 AND id = $2
	`, companyID, barberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type CatalogService struct {
	ID           string
	CompanyID    string
	Name         string
	DurationMins int
	Price        string
	Description  string
	CreatedAt    time.Time
}

func (r *Repository) CreateService(ctx context.Context, companyID, name string, durationMinutes int, price string, description string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO catalog_services (id, company_id, name, duration_minutes, price, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, companyID, name, durationMinutes, price, description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, companyID string, limit int) ([]CatalogService, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, company_id::text, name, duration_minutes, price::text, description, created_at
		FROM catalog_services
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogService
	for rows.Next() {
		var s CatalogService
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Name, &s.DurationMins, &s.Price, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpdateService(ctx context.Context, companyID, serviceID, name string, durationMinutes int, price string, description string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE catalog_services
		SET name = $3,
		    duration_minutes = $4,
		    price = $5,
		    description = $6,
		    updated_at = now()
		WHERE company_id = $1 AND id = $2
	`, companyID, serviceID, name, durationMinutes, price, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeleteService(ctx context.Context, companyID, serviceID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM catalog_services
		WHERE company_id = $1 AND id = $2
	`, companyID, serviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type BarberEarnings struct {
	BarberID       string
	BarberName     string
	CommissionRate float64
	ServicesTotal  string
	ServicesCount  int
}

// ListBarberEarnings sums completed appointment prices per barber over
// a window. Commission is applied by the caller.
func (r *Repository) ListBarberEarnings(ctx context.Context, companyID string, from, to time.Time) ([]BarberEarnings, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id::text, b.name, b.commission_rate,
		       COALESCE(SUM(a.price), 0)::text, COUNT(a.id)
		FROM barbers b
		LEFT JOIN appointments a
		       ON a.barber_id = b.id
		      AND a.status = 'completed'
		      AND a.start_time >= $2
		      AND a.start_time < $3
		WHERE b.company_id = $1
		GROUP BY b.id, b.name, b.commission_rate
		ORDER BY b.name ASC
	`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BarberEarnings
	for rows.Next() {
		var e BarberEarnings
		if err := rows.Scan(&e.BarberID, &e.BarberName, &e.CommissionRate, &e.ServicesTotal, &e.ServicesCount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
