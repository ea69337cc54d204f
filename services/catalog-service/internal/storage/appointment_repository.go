package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Appointment struct {
	ID         string
	CompanyID  string
	UnitID     string
	BarberID   string
	ServiceID  string
	ClientName string
	StartTime  time.Time
	EndTime    time.Time
	Price      string
	Status     string
	CreatedAt  time.Time
}

func (r *Repository) CreateAppointment(ctx context.Context, a Appointment) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, company_id, unit_id, barber_id, service_id, client_name, start_time, end_time, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, a.CompanyID, a.UnitID, a.BarberID, a.ServiceID, a.ClientName, a.StartTime, a.EndTime, a.Price, a.Status)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListAppointments(ctx context.Context, companyID string, from, to time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, company_id::text, unit_id::text, barber_id::text, service_id::text,
		       client_name, start_time, end_time, price::text, status, created_at
		FROM appointments
		WHERE company_id = $1
		  AND end_time > $2
		  AND start_time < $3
		ORDER BY start_time ASC
		LIMIT $4
	`, companyID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.UnitID, &a.BarberID, &a.ServiceID, &a.ClientName, &a.StartTime, &a.EndTime, &a.Price, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) SetAppointmentStatus(ctx context.Context, companyID, appointmentID, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE company_id = $1 AND id = $2
	`, companyID, appointmentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteAppointment removes the row but leaves a tombstone in
// appointment_deletions so the back office can audit removals.
func (r *Repository) DeleteAppointment(ctx context.Context, companyID, appointmentID, deletedBy, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments
		WHERE company_id = $1 AND id = $2
	`, companyID, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointment_deletions (id, company_id, appointment_id, deleted_by, reason)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, NULLIF($5, ''))
	`, uuid.NewString(), companyID, appointmentID, deletedBy, reason); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
