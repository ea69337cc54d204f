package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/barbersoft/backend/libs/db"
)

type Notification struct {
	CompanyID   string
	Kind        string
	Channel     string
	Recipient   string
	DedupeKey   string
	Status      string
	ErrorReason string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertIfNew writes the notification unless its dedupe key was seen
// before. Returns false for duplicates.
func (r *Repository) InsertIfNew(ctx context.Context, n Notification) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, company_id, kind, channel, recipient, dedupe_key, status, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, uuid.NewString(), n.CompanyID, n.Kind, n.Channel, n.Recipient, n.DedupeKey, n.Status, n.ErrorReason)
	if err == nil {
		return true, nil
	}
	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}

// MarkFailed flips a claimed notification to failed after a send error.
func (r *Repository) MarkFailed(ctx context.Context, dedupeKey string, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'failed', error_reason = $2
		WHERE dedupe_key = $1
	`, dedupeKey, reason)
	return err
}

type TrialCompany struct {
	CompanyID   string
	CompanyName string
	OwnerEmail  string
	OwnerName   string
	OwnerPhone  string
	TrialEndsAt time.Time
}

// ListTrialsEndingSoon finds trial companies whose deadline falls
// before the cutoff, including already-lapsed trials.
func (r *Repository) ListTrialsEndingSoon(ctx context.Context, cutoff time.Time, limit int) ([]TrialCompany, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT c.id::text, c.name, u.email, u.name, COALESCE(u.phone, ''), c.trial_ends_at
		FROM companies c
		JOIN users u ON u.id = c.owner_user_id
		WHERE c.plan_status = 'trial'
		  AND c.is_blocked = false
		  AND c.trial_ends_at IS NOT NULL
		  AND c.trial_ends_at <= $1
		ORDER BY c.trial_ends_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrialCompany
	for rows.Next() {
		var t TrialCompany
		if err := rows.Scan(&t.CompanyID, &t.CompanyName, &t.OwnerEmail, &t.OwnerName, &t.OwnerPhone, &t.TrialEndsAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type OwnerContact struct {
	CompanyName string
	OwnerEmail  string
	OwnerName   string
	OwnerPhone  string
}

func (r *Repository) GetOwnerContact(ctx context.Context, companyID string) (OwnerContact, error) {
	var c OwnerContact
	err := r.pool.QueryRow(ctx, `
		SELECT c.name, u.email, u.name, COALESCE(u.phone, '')
		FROM companies c
		JOIN users u ON u.id = c.owner_user_id
		WHERE c.id = $1
	`, companyID).Scan(&c.CompanyName, &c.OwnerEmail, &c.OwnerName, &c.OwnerPhone)
	return c, err
}
