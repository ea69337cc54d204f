package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/libs/db"
)

type Company struct {
	ID            string
	OwnerUserID   string
	Name          string
	PlanStatus    string
	TrialEndsAt   *time.Time
	PartnerEndsAt *time.Time
	IsBlocked     bool
}

type CompanyRepository struct {
	pool *db.Pool
}

func NewCompanyRepository(pool *db.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

func (r *CompanyRepository) CreateTx(ctx context.Context, tx pgx.Tx, company Company) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO companies (id, owner_user_id, name, plan_status, trial_ends_at)
		VALUES ($1, $2, $3, $4, $5)
	`, company.ID, company.OwnerUserID, company.Name, company.PlanStatus, company.TrialEndsAt)
	return err
}

func (r *CompanyRepository) GetByID(ctx context.Context, id string) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_user_id, name, plan_status, trial_ends_at, partner_ends_at, is_blocked
		FROM companies
		WHERE id = $1
	`, id).Scan(&c.ID, &c.OwnerUserID, &c.Name, &c.PlanStatus, &c.TrialEndsAt, &c.PartnerEndsAt, &c.IsBlocked)
	if err != nil {
		return Company{}, err
	}
	return c, nil
}

func (r *CompanyRepository) GetByOwner(ctx context.Context, ownerUserID string) (Company, bool, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_user_id, name, plan_status, trial_ends_at, partner_ends_at, is_blocked
		FROM companies
		WHERE owner_user_id = $1
	`, ownerUserID).Scan(&c.ID, &c.OwnerUserID, &c.Name, &c.PlanStatus, &c.TrialEndsAt, &c.PartnerEndsAt, &c.IsBlocked)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Company{}, false, nil
		}
		return Company{}, false, err
	}
	return c, true, nil
}
