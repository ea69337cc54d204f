package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/libs/db"
)

type RoleRepository struct {
	pool *db.Pool
}

func NewRoleRepository(pool *db.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func (r *RoleRepository) GrantTx(ctx context.Context, tx pgx.Tx, userID string, companyID string, role string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, company_id, role)
		VALUES ($1, NULLIF($2, '')::uuid, $3)
		ON CONFLICT (user_id, role) DO NOTHING
	`, userID, companyID, role)
	return err
}

func (r *RoleRepository) ListForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role
		FROM user_roles
		WHERE user_id = $1
		ORDER BY role
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return roles, nil
}
