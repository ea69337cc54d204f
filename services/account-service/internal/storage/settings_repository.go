package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/libs/db"
)

// SettingsRepository reads the process-wide plan settings row that the
// billing back office maintains. The account service only needs the
// signup trial length from it.
type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// DefaultTrialDays returns 0 when the settings row does not exist yet;
// callers fall back to their configured default.
func (r *SettingsRepository) DefaultTrialDays(ctx context.Context) (int, error) {
	var days int
	err := r.pool.QueryRow(ctx, `
		SELECT default_trial_days FROM plan_settings WHERE id = 1
	`).Scan(&days)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return days, nil
}
