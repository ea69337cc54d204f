package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/services/billing-service/internal/pricing"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

type Company struct {
	ID                   string
	Name                 string
	PlanStatus           string
	TrialEndsAt          *time.Time
	PartnerEndsAt        *time.Time
	IsBlocked            bool
	StripeCustomerID     string
	StripeSubscriptionID string
	UpdatedAt            time.Time
}

func (r *Repository) GetCompanyForUpdate(ctx context.Context, tx pgx.Tx, companyID string) (Company, bool, error) {
	var c Company
	err := tx.QueryRow(ctx, `
		SELECT id::text, name, plan_status, trial_ends_at, partner_ends_at, is_blocked,
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), updated_at
		FROM companies
		WHERE id = $1
		FOR UPDATE
	`, companyID).Scan(&c.ID, &c.Name, &c.PlanStatus, &c.TrialEndsAt, &c.PartnerEndsAt, &c.IsBlocked, &c.StripeCustomerID, &c.StripeSubscriptionID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, false, nil
		}
		return Company{}, false, err
	}
	return c, true, nil
}

func (r *Repository) GetCompany(ctx context.Context, companyID string) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, plan_status, trial_ends_at, partner_ends_at, is_blocked,
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), updated_at
		FROM companies
		WHERE id = $1
	`, companyID).Scan(&c.ID, &c.Name, &c.PlanStatus, &c.TrialEndsAt, &c.PartnerEndsAt, &c.IsBlocked, &c.StripeCustomerID, &c.StripeSubscriptionID, &c.UpdatedAt)
	if err != nil {
		return Company{}, err
	}
	return c, nil
}

func (r *Repository) SetPlanStatus(ctx context.Context, tx pgx.Tx, companyID string, planStatus string, partnerEndsAt *time.Time, stripeCustomerID, stripeSubscriptionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE companies
		SET plan_status = $2,
		    partner_ends_at = $3,
		    stripe_customer_id = COALESCE($4, stripe_customer_id),
		    stripe_subscription_id = COALESCE($5, stripe_subscription_id),
		    updated_at = now()
		WHERE id = $1
	`, companyID, planStatus, partnerEndsAt, nullIfEmpty(stripeCustomerID), nullIfEmpty(stripeSubscriptionID))
	return err
}

func (r *Repository) SetBlocked(ctx context.Context, tx pgx.Tx, companyID string, blocked bool) error {
	_, err := tx.Exec(ctx, `
		UPDATE companies
		SET is_blocked = $2,
		    updated_at = now()
		WHERE id = $1
	`, companyID, blocked)
	return err
}

func (r *Repository) ListStripeCompaniesForReconcile(ctx context.Context, limit int) ([]Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, plan_status, trial_ends_at, partner_ends_at, is_blocked,
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), updated_at
		FROM companies
		WHERE stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.PlanStatus, &c.TrialEndsAt, &c.PartnerEndsAt, &c.IsBlocked, &c.StripeCustomerID, &c.StripeSubscriptionID, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Plan settings are a single row (id = 1) seeded with defaults.
func (r *Repository) GetPlanSettings(ctx context.Context) (pricing.PlanSettings, error) {
	s := pricing.DefaultSettings()
	err := r.pool.QueryRow(ctx, `
		SELECT inicial_price, inicial_annual_price,
		       profissional_price, profissional_annual_price,
		       franquias_price, franquias_annual_price,
		       annual_discount_percent, default_trial_days
		FROM plan_settings
		WHERE id = 1
	`).Scan(
		&s.Inicial.Monthly, &s.Inicial.Annual,
		&s.Profissional.Monthly, &s.Profissional.Annual,
		&s.Franquias.Monthly, &s.Franquias.Annual,
		&s.AnnualDiscountPercent, &s.DefaultTrialDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.DefaultSettings(), nil
		}
		return pricing.PlanSettings{}, err
	}
	return s, nil
}

func (r *Repository) UpsertPlanSettings(ctx context.Context, tx pgx.Tx, s pricing.PlanSettings) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO plan_settings (id, inicial_price, inicial_annual_price,
		                           profissional_price, profissional_annual_price,
		                           franquias_price, franquias_annual_price,
		                           annual_discount_percent, default_trial_days)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET inicial_price = EXCLUDED.inicial_price,
		              inicial_annual_price = EXCLUDED.inicial_annual_price,
		              profissional_price = EXCLUDED.profissional_price,
		              profissional_annual_price = EXCLUDED.profissional_annual_price,
		              franquias_price = EXCLUDED.franquias_price,
		              franquias_annual_price = EXCLUDED.franquias_annual_price,
		              annual_discount_percent = EXCLUDED.annual_discount_percent,
		              default_trial_days = EXCLUDED.default_trial_days,
		              updated_at = now()
	`, s.Inicial.Monthly, s.Inicial.Annual,
		s.Profissional.Monthly, s.Profissional.Annual,
		s.Franquias.Monthly, s.Franquias.Annual,
		s.AnnualDiscountPercent, s.DefaultTrialDays)
	return err
}

type CheckoutSession struct {
	StripeSessionID      string
	CompanyID            string
	Tier                 string
	Status               string
	StripeCustomerID     string
	StripeSubscriptionID string
	URL                  string
	ReturnToken          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	CanceledAt           *time.Time
	ReturnSeenAt         *time.Time
	ExpiredAt            *time.Time
}

func (r *Repository) UpsertCheckoutSession(ctx context.Context, tx pgx.Tx, s CheckoutSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO checkout_sessions (stripe_session_id, company_id, tier, status, url, return_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stripe_session_id)
		DO UPDATE SET company_id = EXCLUDED.company_id,
		              tier = EXCLUDED.tier,
		              status = EXCLUDED.status,
		              url = EXCLUDED.url,
		              updated_at = now()
	`, s.StripeSessionID, s.CompanyID, s.Tier, s.Status, nullIfEmpty(s.URL), nullIfEmpty(s.ReturnToken))
	return err
}

func (r *Repository) MarkCheckoutSessionCompleted(ctx context.Context, tx pgx.Tx, stripeSessionID string, completedAt time.Time, stripeCustomerID, stripeSubscriptionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'completed',
		    stripe_customer_id = $3,
		    stripe_subscription_id = $4,
		    completed_at = $2,
		    updated_at = now()
		WHERE stripe_session_id = $1
	`, stripeSessionID, completedAt, nullIfEmpty(stripeCustomerID), nullIfEmpty(stripeSubscriptionID))
	return err
}

func (r *Repository) MarkCheckoutSessionExpired(ctx context.Context, tx pgx.Tx, stripeSessionID string, expiredAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET status = 'expired',
		    expired_at = $2,
		    updated_at = now()
		WHERE stripe_session_id = $1 AND status <> 'completed'
	`, stripeSessionID, expiredAt)
	return err
}

func (r *Repository) AckCheckoutReturn(ctx context.Context, tx pgx.Tx, stripeSessionID string, token string, result string, seenAt time.Time) error {
	// The token keeps this public endpoint from touching other sessions.
	// A completed session never regresses to canceled; the Stripe webhook
	// stays the source of truth.
	if strings.TrimSpace(result) == "" {
		result = "unknown"
	}
	_, err := tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET return_seen_at = $4,
		    status = CASE
		      WHEN $3 = 'cancel' AND status <> 'completed' THEN 'canceled'
		      ELSE status
		    END,
		    canceled_at = CASE
		      WHEN $3 = 'cancel' AND status <> 'completed' THEN COALESCE(canceled_at, $4)
		      ELSE canceled_at
		    END,
		    updated_at = now()
		WHERE stripe_session_id = $1 AND return_token = $2
	`, stripeSessionID, token, result, seenAt)
	return err
}

func (r *Repository) FindCompanyIDByStripeCustomer(ctx context.Context, tx pgx.Tx, stripeCustomerID string) (string, bool, error) {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id::text
		FROM companies
		WHERE stripe_customer_id = $1
	`, stripeCustomerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (r *Repository) GetCheckoutSession(ctx context.Context, stripeSessionID string) (CheckoutSession, error) {
	var s CheckoutSession
	err := r.pool.QueryRow(ctx, `
		SELECT stripe_session_id, company_id::text, tier, status,
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
		       COALESCE(url, ''), COALESCE(return_token, ''), created_at, updated_at,
		       completed_at, canceled_at, return_seen_at, expired_at
		FROM checkout_sessions
		WHERE stripe_session_id = $1
	`, stripeSessionID).Scan(
		&s.StripeSessionID,
		&s.CompanyID,
		&s.Tier,
		&s.Status,
		&s.StripeCustomerID,
		&s.StripeSubscriptionID,
		&s.URL,
		&s.ReturnToken,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CompletedAt,
		&s.CanceledAt,
		&s.ReturnSeenAt,
		&s.ExpiredAt,
	)
	if err != nil {
		return CheckoutSession{}, err
	}
	return s, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

type AuditEvent struct {
	EventType string
	ActorType string
	ActorID   string
	CompanyID string
	Metadata  []byte
}

func (r *Repository) InsertAuditEvent(ctx context.Context, tx pgx.Tx, evt AuditEvent) error {
	var payload any
	if len(evt.Metadata) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(evt.Metadata, &payload); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_type, actor_id, company_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.EventType, evt.ActorType, nullIfEmpty(evt.ActorID), nullIfEmpty(evt.CompanyID), payload)
	return err
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
