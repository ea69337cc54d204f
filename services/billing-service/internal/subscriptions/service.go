package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/services/billing-service/internal/outbox"
	"github.com/barbersoft/backend/services/billing-service/internal/storage"
)

// Plan statuses as stored on the company record. These are the states
// the access evaluator reads on every request.
const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusOverdue   = "overdue"
	StatusPartner   = "partner"
)

var ErrCompanyNotFound = errors.New("company not found")

// Service applies subscription state transitions to the company record
// and emits the matching outbox events. Keeping this out of the HTTP
// handlers makes it reusable for webhook and reconciliation flows.
type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, companyID, tier string, activatedAt time.Time, stripeCustomerID, stripeSubscriptionID string) error {
	existing, ok, err := s.repo.GetCompanyForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCompanyNotFound
	}

	if err := s.repo.SetPlanStatus(ctx, tx, companyID, StatusActive, nil, stripeCustomerID, stripeSubscriptionID); err != nil {
		return err
	}

	// Only emit when the effective status changes. Stripe ID updates
	// alone shouldn't fan out.
	if existing.PlanStatus == StatusActive {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"company_id":   companyID,
		"tier":         tier,
		"activated_at": activatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   companyID,
		EventType:     "billing.subscription.activated.v1",
		Payload:       payload,
	})
}

func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, companyID string, canceledAt time.Time, stripeCustomerID, stripeSubscriptionID string) error {
	existing, ok, err := s.repo.GetCompanyForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCompanyNotFound
	}

	if err := s.repo.SetPlanStatus(ctx, tx, companyID, StatusCancelled, nil, stripeCustomerID, stripeSubscriptionID); err != nil {
		return err
	}

	if existing.PlanStatus == StatusCancelled {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"company_id":  companyID,
		"canceled_at": canceledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   companyID,
		EventType:     "billing.subscription.canceled.v1",
		Payload:       payload,
	})
}

func (s *Service) ApplyOverdue(ctx context.Context, tx pgx.Tx, companyID string, failedAt time.Time) error {
	existing, ok, err := s.repo.GetCompanyForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCompanyNotFound
	}

	// Overdue only demotes a paying subscription. A trial or partner
	// company has no invoice to fail.
	if existing.PlanStatus != StatusActive && existing.PlanStatus != StatusOverdue {
		return nil
	}

	if err := s.repo.SetPlanStatus(ctx, tx, companyID, StatusOverdue, nil, "", ""); err != nil {
		return err
	}
	if existing.PlanStatus == StatusOverdue {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"company_id": companyID,
		"failed_at":  failedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   companyID,
		EventType:     "billing.subscription.overdue.v1",
		Payload:       payload,
	})
}

func (s *Service) ApplyPartnerGranted(ctx context.Context, tx pgx.Tx, companyID string, endsAt *time.Time, grantedAt time.Time) error {
	existing, ok, err := s.repo.GetCompanyForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCompanyNotFound
	}

	if err := s.repo.SetPlanStatus(ctx, tx, companyID, StatusPartner, endsAt, "", ""); err != nil {
		return err
	}

	samePartner := existing.PlanStatus == StatusPartner &&
		equalTimePtr(existing.PartnerEndsAt, endsAt)
	if samePartner {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"company_id":      companyID,
		"partner_ends_at": formatTimePtr(endsAt),
		"granted_at":      grantedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   companyID,
		EventType:     "billing.subscription.partner.v1",
		Payload:       payload,
	})
}

// ApplyBlocked flips the administrative block flag. The flag is
// independent of plan_status: unblocking restores whatever status the
// company already had.
func (s *Service) ApplyBlocked(ctx context.Context, tx pgx.Tx, companyID string, blocked bool, changedAt time.Time) error {
	existing, ok, err := s.repo.GetCompanyForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCompanyNotFound
	}
	if existing.IsBlocked == blocked {
		return nil
	}

	if err := s.repo.SetBlocked(ctx, tx, companyID, blocked); err != nil {
		return err
	}

	eventType := "billing.company.blocked.v1"
	if !blocked {
		eventType = "billing.company.unblocked.v1"
	}
	payload, err := json.Marshal(map[string]any{
		"company_id": companyID,
		"changed_at": changedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "company",
		AggregateID:   companyID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
