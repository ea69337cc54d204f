package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/services/notification-service/internal/email"
	"github.com/barbersoft/backend/services/notification-service/internal/outbox"
	"github.com/barbersoft/backend/services/notification-service/internal/storage"
)

// TrialSentinel periodically reminds owners whose trial is ending
// within the warning window (or has already ended). The notifications
// dedupe key limits it to one reminder per company per day.
type TrialSentinel struct {
	pool        *db.Pool
	repo        *storage.Repository
	outboxRepo  *outbox.Repository
	emailSender email.Sender
	logger      *slog.Logger
	warningDays int
	batchSize   int
}

type Config struct {
	WarningDays int
	BatchSize   int
}

func New(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, emailSender email.Sender, logger *slog.Logger, cfg Config) *TrialSentinel {
	days := cfg.WarningDays
	if days <= 0 {
		days = 3
	}
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 200
	}
	return &TrialSentinel{
		pool:        pool,
		repo:        repo,
		outboxRepo:  outboxRepo,
		emailSender: emailSender,
		logger:      logger,
		warningDays: days,
		batchSize:   bs,
	}
}

func (s *TrialSentinel) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TrialSentinel) sweep(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(time.Duration(s.warningDays) * 24 * time.Hour)

	trials, err := s.repo.ListTrialsEndingSoon(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("trial sentinel: failed to list trials", "err", err)
		return
	}

	for _, t := range trials {
		if ctx.Err() != nil {
			return
		}
		s.remind(ctx, t, now)
	}
}

func (s *TrialSentinel) remind(ctx context.Context, t storage.TrialCompany, now time.Time) {
	dedupeKey := fmt.Sprintf("trial-reminder:%s:%s", t.CompanyID, now.Format("2006-01-02"))

	// Claim the dedupe key before sending: one reminder per company per
	// day, even across concurrent instances.
	inserted, err := s.repo.InsertIfNew(ctx, storage.Notification{
		CompanyID: t.CompanyID,
		Kind:      "trial_reminder",
		Channel:   "email",
		Recipient: t.OwnerEmail,
		DedupeKey: dedupeKey,
		Status:    "sent",
	})
	if err != nil {
		s.logger.Error("trial sentinel: failed to persist notification", "err", err, "company_id", t.CompanyID)
		return
	}
	if !inserted {
		return
	}

	days := daysUntil(t.TrialEndsAt, now)
	subject := "Seu período de teste está acabando"
	body := fmt.Sprintf("Olá %s, o teste gratuito da %s termina em %d dia(s). Escolha um plano para continuar usando o sistema.", t.OwnerName, t.CompanyName, days)
	if days <= 0 {
		subject = "Seu período de teste terminou"
		body = fmt.Sprintf("Olá %s, o teste gratuito da %s terminou. Escolha um plano para reativar o acesso.", t.OwnerName, t.CompanyName)
	}

	status := "sent"
	errorReason := ""
	if err := s.emailSender.Send(t.OwnerEmail, subject, body); err != nil {
		status = "failed"
		errorReason = err.Error()
		s.logger.Error("trial sentinel: email send failed", "err", err, "company_id", t.CompanyID)
		if err := s.repo.MarkFailed(ctx, dedupeKey, errorReason); err != nil {
			s.logger.Error("trial sentinel: failed to mark notification failed", "err", err, "company_id", t.CompanyID)
		}
	}

	if err := s.writeOutbox(ctx, t.CompanyID, status, errorReason, now); err != nil {
		s.logger.Error("trial sentinel: failed to enqueue event", "err", err, "company_id", t.CompanyID)
		return
	}

	s.logger.Info("trial reminder processed", "company_id", t.CompanyID, "days_remaining", days, "status", status)
}

func (s *TrialSentinel) writeOutbox(ctx context.Context, companyID, status, errorReason string, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventType := "notification.sent.v1"
	fields := map[string]any{
		"company_id": companyID,
		"kind":       "trial_reminder",
		"channel":    "email",
		"sent_at":    now.Format(time.RFC3339),
	}
	if status == "failed" {
		eventType = "notification.failed.v1"
		delete(fields, "sent_at")
		fields["error_reason"] = errorReason
		fields["failed_at"] = now.Format(time.RFC3339)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	if err := s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   companyID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func daysUntil(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	return int(math.Ceil(float64(diff.Milliseconds()) / 86400000.0))
}
