package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barbersoft/backend/libs/config"
	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/libs/httpx"
	"github.com/barbersoft/backend/libs/kafkax"
	otelx "github.com/barbersoft/backend/libs/otel"
	"github.com/barbersoft/backend/libs/runtime"
	"github.com/barbersoft/backend/services/notification-service/internal/consumer"
	"github.com/barbersoft/backend/services/notification-service/internal/email"
	"github.com/barbersoft/backend/services/notification-service/internal/inbox"
	"github.com/barbersoft/backend/services/notification-service/internal/outbox"
	"github.com/barbersoft/backend/services/notification-service/internal/sentinel"
	"github.com/barbersoft/backend/services/notification-service/internal/sms"
	"github.com/barbersoft/backend/services/notification-service/internal/storage"
)

type subscriptionPayload struct {
	CompanyID string `json:"company_id"`
	Tier      string `json:"tier"`
}

func writeOutbox(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, companyID, kind, channel, eventType string, fields map[string]any) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	base := map[string]any{
		"company_id": companyID,
		"kind":       kind,
		"channel":    channel,
	}
	for k, v := range fields {
		base[k] = v
	}
	payload, err := json.Marshal(base)
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   companyID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@barbersoft.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	smsProvider := strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	smsWebhookURL := config.String("SMS_WEBHOOK_URL", "")
	smsWebhookToken := config.String("SMS_WEBHOOK_TOKEN", "")
	var smsSender sms.Sender
	switch smsProvider {
	case "webhook":
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	case "noop":
		smsSender = sms.NewNoopSender()
	default:
		smsSender = sms.NewWebhookSender(smsWebhookURL, smsWebhookToken)
	}

	planMessages := map[string]struct {
		subject string
		body    string
	}{
		"billing.subscription.activated.v1": {
			subject: "Assinatura ativada",
			body:    "Olá %s, a assinatura da %s foi ativada. Bom trabalho!",
		},
		"billing.subscription.canceled.v1": {
			subject: "Assinatura cancelada",
			body:    "Olá %s, a assinatura da %s foi cancelada. Você pode reativá-la a qualquer momento na página de planos.",
		},
		"billing.subscription.overdue.v1": {
			subject: "Pagamento pendente",
			body:    "Olá %s, identificamos um pagamento pendente da %s. Atualize a forma de pagamento para evitar a suspensão do acesso.",
		},
		"billing.subscription.partner.v1": {
			subject: "Conta parceira ativada",
			body:    "Olá %s, a %s agora é uma conta parceira. Obrigado pela parceria!",
		},
	}

	for topic, msgTemplate := range planMessages {
		topic := topic
		msgTemplate := msgTemplate
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}
		c := consumer.New(logger, inboxRepo, cfg, func(ctx context.Context, msg kafka.Message) error {
			var payload subscriptionPayload
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid subscription payload", "err", err)
				return nil
			}
			if payload.CompanyID == "" {
				logger.Error("missing company_id on subscription event")
				return nil
			}

			contact, err := notificationsRepo.GetOwnerContact(ctx, payload.CompanyID)
			if err != nil {
				logger.Error("failed to resolve owner contact", "err", err, "company_id", payload.CompanyID)
				return err
			}

			meta := kafkax.ExtractEventMeta(msg)
			inserted, err := notificationsRepo.InsertIfNew(ctx, storage.Notification{
				CompanyID: payload.CompanyID,
				Kind:      "plan_change",
				Channel:   "email",
				Recipient: contact.OwnerEmail,
				DedupeKey: "plan-change:" + meta.EventID,
				Status:    "sent",
			})
			if err != nil {
				logger.Error("failed to persist notification", "err", err)
				return err
			}
			if !inserted {
				return nil
			}

			body := fmt.Sprintf(msgTemplate.body, contact.OwnerName, contact.CompanyName)
			status := "sent"
			if err := emailSender.Send(contact.OwnerEmail, msgTemplate.subject, body); err != nil {
				status = "failed"
				logger.Error("email send failed", "err", err, "recipient", contact.OwnerEmail)
				if err := notificationsRepo.MarkFailed(ctx, "plan-change:"+meta.EventID, err.Error()); err != nil {
					logger.Error("failed to mark notification failed", "err", err)
				}
				if err := writeOutbox(ctx, pool, outboxRepo, payload.CompanyID, "plan_change", "email", "notification.failed.v1", map[string]any{
					"error_reason": "email send failed",
					"failed_at":    time.Now().UTC().Format(time.RFC3339),
				}); err != nil {
					logger.Error("failed to enqueue notification.failed", "err", err)
					return err
				}
			} else {
				if err := writeOutbox(ctx, pool, outboxRepo, payload.CompanyID, "plan_change", "email", "notification.sent.v1", map[string]any{
					"sent_at": time.Now().UTC().Format(time.RFC3339),
				}); err != nil {
					logger.Error("failed to enqueue notification.sent", "err", err)
					return err
				}
			}

			if status == "sent" && contact.OwnerPhone != "" && smsProvider == "webhook" {
				if err := smsSender.Send(ctx, contact.OwnerPhone, msgTemplate.subject); err != nil {
					logger.Warn("sms send failed", "err", err, "company_id", payload.CompanyID)
				}
			}

			logger.Info("plan change notification processed", "company_id", payload.CompanyID, "topic", topic, "status", status)
			return nil
		})
		go c.Run(ctx)
	}

	trialSentinel := sentinel.New(pool, notificationsRepo, outboxRepo, emailSender, logger, sentinel.Config{
		WarningDays: config.Int("TRIAL_WARNING_DAYS", 3),
		BatchSize:   config.Int("TRIAL_SENTINEL_BATCH_SIZE", 200),
	})
	go trialSentinel.Run(ctx, config.Seconds("TRIAL_SENTINEL_INTERVAL_SECONDS", time.Hour))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
