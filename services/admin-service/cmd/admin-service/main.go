package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barbersoft/backend/libs/config"
	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/libs/httpx"
	"github.com/barbersoft/backend/libs/kafkax"
	otelx "github.com/barbersoft/backend/libs/otel"
	"github.com/barbersoft/backend/libs/runtime"
	"github.com/barbersoft/backend/services/admin-service/internal/consumer"
	"github.com/barbersoft/backend/services/admin-service/internal/export"
	"github.com/barbersoft/backend/services/admin-service/internal/handlers"
	"github.com/barbersoft/backend/services/admin-service/internal/inbox"
)

func main() {
	service := config.String("SERVICE_NAME", "admin-service")
	port, err := config.Port("PORT", "8086")
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

	handleSubscriptionEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			CompanyID   string `json:"company_id"`
			ActivatedAt string `json:"activated_at"`
			CanceledAt  string `json:"canceled_at"`
			FailedAt    string `json:"failed_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid subscription payload", "err", err)
			return nil
		}
		if payload.CompanyID == "" {
			logger.Error("missing company_id on subscription event")
			return nil
		}

		occurredStr := payload.ActivatedAt
		if occurredStr == "" {
			occurredStr = payload.CanceledAt
		}
		if occurredStr == "" {
			occurredStr = payload.FailedAt
		}
		occurredAt := time.Now().UTC()
		if occurredStr != "" {
			t, err := time.Parse(time.RFC3339, occurredStr)
			if err != nil {
				logger.Error("invalid subscription event timestamp", "err", err)
				return nil
			}
			occurredAt = t.UTC()
		}

		activatedInc := 0
		canceledInc := 0
		overdueInc := 0
		switch kind {
		case "activated":
			activatedInc = 1
		case "canceled":
			canceledInc = 1
		case "overdue":
			overdueInc = 1
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO subscription_metrics (company_id, day, activated_count, canceled_count, overdue_count)
			VALUES ($1, $2::date, $3, $4, $5)
			ON CONFLICT (company_id, day)
			DO UPDATE SET activated_count = subscription_metrics.activated_count + EXCLUDED.activated_count,
			              canceled_count = subscription_metrics.canceled_count + EXCLUDED.canceled_count,
			              overdue_count = subscription_metrics.overdue_count + EXCLUDED.overdue_count,
			              updated_at = now()
		`, payload.CompanyID, occurredAt, activatedInc, canceledInc, overdueInc)
		if err != nil {
			logger.Error("failed to update subscription metrics", "err", err)
			return err
		}

		logger.Info("subscription metric recorded", "company_id", payload.CompanyID, "kind", kind)
		return nil
	}

	topics := map[string]string{
		"billing.subscription.activated.v1": "activated",
		"billing.subscription.canceled.v1":  "canceled",
		"billing.subscription.overdue.v1":   "overdue",
	}
	for topic, kind := range topics {
		kind := kind
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "admin-service"),
			Topic:   topic,
		}
		c := consumer.New(logger, inboxRepo, cfg, func(ctx context.Context, msg kafka.Message) error {
			return handleSubscriptionEvent(ctx, msg, kind)
		})
		go c.Run(ctx)
	}

	exporter := export.NewExporter(pool)
	h := handlers.New(exporter, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/admin/export/tables", h.ListTables)
	mux.HandleFunc("/api/v1/admin/export/table", h.ExportTable)
	mux.HandleFunc("/api/v1/admin/export/all", h.ExportAll)
	mux.HandleFunc("/api/v1/admin/schema", h.Schema)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "admin")
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
