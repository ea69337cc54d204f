package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barbersoft/backend/libs/config"
	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/libs/httpx"
	"github.com/barbersoft/backend/libs/kafkax"
	otelx "github.com/barbersoft/backend/libs/otel"
	"github.com/barbersoft/backend/libs/runtime"
	"github.com/barbersoft/backend/services/account-service/internal/audit"
	"github.com/barbersoft/backend/services/account-service/internal/handlers"
	"github.com/barbersoft/backend/services/account-service/internal/outbox"
	"github.com/barbersoft/backend/services/account-service/internal/sessions"
	"github.com/barbersoft/backend/services/account-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "account-service")
	port, err := config.Port("PORT", "8081")
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

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	userRepo := storage.NewUserRepository(pool)
	companyRepo := storage.NewCompanyRepository(pool)
	roleRepo := storage.NewRoleRepository(pool)
	auditRepo := audit.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	refreshTTLHours := config.Int("REFRESH_TTL_HOURS", 720)
	if refreshTTLHours <= 0 {
		logger.Error("invalid refresh ttl hours", "value", refreshTTLHours)
		panic("invalid REFRESH_TTL_HOURS")
	}
	refreshTTL := time.Duration(refreshTTLHours) * time.Hour
	trialDays := config.Int("TRIAL_DAYS", 14)
	settingsRepo := storage.NewSettingsRepository(pool)

	authHandler := handlers.NewAuthHandler(signer, pool, userRepo, companyRepo, roleRepo, auditRepo, outboxRepo, refreshRepo, settingsRepo, refreshTTL, trialDays)
	accessHandler := handlers.NewAccessHandler(companyRepo, roleRepo, logger)
	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	mux.HandleFunc("/api/v1/auth/me", authHandler.Me)
	mux.HandleFunc("/api/v1/access/status", accessHandler.Status)
	mux.HandleFunc("/.well-known/jwks.json", authHandler.JWKS)

	if err := startGrpcServer(ctx, logger, pool); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "account")
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

func buildSigner() (handlers.TokenSigner, error) {
	if privatePEM := config.String("JWT_PRIVATE_KEY_PEM", ""); privatePEM != "" {
		return handlers.NewRS256Signer([]byte(privatePEM), config.String("JWT_KID", ""))
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}
