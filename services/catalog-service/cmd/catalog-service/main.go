package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/barbersoft/backend/libs/config"
	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/libs/httpx"
	otelx "github.com/barbersoft/backend/libs/otel"
	"github.com/barbersoft/backend/libs/runtime"
	"github.com/barbersoft/backend/services/catalog-service/internal/handlers"
	"github.com/barbersoft/backend/services/catalog-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "catalog-service")
	port, err := config.Port("PORT", "8082")
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

	repo := storage.NewRepository(pool)
	httpHandler := handlers.New(repo)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/catalog/units", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			httpHandler.ListUnits(w, r)
			return
		}
		if r.Method == http.MethodPost {
			httpHandler.CreateUnit(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/catalog/barbers", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			httpHandler.CreateBarber(w, r)
		case http.MethodGet:
			httpHandler.ListBarbers(w, r)
		case http.MethodPut:
			httpHandler.UpdateBarber(w, r)
		case http.MethodDelete:
			httpHandler.DeleteBarber(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/catalog/barbers/earnings", httpHandler.BarberEarnings)
	mux.HandleFunc("/api/v1/catalog/services", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			httpHandler.CreateService(w, r)
		case http.MethodGet:
			httpHandler.ListServices(w, r)
		case http.MethodPut:
			httpHandler.UpdateService(w, r)
		case http.MethodDelete:
			httpHandler.DeleteService(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/catalog/appointments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			httpHandler.CreateAppointment(w, r)
		case http.MethodGet:
			httpHandler.ListAppointments(w, r)
		case http.MethodPut:
			httpHandler.UpdateAppointmentStatus(w, r)
		case http.MethodDelete:
			httpHandler.DeleteAppointment(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "catalog")
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
