package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/dejobratic/laborders/internal/auth"
	"github.com/dejobratic/laborders/internal/clock"
	"github.com/dejobratic/laborders/internal/config"
	"github.com/dejobratic/laborders/internal/database"
	idemmemory "github.com/dejobratic/laborders/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/laborders/internal/idempotency/postgres"
	idemredis "github.com/dejobratic/laborders/internal/idempotency/redis"
	"github.com/dejobratic/laborders/internal/jobs"
	"github.com/dejobratic/laborders/internal/kafka"
	"github.com/dejobratic/laborders/internal/orders/adapters"
	httpadapter "github.com/dejobratic/laborders/internal/orders/adapters/http"
	ordersmemory "github.com/dejobratic/laborders/internal/orders/adapters/memory"
	orderspostgres "github.com/dejobratic/laborders/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/laborders/internal/orders/app"
	ordersmetrics "github.com/dejobratic/laborders/internal/orders/metrics"
	"github.com/dejobratic/laborders/internal/orders/ports"
	"github.com/dejobratic/laborders/internal/telemetry"
)

const meterName = "github.com/dejobratic/laborders"

func main() {
	if err := run(); err != nil {
		slog.Error("api exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.Telemetry.LogLevel)).
		With("service", cfg.Service.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := otel.Meter(meterName)

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create database metrics: %w", err)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create kafka metrics: %w", err)
	}
	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create order metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}

	var (
		pool     *pgxpool.Pool
		repo     ports.OrderRepository
		checkers = map[string]database.Pinger{}
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		pool, err = database.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("create database pool: %w", err)
		}
		defer pool.Close()

		if cfg.Database.AutoMigrate {
			logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
			if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("migrations completed successfully")
		}

		repo = orderspostgres.NewRepository(pool)
		checkers["database"] = pool
	default:
		logger.Warn("using in-memory order storage, data is lost on restart")
		repo = ordersmemory.NewRepository(clock.System())
	}
	repo = adapters.NewObservableRepository(repo, dbMetrics)

	var (
		idemStore ports.IdempotencyStore
		purger    jobs.ExpiredKeyPurger
	)
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendPostgres:
		store := idempostgres.NewStore(pool, clock.System(), cfg.Idempotency.TTL)
		idemStore, purger = store, store
	case config.IdempotencyBackendRedis:
		client, err := idemredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		idemStore = idemredis.NewStore(client, cfg.Idempotency.TTL)
		checkers["redis"] = pingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	default:
		store := idemmemory.NewStore(clock.System(), cfg.Idempotency.TTL)
		idemStore, purger = store, store
	}

	// Redis expires keys itself; the other stores need a periodic purge.
	if purger != nil {
		job := jobs.NewIdempotencyPurgeJob(purger, cfg.Idempotency.PurgeSchedule, clock.System(), logger)
		if err := job.Start(); err != nil {
			return fmt.Errorf("start idempotency purge job: %w", err)
		}
		defer job.Stop(context.Background())
	}

	var eventBus ports.EventBus
	if len(cfg.Kafka.Brokers) > 0 {
		bus := kafka.NewEventBus(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), clock.System())
		defer func() {
			if err := bus.Close(); err != nil {
				logger.Error("failed to close kafka writer", "error", err)
			}
		}()
		logger.Info("publishing order events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		eventBus = bus
	} else {
		eventBus = kafka.NewNoopEventBus(logger)
	}
	eventBus = adapters.NewObservableEventBus(eventBus, kafkaMetrics)

	service := ordersapp.NewService(repo, eventBus, idemStore, logger, orderMetrics)
	ordersHandler := httpadapter.NewHandler(service, logger)

	var protect func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return fmt.Errorf("create token verifier: %w", err)
		}
		protect = auth.Middleware(verifier, logger)
	} else {
		logger.Warn("authentication is disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		for name, checker := range checkers {
			if err := database.CheckHealth(r.Context(), checker); err != nil {
				logger.WarnContext(r.Context(), "readiness check failed", "dependency", name, "error", err)
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "dependency": name})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("GET "+cfg.HTTP.MetricsPath, tel.MetricsHandler())

	ordersHandler.Register(mux, protect)

	var handler http.Handler = mux
	handler = httpadapter.WithRecovery(handler, logger)
	handler = httpadapter.WithRequestLogging(handler, logger)
	handler = httpadapter.WithMetrics(handler, httpMetrics)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port, "storage", cfg.Storage.Driver, "idempotency", cfg.Idempotency.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
