// Command sightline runs the telemetry hub: it ingests execution events
// from producers over NATS or HTTP, fans them out to connected observers
// over WebSocket, and serves cost/budget aggregation queries.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	slhttp "github.com/sightline-hq/sightline/internal/adapter/http"
	slnats "github.com/sightline-hq/sightline/internal/adapter/nats"
	otelx "github.com/sightline-hq/sightline/internal/adapter/otel"
	"github.com/sightline-hq/sightline/internal/adapter/postgres"
	"github.com/sightline-hq/sightline/internal/adapter/ristretto"
	"github.com/sightline-hq/sightline/internal/adapter/ws"
	"github.com/sightline-hq/sightline/internal/config"
	"github.com/sightline-hq/sightline/internal/domain/agent"
	"github.com/sightline-hq/sightline/internal/domain/telemetry"
	"github.com/sightline-hq/sightline/internal/logger"
	"github.com/sightline-hq/sightline/internal/resilience"
	"github.com/sightline-hq/sightline/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"backlog", cfg.Hub.BacklogCapacity,
		"window", cfg.Consumer.WindowCapacity,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("postgres ready")

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	ingest, err := slnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Subject, metrics)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = ingest.Close() }()

	summaryCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer summaryCache.Close()

	catalog, err := agent.LoadCatalog(cfg.Agents.ProfilePath)
	if err != nil {
		return fmt.Errorf("agent profiles: %w", err)
	}
	slog.Info("agent profiles loaded", "count", catalog.Len())

	// --- Services ---

	hub := ws.NewHub(cfg.Hub.BacklogCapacity, cfg.Hub.ObserverQueueCapacity, metrics)
	defer hub.Close()

	store := postgres.NewEventStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	ingestSvc := service.NewIngestService(store, hub, metrics)
	costSvc := service.NewCostService(store, catalog, summaryCache, breaker, cfg.Cache.SummaryTTL)

	stopConsume, err := ingest.Start(ctx, func(ctx context.Context, ev telemetry.ExecutionEvent) {
		if _, err := ingestSvc.Record(ctx, ev); err != nil {
			slog.Warn("producer event rejected", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("ingest subscriber: %w", err)
	}
	defer stopConsume()

	// --- HTTP ---

	handlers := &slhttp.Handlers{
		Cost:    costSvc,
		Ingest:  ingestSvc,
		Catalog: catalog,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(slhttp.RequestID)
	r.Use(slhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(slhttp.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", healthHandler(hub))
	r.Get("/ws", hub.HandleWS)
	slhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// healthHandler reports process liveness plus observer count for quick
// operational checks.
func healthHandler(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","observers":%d}`, hub.ConnectionCount())
	}
}
