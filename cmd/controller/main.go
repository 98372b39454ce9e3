// Package main is the entry point for the docforge controller.
// The controller is the stateless HTTP API: it accepts jobs, merges answers,
// and re-exposes pipeline progress as Server-Sent Events. All generation
// work happens in the workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"docforge/internal/config"
	"docforge/internal/controller"
	"docforge/internal/controller/handlers"
	"docforge/internal/events"
	"docforge/internal/llm/openai"
	"docforge/internal/logger"
	"docforge/internal/observability"
	"docforge/internal/pipeline"
	"docforge/internal/store/postgres"
	"docforge/internal/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to Postgres (the "Store")
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	if *migrateFlag {
		logg.Info("running database migrations")
		if err := postgres.Migrate(st.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		logg.Info("migrations completed")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "docforge-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logg.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	// Observable gauge that queries the DB only when scraped.
	meter := otel.Meter("docforge-controller")
	_, err = meter.Int64ObservableGauge("docforge.queue.depth",
		metric.WithDescription("Current number of tasks in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.Count(ctx)
			if err != nil {
				logg.Warn("failed to count queue depth", "error", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		logg.Warn("failed to register queue depth metric", "error", err)
	}

	registry := template.NewRegistry(cfg.TemplatesDir)
	llmClient := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}, logg)

	// The controller only uses the orchestrator for clarification (no job
	// mutation), so the nop publisher is fine here.
	orch := pipeline.New(st, st, llmClient, events.NopPublisher{}, registry, pipeline.DefaultConfig(), logg)

	h := handlers.New(st, registry, orch, cfg.DatabaseURL, logg)
	srv := controller.New(fmt.Sprintf(":%d", cfg.HTTPPort), h, cfg.RateLimit, metricsHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info("controller listening", "port", cfg.HTTPPort)
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("Controller exited with error: %v", err)
	}
}
