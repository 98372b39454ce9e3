// Package main is the entry point for the docforge worker.
// The worker pulls pipeline tasks from the queue and runs the generation
// stages. It owns concurrency, timeouts, and retry bookkeeping.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docforge/internal/config"
	"docforge/internal/events"
	"docforge/internal/llm/openai"
	"docforge/internal/logger"
	"docforge/internal/observability"
	"docforge/internal/pipeline"
	"docforge/internal/store/postgres"
	"docforge/internal/template"
	"docforge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "docforge-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	registry := template.NewRegistry(cfg.TemplatesDir)
	llmClient := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}, logg)
	publisher := events.NewPGPublisher(st.DB())

	orch := pipeline.New(st, st, llmClient, publisher, registry, pipeline.DefaultConfig(), logg)

	hostname, _ := os.Hostname()
	agent := worker.New(st, orch, orch, worker.AgentConfig{
		ID:           hostname,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		TaskTimeout:  cfg.TaskTimeout,
	}, logg)

	if err := agent.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Worker exited with error: %v", err)
	}
	<-agent.Done()
}
