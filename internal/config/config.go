// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Directory containing the markdown document templates
	TemplatesDir string

	// Generation service settings
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Worker-specific configuration
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	TaskTimeout        time.Duration

	// Controller rate limit (requests per second per client, 0 = unlimited)
	RateLimit float64

	// OTLP collector address for traces (empty disables tracing)
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	port := 6161 // Default
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	templatesDir := os.Getenv("TEMPLATES_DIR")
	if templatesDir == "" {
		templatesDir = "templates"
	}

	concurrency := 1 // Default
	if concurrencyStr := os.Getenv("WORKER_CONCURRENCY"); concurrencyStr != "" {
		c, err := strconv.Atoi(concurrencyStr)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
		}
		concurrency = c
	}

	pollInterval := 1 * time.Second // Default
	if pollIntervalStr := os.Getenv("WORKER_POLL_INTERVAL"); pollIntervalStr != "" {
		pi, err := time.ParseDuration(pollIntervalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_POLL_INTERVAL: %w", err)
		}
		pollInterval = pi
	}

	taskTimeout := 15 * time.Minute
	if taskTimeoutStr := os.Getenv("TASK_TIMEOUT"); taskTimeoutStr != "" {
		tt, err := time.ParseDuration(taskTimeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TASK_TIMEOUT: %w", err)
		}
		taskTimeout = tt
	}

	rateLimit := 0.0
	if rateLimitStr := os.Getenv("RATE_LIMIT"); rateLimitStr != "" {
		rl, err := strconv.ParseFloat(rateLimitStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
		}
		rateLimit = rl
	}

	return &Config{
		DatabaseURL:        dbURL,
		HTTPPort:           port,
		LogLevel:           os.Getenv("LOG_LEVEL"),
		TemplatesDir:       templatesDir,
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		WorkerConcurrency:  concurrency,
		WorkerPollInterval: pollInterval,
		TaskTimeout:        taskTimeout,
		RateLimit:          rateLimit,
		OTELEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
