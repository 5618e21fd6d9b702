package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the task execution service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string

	AllowAnyOrigin bool

	MaxConcurrency    int
	MaxStepsPerChunk  int
	DefaultMaxRetries int
	DefaultTimeout    time.Duration
	DefaultPriority   string

	PlanRetries      int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration

	IdempotencyWindow time.Duration
	EventHistoryLimit int

	PlannerMode    string
	PlannerHTTPURL string

	ExecutorMode    string
	ExecutorHTTPURL string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "taskmill"),
		LogLevel:          envOrDefault("APP_LOG_LEVEL", "info"),
		AllowAnyOrigin:    false,
		MaxConcurrency:    3,
		MaxStepsPerChunk:  5,
		DefaultMaxRetries: 3,
		DefaultTimeout:    5 * time.Minute,
		DefaultPriority:   envOrDefault("TASK_DEFAULT_PRIORITY", "normal"),
		PlanRetries:       2,
		RetryBackoffBase:  500 * time.Millisecond,
		RetryBackoffCap:   30 * time.Second,
		IdempotencyWindow: 10 * time.Second,
		EventHistoryLimit: 512,
		PlannerMode:       envOrDefault("PLANNER_MODE", "auto"),
		PlannerHTTPURL:    stringsTrimSpace("PLANNER_HTTP_URL"),
		ExecutorMode:      envOrDefault("EXECUTOR_MODE", "auto"),
		ExecutorHTTPURL:   stringsTrimSpace("EXECUTOR_HTTP_URL"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:   15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxConcurrency, err = intFromEnv("TASK_MAX_CONCURRENCY", cfg.MaxConcurrency)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxStepsPerChunk, err = intFromEnv("TASK_MAX_STEPS_PER_CHUNK", cfg.MaxStepsPerChunk)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultMaxRetries, err = intFromEnv("TASK_DEFAULT_MAX_RETRIES", cfg.DefaultMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultTimeout, err = durationFromEnv("TASK_DEFAULT_TIMEOUT", cfg.DefaultTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PlanRetries, err = intFromEnv("TASK_PLAN_RETRIES", cfg.PlanRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffBase, err = durationFromEnv("TASK_RETRY_BACKOFF_BASE", cfg.RetryBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffCap, err = durationFromEnv("TASK_RETRY_BACKOFF_CAP", cfg.RetryBackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.IdempotencyWindow, err = durationFromEnv("TASK_IDEMPOTENCY_WINDOW", cfg.IdempotencyWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.EventHistoryLimit, err = intFromEnv("TASK_EVENT_HISTORY_LIMIT", cfg.EventHistoryLimit)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxConcurrency <= 0 {
		return Config{}, fmt.Errorf("TASK_MAX_CONCURRENCY must be positive")
	}
	if cfg.MaxStepsPerChunk <= 0 {
		return Config{}, fmt.Errorf("TASK_MAX_STEPS_PER_CHUNK must be positive")
	}
	if cfg.DefaultMaxRetries < 0 {
		return Config{}, fmt.Errorf("TASK_DEFAULT_MAX_RETRIES must be >= 0")
	}
	if cfg.DefaultTimeout < time.Second {
		return Config{}, fmt.Errorf("TASK_DEFAULT_TIMEOUT must be at least 1s")
	}
	if cfg.PlanRetries < 0 {
		return Config{}, fmt.Errorf("TASK_PLAN_RETRIES must be >= 0")
	}
	if cfg.RetryBackoffBase <= 0 {
		return Config{}, fmt.Errorf("TASK_RETRY_BACKOFF_BASE must be positive")
	}
	if cfg.RetryBackoffCap < cfg.RetryBackoffBase {
		return Config{}, fmt.Errorf("TASK_RETRY_BACKOFF_CAP must be >= TASK_RETRY_BACKOFF_BASE")
	}
	if cfg.EventHistoryLimit <= 0 {
		return Config{}, fmt.Errorf("TASK_EVENT_HISTORY_LIMIT must be positive")
	}
	switch cfg.DefaultPriority {
	case "high", "normal", "low":
	default:
		return Config{}, fmt.Errorf("TASK_DEFAULT_PRIORITY must be high, normal or low")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
