package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/antoniostano/taskmill/internal/config"
	"github.com/antoniostano/taskmill/internal/engine"
	"github.com/antoniostano/taskmill/internal/httpapi"
	"github.com/antoniostano/taskmill/internal/observability"
	"github.com/antoniostano/taskmill/internal/planner"
	"github.com/antoniostano/taskmill/internal/scheduler"
	"github.com/antoniostano/taskmill/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	registry := tasks.NewRegistry(cfg.IdempotencyWindow, cfg.EventHistoryLimit)
	registry.SetEventHook(func(evt tasks.Event) {
		metrics.ObserveTaskEvent(string(evt.Type))
	})

	storeMode := "memory"
	store, err := tasks.NewStore(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("task store init failed", zap.Error(err))
	}
	if store != nil {
		registry.SetStore(store)
		storeMode = "postgres"
		defer store.Close()
	}
	logger.Info("task store ready", zap.String("mode", storeMode))

	plan, err := planner.NewPlanner(planner.Config{
		Mode:    cfg.PlannerMode,
		HTTPURL: cfg.PlannerHTTPURL,
	})
	if err != nil {
		logger.Fatal("planner init failed", zap.Error(err))
	}
	plans := planner.NewService(plan, cfg.MaxStepsPerChunk, cfg.PlanRetries, cfg.RetryBackoffBase, cfg.RetryBackoffCap)

	executor, err := engine.NewExecutor(engine.ExecutorConfig{
		Mode:    cfg.ExecutorMode,
		HTTPURL: cfg.ExecutorHTTPURL,
	})
	if err != nil {
		logger.Fatal("executor init failed", zap.Error(err))
	}

	eng := engine.New(engine.Config{
		Registry:    registry,
		Plans:       plans,
		Executor:    executor,
		Logger:      logger.Named("engine"),
		Metrics:     metrics,
		BackoffBase: cfg.RetryBackoffBase,
		BackoffCap:  cfg.RetryBackoffCap,
	})

	sched := scheduler.New(scheduler.Config{
		Registry:       registry,
		Engine:         eng,
		Logger:         logger.Named("scheduler"),
		Metrics:        metrics,
		MaxConcurrency: cfg.MaxConcurrency,
		Defaults: scheduler.Defaults{
			Priority:   tasks.Priority(cfg.DefaultPriority),
			MaxRetries: cfg.DefaultMaxRetries,
			Timeout:    cfg.DefaultTimeout,
		},
	})

	api := httpapi.New(cfg, registry, sched, metrics, logger.Named("httpapi"), store, storeMode)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown timed out", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func initLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
