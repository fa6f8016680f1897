package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"location_mapper/internal/events"
	"location_mapper/internal/mapper"
	"location_mapper/internal/scheduler"
	"location_mapper/platform/config"
	"location_mapper/platform/db"
	"location_mapper/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewInMemoryBus(log)
	eventBus.Subscribe(events.TaxonomyRunCompleted{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		done := e.(events.TaxonomyRunCompleted)
		log.Info("taxonomy run completed",
			"run_id", done.RunID,
			"stop_reason", done.StopReason,
			"nodes", done.Nodes,
			"aliases", done.Aliases,
			"requested_by", done.RequestedBy,
		)
		return nil
	}))

	var svc *mapper.Service
	var cleanup func()
	if err := withRetry(ctx, log, "mapper setup", 5, 2*time.Second, func() error {
		s, c, err := mapper.NewFromConfig(ctx, cfg, eventBus, log)
		if err != nil {
			return err
		}
		svc, cleanup = s, c
		return nil
	}); err != nil {
		log.Error("failed to initialize mapper", "error", err)
		panic("failed to initialize mapper: " + err.Error())
	}
	defer cleanup()

	if cfg.GetDatabaseURL() != "" {
		var pool *pgxpool.Pool
		if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
			p, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			pool = p
			return nil
		}); err != nil {
			log.Error("failed to connect to database", "error", err)
			panic("failed to connect to database: " + err.Error())
		}
		defer pool.Close()

		historyCleanup := scheduler.NewRunHistoryCleanup(pool, log, time.Hour, cfg.GetTaxonomyRunRetention())
		go historyCleanup.Run(ctx)
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to register periodic rebuild", "error", err)
		panic("failed to register periodic rebuild: " + err.Error())
	}
	go periodic.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, svc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
