// The worker keeps schedules current without CLI involvement: it consumes
// task events from the bus, re-runs the pipeline on a periodic tick so
// deadline urgency and series materialization stay fresh, and reconciles
// calendars on a sync loop.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/qzwhatnext/qzwhatnext/internal/app"
	schedulingapp "github.com/qzwhatnext/qzwhatnext/internal/scheduling/application"
	"github.com/qzwhatnext/qzwhatnext/internal/shared/infrastructure/eventbus"
	"github.com/qzwhatnext/qzwhatnext/pkg/config"
	"github.com/qzwhatnext/qzwhatnext/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting qzwhatnext worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	// Consume task events so writes from any process trigger rebuilds.
	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    cfg.RabbitMQURL,
		Logger: logger,
	}, eventbus.NewConsumerRegistry(logger))
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to connect consumer", "error", err)
			os.Exit(1)
		}
		logger.Warn("RabbitMQ not available, running on timers only", "error", err)
	} else {
		consumer.RegisterConsumer(container.RebuildConsumer)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
				cancel()
			}
		}()
		defer consumer.Close()
	}

	go runScheduleTick(ctx, container, cfg.ScheduleTickInterval)
	go runSyncLoop(ctx, container, cfg.SyncInterval)

	<-ctx.Done()
	logger.Info("worker stopped")
}

// runScheduleTick rebuilds every user's schedule on an interval. The tick
// is what marks overdue habit occurrences missed and keeps deadline
// urgency current even when nothing was edited.
func runScheduleTick(ctx context.Context, container *app.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			forEachUser(ctx, container, func(userID uuid.UUID) {
				_, _, err := container.Coordinator.Trigger(ctx, userID, "tick")
				if err != nil && !errors.Is(err, schedulingapp.ErrRebuildLocked) {
					container.Logger.Error("tick rebuild failed", "user_id", userID, "error", err)
				}
			})
		}
	}
}

// runSyncLoop reconciles calendars on an interval and rebuilds when a
// pass imported external changes.
func runSyncLoop(ctx context.Context, container *app.Container, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			forEachUser(ctx, container, func(userID uuid.UUID) {
				result, err := container.Synchronizer.Sync(ctx, userID, time.Now())
				if err != nil {
					container.Logger.Warn("sync pass failed", "user_id", userID, "error", err)
					return
				}
				if result.Dirty() {
					_, _, err := container.Coordinator.Trigger(ctx, userID, "calendar_change")
					if err != nil && !errors.Is(err, schedulingapp.ErrRebuildLocked) {
						container.Logger.Error("post-sync rebuild failed", "user_id", userID, "error", err)
					}
				}
			})
		}
	}
}

func forEachUser(ctx context.Context, container *app.Container, fn func(uuid.UUID)) {
	users, err := container.Users.List(ctx)
	if err != nil {
		container.Logger.Error("failed to list users", "error", err)
		return
	}
	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		fn(u.ID())
	}
}
