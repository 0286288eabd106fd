package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qzwhatnext/qzwhatnext/adapter/cli"
	"github.com/qzwhatnext/qzwhatnext/adapter/cli/schedule"
	"github.com/qzwhatnext/qzwhatnext/adapter/cli/series"
	"github.com/qzwhatnext/qzwhatnext/adapter/cli/task"
	"github.com/qzwhatnext/qzwhatnext/adapter/cli/token"
	"github.com/qzwhatnext/qzwhatnext/adapter/cli/user"
	"github.com/qzwhatnext/qzwhatnext/internal/app"
	"github.com/qzwhatnext/qzwhatnext/pkg/config"
	"github.com/qzwhatnext/qzwhatnext/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cli.SetLogger(logger)

	container, err := buildContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	cli.SetApp(&cli.App{
		TaskHandler:   container.TaskHandler,
		Identity:      container.Identity,
		Coordinator:   container.Coordinator,
		Synchronizer:  container.Synchronizer,
		Users:         container.Users,
		Tokens:        container.Tokens,
		Tasks:         container.Tasks,
		Series:        container.Series,
		TimeBlocks:    container.TimeBlocks,
		Blocks:        container.Blocks,
		AuditLog:      container.AuditLog,
		HorizonDays:   cfg.HorizonDays,
		CurrentUserID: container.DefaultUserID,
	})

	cli.AddCommand(task.Cmd)
	cli.AddCommand(series.Cmd)
	cli.AddCommand(series.TimeBlockCmd)
	cli.AddCommand(schedule.Cmd)
	cli.AddCommand(user.Cmd)
	cli.AddCommand(token.Cmd)

	cli.ExecuteContext(ctx)
}

// buildContainer picks local or connected mode. A development environment
// that cannot reach PostgreSQL degrades to local mode instead of failing.
func buildContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Container, error) {
	if cfg.LocalMode {
		return app.NewLocalContainer(ctx, cfg, logger)
	}
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil && cfg.IsDevelopment() {
		logger.Warn("falling back to local mode", "error", err)
		return app.NewLocalContainer(ctx, cfg, logger)
	}
	return container, err
}
