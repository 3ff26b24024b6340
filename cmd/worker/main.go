package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcelsud/webhook-outbox/config"
	"github.com/marcelsud/webhook-outbox/webhook"
	webhookredis "github.com/marcelsud/webhook-outbox/webhook/redis"
)

/* Standalone delivery worker process. Runs the same pool as cmd/api
 * without the HTTP surface, for scaling dispatch independently of
 * ingestion
 */

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := webhookredis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	sched, err := webhook.ParseSchedule(cfg.RetryDelays, cfg.MaxRetryAttempts)
	if err != nil {
		return err
	}

	registry := webhook.NewRegistry(repo, cfg.ConsecutiveFailureThreshold, logger)
	dispatcher := webhook.NewDispatcher(cfg.DispatchTimeout(), logger)
	pool := webhook.NewPool(repo, dispatcher, registry, sched, cfg.WorkerCount, logger)
	pool.Heartbeat = repo

	logger.Info("delivery workers started", "workers", cfg.WorkerCount)
	pool.Start(ctx)
	logger.Info("delivery workers stopped")
	return nil
}
