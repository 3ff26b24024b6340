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

	"github.com/marcelsud/webhook-outbox/config"
	chihandlers "github.com/marcelsud/webhook-outbox/internal/http/chi"
	"github.com/marcelsud/webhook-outbox/metrics"
	"github.com/marcelsud/webhook-outbox/subscriptions"
	"github.com/marcelsud/webhook-outbox/webhook"
	webhookredis "github.com/marcelsud/webhook-outbox/webhook/redis"
)

const shutdownTimeout = 30 * time.Second

/* Entrypoint: every dependency is constructed here with an explicit
 * lifecycle - opened at process start, closed at shutdown. Imports flow
 * one direction only: the application wires the business layer, which
 * wires the storage layer
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
	publisher := webhook.NewPublisher(repo, registry, logger)

	if cfg.WebhooksFile != "" {
		loader := subscriptions.NewLoader()
		if err := loader.Load(cfg.WebhooksFile); err != nil {
			return err
		}
		seeded, err := loader.Seed(ctx, repo)
		if err != nil {
			return err
		}
		logger.Info("seeded webhook subscriptions", "file", cfg.WebhooksFile, "count", seeded)
	}

	dispatcher := webhook.NewDispatcher(cfg.DispatchTimeout(), logger)
	pool := webhook.NewPool(repo, dispatcher, registry, sched, cfg.WorkerCount, logger)
	pool.Heartbeat = repo
	go pool.Start(ctx)

	collector := metrics.NewRedisCollector(repo)
	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: exporter.ServeHTTP(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	r := chihandlers.Handlers(ctx, registry, publisher)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, metricsSrv, ctx, errShutdown)
	logger.Info("listening", "port", cfg.Port, "metrics_port", cfg.MetricsPort, "workers", cfg.WorkerCount)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-errShutdown
}

func shutdown(server, metricsServer *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	_ = metricsServer.Shutdown(ctxTimeout)

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing server close")
	default:
		errShutdown <- fmt.Errorf("forcing server close")
	}
}
