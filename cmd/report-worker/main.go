package main

import (
	"context"
	"errors"
	"os"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	applog "conti/internal/log"
	"conti/internal/report"
	"conti/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.InfoContext(context.Background(), "Starting report-worker",
		applog.FieldOperation, applog.OpStartup,
		"backend", cfg.DataBackend,
		"queue", cfg.AMQPQueue)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.Slog()).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(context.Background(), amqp.Config{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
		Prefetch: cfg.AMQPPrefetch,
	}, logger.Slog())
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", applog.FieldError, err)
		}
	})

	w := worker.NewReportWorker(report.NewEngine(store.Store, logger.Slog()), logger.Slog())
	if err := w.Run(ctx, client); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Report worker stopped", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Report worker stopped gracefully")
}
