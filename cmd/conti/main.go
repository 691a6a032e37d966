package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	apphttp "conti/internal/http"
	applog "conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/report"
	"conti/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.Slog()).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Ledger events are optional; the API serves reports without a broker.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.PublishEvents {
		amqpClient, err = amqp.NewClient(context.Background(), amqp.Config{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Queue:    cfg.AMQPQueue,
			Prefetch: cfg.AMQPPrefetch,
		}, logger.Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		publisher = amqpClient
	}

	engine := report.NewEngine(store.Store, logger.Slog())
	ledger := services.NewLedgerService(store.Store, publisher, logger.Slog())
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Engine:  engine,
		Ledger:  ledger,
		Ready:   store.Ping,
		Limiter: limiter,
		Logger:  logger.WithComponent(applog.ComponentHTTP),
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.InfoContext(ctx, "Starting conti server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"publish_events", cfg.PublishEvents)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
