package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conti/internal/backend"
	"conti/internal/cli"
	applog "conti/internal/log"
	"conti/internal/report"
	gsheet "conti/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSheets)
	cfg := cli.LoadAndValidateConfig(logger)

	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration invalid", applog.FieldError, err)
		os.Exit(1)
	}
	filter, _ := cfg.ExportFilter()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.Slog()).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer store.Cleanup()

	exporter, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetPrefix:        cfg.GoogleSheetPrefix,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger.Slog())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}

	start := time.Now()
	bundle, err := report.NewEngine(store.Store, logger.Slog()).GetAll(ctx, filter)
	if err != nil {
		logger.Error("Failed to build reports", applog.FieldError, err)
		os.Exit(1)
	}
	if err := exporter.Export(ctx, bundle); err != nil {
		logger.Error("Export failed", applog.FieldError, err, applog.FieldOperation, applog.OpExport)
		os.Exit(1)
	}

	logger.Info("Export completed",
		applog.FieldOperation, applog.OpExport,
		applog.FieldFrom, filter.From.String(),
		applog.FieldTo, filter.To.String(),
		"ledger_lines", len(bundle.Ledger),
		applog.FieldDuration, time.Since(start).Milliseconds())
}
