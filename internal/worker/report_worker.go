// Package worker answers report requests arriving over AMQP.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"conti/internal/amqp"
	applog "conti/internal/log"
	"conti/internal/report"
)

// Consumer is the part of amqp.Client the worker drives.
type Consumer interface {
	ServeReports(ctx context.Context, handler amqp.ReportHandler) error
	Reconnect(ctx context.Context) error
}

// ReportWorker builds the requested view and encodes it as the reply.
type ReportWorker struct {
	engine *report.Engine
	logger *slog.Logger

	// reconnectDelay separates reconnect attempts after a lost link.
	reconnectDelay time.Duration
}

func NewReportWorker(engine *report.Engine, logger *slog.Logger) *ReportWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportWorker{
		engine:         engine,
		logger:         logger.With(applog.FieldComponent, applog.ComponentWorker),
		reconnectDelay: 2 * time.Second,
	}
}

// HandleRequest builds the view req names. Failures, source
// unavailability included, are reported in the response.
func (w *ReportWorker) HandleRequest(ctx context.Context, req *amqp.ReportRequest) *amqp.ReportResponse {
	start := time.Now()
	f := req.Filter()

	w.logger.InfoContext(ctx, "Processing report request",
		applog.FieldCorrelationID, req.ID,
		applog.FieldReportKind, req.Kind,
		applog.FieldFrom, f.From.String(),
		applog.FieldTo, f.To.String())

	data, err := w.engine.Build(ctx, req.Kind, f)
	if err != nil {
		w.logger.ErrorContext(ctx, "Report build failed",
			applog.FieldCorrelationID, req.ID,
			applog.FieldReportKind, req.Kind,
			applog.FieldError, err)
		return amqp.ErrorResponse(req.ID, req.Kind, err)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return amqp.ErrorResponse(req.ID, req.Kind, err)
	}

	w.logger.InfoContext(ctx, "Report request answered",
		applog.FieldCorrelationID, req.ID,
		applog.FieldReportKind, req.Kind,
		applog.FieldDuration, time.Since(start).Milliseconds())

	return &amqp.ReportResponse{
		RequestID:   req.ID,
		Kind:        req.Kind,
		Data:        body,
		GeneratedAt: time.Now(),
	}
}

// Run serves requests until ctx ends. A lost broker link is redialed;
// any other consumer failure is returned.
func (w *ReportWorker) Run(ctx context.Context, c Consumer) error {
	for {
		err := c.ServeReports(ctx, w.HandleRequest)
		if ctx.Err() != nil {
			return nil
		}
		if !amqp.IsConnectionError(err) {
			return err
		}

		w.logger.WarnContext(ctx, "Lost AMQP connection, reconnecting", applog.FieldError, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.reconnectDelay):
		}
		if err := c.Reconnect(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
