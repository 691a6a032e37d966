package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/cli"
	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/report"
)

func main() {
	kindFlag := flag.String("kind", string(report.KindLedger), fmt.Sprintf("report to request, one of %v", report.Kinds))
	from := flag.String("from", "", "first day, YYYY-MM-DD")
	to := flag.String("to", "", "last day, YYYY-MM-DD")
	category := flag.Int64("category", 0, "restrict to one category id")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for the reply")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentAMQP)
	cfg := cli.LoadAndValidateConfig(logger)

	kind, err := report.ParseKind(*kindFlag)
	if err != nil {
		logger.Error("Invalid report kind", applog.FieldError, err)
		os.Exit(2)
	}
	filter, err := buildFilter(*from, *to, *category, isSet("category"))
	if err != nil {
		logger.Error("Invalid filter", applog.FieldError, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := amqp.NewClient(ctx, amqp.Config{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
		Prefetch: cfg.AMQPPrefetch,
	}, logger.Slog())
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	resp, err := client.RequestReport(ctx, amqp.NewReportRequest(kind, filter))
	if err != nil {
		logger.Error("Report request failed", applog.FieldError, err, applog.FieldReportKind, string(kind))
		os.Exit(1)
	}
	if resp.Error != "" {
		logger.Error("Worker returned an error", applog.FieldError, resp.Error,
			applog.FieldCorrelationID, resp.RequestID)
		os.Exit(1)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp.Data, "", "  "); err != nil {
		logger.Error("Malformed report data", applog.FieldError, err)
		os.Exit(1)
	}
	out.WriteByte('\n')
	_, _ = out.WriteTo(os.Stdout)
}

func buildFilter(from, to string, category int64, byCategory bool) (core.Filter, error) {
	var f core.Filter
	var err error
	if from != "" {
		if f.From, err = core.ParseDate(from); err != nil {
			return core.Filter{}, fmt.Errorf("from: %w", err)
		}
	}
	if to != "" {
		if f.To, err = core.ParseDate(to); err != nil {
			return core.Filter{}, fmt.Errorf("to: %w", err)
		}
	}
	if byCategory {
		f = f.ForCategory(category)
	}
	return f, nil
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
