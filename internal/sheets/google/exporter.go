// Package google exports report views to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "conti/internal/log"
	"conti/internal/report"
)

// Config holds the exporter settings.
type Config struct {
	SpreadsheetID      string
	SheetPrefix        string
	ServiceAccountJSON string
	ServiceAccountFile string

	// RetryAttempts and RetryDelay govern retries of rate-limited calls.
	RetryAttempts uint
	RetryDelay    time.Duration
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
	attempts      uint
	delay         time.Duration
	logger        *slog.Logger
}

// New builds an exporter authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Exporter, error) {
	creds, err := credentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: creds.TokenSource,
			Base:   newPooledTransport(),
		},
		Timeout: 60 * time.Second,
	}
	return NewWithOptions(ctx, cfg, logger, goption.WithHTTPClient(client))
}

// NewWithOptions builds an exporter over caller-supplied client options.
func NewWithOptions(ctx context.Context, cfg Config, logger *slog.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SheetPrefix == "" {
		cfg.SheetPrefix = "Conti"
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 60 * time.Second
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		prefix:        cfg.SheetPrefix,
		attempts:      cfg.RetryAttempts,
		delay:         cfg.RetryDelay,
		logger:        logger.With(applog.FieldComponent, applog.ComponentSheets),
	}, nil
}

func credentials(ctx context.Context, cfg Config) (*google.Credentials, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		data = []byte(cfg.ServiceAccountJSON)
	case cfg.ServiceAccountFile != "":
		data, err = os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	creds, err := google.CredentialsFromJSON(ctx, data, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return creds, nil
}

// newPooledTransport keeps connections to the Sheets API warm across the
// several calls of one export.
func newPooledTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Export writes every view of b to its own worksheet, creating missing
// worksheets and replacing previous contents.
func (e *Exporter) Export(ctx context.Context, b *report.Bundle) error {
	tables := Tables(e.prefix, b)

	existing, err := e.sheetTitles(ctx)
	if err != nil {
		return err
	}

	var missing []string
	for _, t := range tables {
		if !existing[t.Title] {
			missing = append(missing, t.Title)
		}
	}
	if err := e.addSheets(ctx, missing); err != nil {
		return err
	}

	for _, t := range tables {
		if err := e.writeTable(ctx, t); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "Exported report sheet",
			applog.FieldSheet, t.Title, "rows", len(t.Rows)-1)
	}
	return nil
}

func (e *Exporter) sheetTitles(ctx context.Context) (map[string]bool, error) {
	var ss *gsheet.Spreadsheet
	err := e.withRetry(ctx, func() error {
		var err error
		ss, err = e.svc.Spreadsheets.Get(e.spreadsheetID).
			Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}

	titles := make(map[string]bool, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles[s.Properties.Title] = true
		}
	}
	return titles, nil
}

func (e *Exporter) addSheets(ctx context.Context, titles []string) error {
	if len(titles) == 0 {
		return nil
	}
	reqs := make([]*gsheet.Request, 0, len(titles))
	for _, title := range titles {
		reqs = append(reqs, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		})
	}
	err := e.withRetry(ctx, func() error {
		_, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
			Requests: reqs,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("add sheets %v: %w", titles, err)
	}
	e.logger.InfoContext(ctx, "Created worksheets", "titles", titles)
	return nil
}

func (e *Exporter) writeTable(ctx context.Context, t Table) error {
	whole := quoteTitle(t.Title)
	err := e.withRetry(ctx, func() error {
		_, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, whole, &gsheet.ClearValuesRequest{}).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("clear %s: %w", t.Title, err)
	}

	vr := &gsheet.ValueRange{Values: t.Rows}
	err = e.withRetry(ctx, func() error {
		_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, whole+"!A1", vr).
			ValueInputOption("RAW").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", t.Title, err)
	}
	return nil
}

// withRetry retries fn while the API answers 429.
func (e *Exporter) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				e.logger.WarnContext(ctx, "rate limited, will retry", applog.FieldError, err)
				return true
			}
			return false
		}),
		retry.Attempts(e.attempts),
		retry.Delay(e.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// quoteTitle quotes a worksheet title for use in A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
