package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/source"
)

// Engine is the caller-facing boundary of the report builders. It holds
// no mutable state; concurrent calls are safe when the source allows
// concurrent reads.
type Engine struct {
	src    source.Source
	logger *slog.Logger
}

func NewEngine(src source.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		src:    src,
		logger: logger.With(applog.FieldComponent, applog.ComponentReport),
	}
}

// GetLedger returns the running-balance ledger for f.
func (e *Engine) GetLedger(ctx context.Context, f core.Filter) ([]LedgerLine, error) {
	rows, err := e.load(ctx, f, applog.OpLedger)
	if err != nil {
		return nil, err
	}
	return BuildLedger(rows), nil
}

// GetByMonth returns the month-grouped view for f.
func (e *Engine) GetByMonth(ctx context.Context, f core.Filter) ([]MonthGroup, error) {
	rows, err := e.load(ctx, f, applog.OpByMonth)
	if err != nil {
		return nil, err
	}
	return BuildByMonth(BuildLedger(rows)), nil
}

// GetByCategory returns the category-grouped view for f.
func (e *Engine) GetByCategory(ctx context.Context, f core.Filter) ([]CategoryGroup, error) {
	rows, err := e.load(ctx, f, applog.OpByCategory)
	if err != nil {
		return nil, err
	}
	return BuildByCategory(BuildLedger(rows)), nil
}

// GetByMonthAndCategory returns the cross-tabulation for f. When not
// empty, the last record is the TOTALS record.
func (e *Engine) GetByMonthAndCategory(ctx context.Context, f core.Filter) ([]MonthCategoryRecord, error) {
	rows, err := e.load(ctx, f, applog.OpCrossTab)
	if err != nil {
		return nil, err
	}
	return BuildByMonthAndCategory(BuildByMonth(BuildLedger(rows))), nil
}

// GetAll builds the four views concurrently. The first failure cancels
// the remaining reads.
func (e *Engine) GetAll(ctx context.Context, f core.Filter) (*Bundle, error) {
	b := &Bundle{Filter: f}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.Ledger, err = e.GetLedger(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		b.ByMonth, err = e.GetByMonth(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		b.ByCategory, err = e.GetByCategory(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		b.ByMonthAndCategory, err = e.GetByMonthAndCategory(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

// load reads the qualifying rows for f. Filter misses and inverted ranges
// yield no rows; only source failures are returned as errors.
func (e *Engine) load(ctx context.Context, f core.Filter, op string) ([]source.RowResult, error) {
	if f.Empty() {
		e.logger.DebugContext(ctx, "Empty date range, nothing to report",
			applog.FieldOperation, op, applog.FieldFrom, f.From.String(), applog.FieldTo, f.To.String())
		return nil, nil
	}

	if f.ByCategory {
		ok, err := e.src.CategoryExists(ctx, f.CategoryID)
		if err != nil {
			return nil, e.unavailable(ctx, op, err)
		}
		if !ok {
			e.logger.DebugContext(ctx, "Category filter matches no category",
				applog.FieldOperation, op, applog.FieldCategoryID, f.CategoryID)
			return nil, nil
		}
	}

	start, end := f.Bounds()
	rows, err := e.src.ListExpensesJoined(ctx, source.Query{
		Start:      start,
		End:        end,
		ByCategory: f.ByCategory,
		CategoryID: f.CategoryID,
	})
	if err != nil {
		return nil, e.unavailable(ctx, op, err)
	}

	kept := rows[:0:0]
	skipped := 0
	for _, r := range rows {
		if r.Err != nil {
			skipped++
			e.logger.WarnContext(ctx, "Skipping malformed transaction",
				applog.FieldOperation, op,
				applog.FieldExpenseID, r.ExpenseID,
				applog.FieldError, r.Err)
			continue
		}
		kept = append(kept, r)
	}

	e.logger.DebugContext(ctx, "Report rows loaded",
		applog.FieldOperation, op, "rows", len(kept), "skipped", skipped)
	return kept, nil
}

func (e *Engine) unavailable(ctx context.Context, op string, err error) error {
	e.logger.ErrorContext(ctx, "Transaction source read failed",
		applog.FieldOperation, op, applog.FieldError, err)
	if errors.Is(err, source.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
}
