package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/source"
	"conti/internal/source/memory"
)

type seedExpense struct {
	id     int64
	date   string
	desc   string
	amount string
	cat    int64
}

func newStore(t *testing.T, cats map[int64]string, items []seedExpense) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	for id := int64(1); id <= int64(len(cats)); id++ {
		got, err := s.AddCategory(ctx, core.Category{Description: cats[id], Type: core.TypeExpense})
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
	for _, it := range items {
		s.PutRaw(it.id, it.date, it.desc, it.amount, it.cat)
	}
	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func january() core.Filter {
	return core.Filter{From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 1, 31)}
}

func TestGetLedgerRunningBalance(t *testing.T) {
	store := newStore(t, map[int64]string{1: "Groceries"}, []seedExpense{
		{1, "2025-01-05", "Market", "30", 1},
		{2, "2025-01-10", "Bakery", "5", 1},
	})
	e := NewEngine(store, nil)

	lines, err := e.GetLedger(context.Background(), january())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Balance.Equal(dec("30")))
	assert.True(t, lines[1].Balance.Equal(dec("35")))
	assert.Equal(t, "Groceries", lines[0].CategoryDescription)
}

func TestGetLedgerTieBreakAndSign(t *testing.T) {
	store := newStore(t, map[int64]string{1: "Salary", 2: "Rent"}, []seedExpense{
		{7, "2025-01-01", "Rent", "-800", 2},
		{3, "2025-01-01", "Pay", "2000", 1},
		{9, "2025-01-02", "Refund", "12.50", 2},
	})
	lines, err := NewEngine(store, nil).GetLedger(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, []int64{3, 7, 9}, []int64{lines[0].ExpenseID, lines[1].ExpenseID, lines[2].ExpenseID})
	assert.True(t, lines[1].Amount.Equal(dec("-800")), "stored sign must be kept")
	assert.True(t, lines[2].Balance.Equal(dec("1212.5")))
}

func TestGetLedgerRangeIsInclusive(t *testing.T) {
	store := newStore(t, map[int64]string{1: "C"}, []seedExpense{
		{1, "2024-12-31", "before", "1", 1},
		{2, "2025-01-01", "first day", "2", 1},
		{3, "2025-01-31", "last day", "3", 1},
		{4, "2025-02-01", "after", "4", 1},
	})
	lines, err := NewEngine(store, nil).GetLedger(context.Background(), january())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(2), lines[0].ExpenseID)
	assert.Equal(t, int64(3), lines[1].ExpenseID)
}

func TestGetLedgerShortDescription(t *testing.T) {
	long := "  a very long description that keeps going well past the cap  "
	store := newStore(t, map[int64]string{1: "C"}, []seedExpense{{1, "2025-01-01", long, "1", 1}})
	lines, err := NewEngine(store, nil).GetLedger(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.LessOrEqual(t, len([]rune(lines[0].ShortDescription)), ShortDescriptionLen)
	assert.Equal(t, "a very long description", lines[0].ShortDescription[:23])
}

func TestGetByMonth(t *testing.T) {
	store := newStore(t, map[int64]string{1: "Groceries"}, []seedExpense{
		{1, "2025-01-05", "Market", "30", 1},
		{2, "2025-01-10", "Bakery", "5", 1},
		{3, "2025-02-02", "Market", "3", 1},
	})
	groups, err := NewEngine(store, nil).GetByMonth(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "2025/01", groups[0].MonthKey)
	assert.True(t, groups[0].Total.Equal(dec("35")))
	assert.Len(t, groups[0].Lines, 2)
	assert.Equal(t, "2025/02", groups[1].MonthKey)
	assert.True(t, groups[1].Total.Equal(dec("3")))
	for _, l := range groups[0].Lines {
		assert.True(t, l.Balance.IsZero(), "grouped lines carry no running balance")
	}
}

func TestGetByMonthSkipsEmptyMonths(t *testing.T) {
	store := newStore(t, map[int64]string{1: "C"}, []seedExpense{
		{1, "2025-01-05", "a", "1", 1},
		{2, "2025-04-05", "b", "1", 1},
	})
	groups, err := NewEngine(store, nil).GetByMonth(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "2025/01", groups[0].MonthKey)
	assert.Equal(t, "2025/04", groups[1].MonthKey)
}

func TestGetByCategoryOrdering(t *testing.T) {
	store := newStore(t, map[int64]string{1: "Travel", 2: "Clothes", 3: "Books"}, []seedExpense{
		{1, "2025-03-01", "flight", "200", 1},
		{2, "2025-01-02", "shirt", "20", 2},
		{3, "2025-01-01", "train", "30", 1},
		{4, "2025-02-01", "novel", "12", 3},
	})
	groups, err := NewEngine(store, nil).GetByCategory(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, []string{"Books", "Clothes", "Travel"},
		[]string{groups[0].CategoryDescription, groups[1].CategoryDescription, groups[2].CategoryDescription})
	travel := groups[2]
	assert.True(t, travel.Total.Equal(dec("230")))
	require.Len(t, travel.Lines, 2)
	assert.False(t, travel.Lines[1].Date.Before(travel.Lines[0].Date.Time))
}

func TestGetByMonthAndCategory(t *testing.T) {
	store := newStore(t, map[int64]string{1: "Clothes", 2: "Credit Card"}, []seedExpense{
		{1, "2025-01-03", "jacket", "10", 1},
		{2, "2025-01-20", "card payment", "-10", 2},
	})
	records, err := NewEngine(store, nil).GetByMonthAndCategory(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	jan := records[0]
	assert.Equal(t, "2025/01", jan.MonthKey)
	require.NotNil(t, jan.Total)
	assert.True(t, jan.Total.IsZero())
	assert.Equal(t, []string{"Clothes", "Credit Card"}, jan.Categories())
	assert.True(t, jan.PerCategory["Clothes"].Total.Equal(dec("10")))
	assert.True(t, jan.PerCategory["Credit Card"].Total.Equal(dec("-10")))
	assert.Len(t, jan.PerCategory["Clothes"].Lines, 1)

	totals := records[1]
	assert.True(t, totals.IsTotals())
	assert.Nil(t, totals.Total)
	assert.True(t, totals.PerCategory["Clothes"].Total.Equal(dec("10")))
	assert.True(t, totals.PerCategory["Credit Card"].Total.Equal(dec("-10")))
	assert.Nil(t, totals.PerCategory["Clothes"].Lines)
}

func TestGetByMonthAndCategoryAbsentCategoryHasNoEntry(t *testing.T) {
	store := newStore(t, map[int64]string{1: "A", 2: "B"}, []seedExpense{
		{1, "2025-01-03", "a", "1", 1},
		{2, "2025-02-03", "b", "2", 2},
		{3, "2025-02-04", "a", "3", 1},
	})
	records, err := NewEngine(store, nil).GetByMonthAndCategory(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	_, ok := records[0].PerCategory["B"]
	assert.False(t, ok, "January has no B entry")
	assert.True(t, records[2].PerCategory["A"].Total.Equal(dec("4")))
	assert.True(t, records[2].PerCategory["B"].Total.Equal(dec("2")))
}

func TestNonexistentCategoryFilterYieldsEmpty(t *testing.T) {
	store := newStore(t, map[int64]string{1: "Groceries"}, []seedExpense{
		{1, "2025-01-05", "Market", "30", 1},
	})
	e := NewEngine(store, nil)
	ctx := context.Background()
	f := core.Filter{}.ForCategory(99)

	lines, err := e.GetLedger(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, lines)

	months, err := e.GetByMonth(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, months)

	cats, err := e.GetByCategory(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, cats)

	records, err := e.GetByMonthAndCategory(ctx, f)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCategoryFilterRestrictsRows(t *testing.T) {
	store := newStore(t, map[int64]string{1: "A", 2: "B"}, []seedExpense{
		{1, "2025-01-03", "a", "1", 1},
		{2, "2025-01-04", "b", "2", 2},
		{3, "2025-01-05", "a", "3", 1},
	})
	lines, err := NewEngine(store, nil).GetLedger(context.Background(), core.Filter{}.ForCategory(1))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, lines[1].Balance.Equal(dec("4")))
}

func TestInvertedRangeYieldsEmpty(t *testing.T) {
	store := newStore(t, map[int64]string{1: "C"}, []seedExpense{{1, "2025-01-05", "a", "1", 1}})
	f := core.Filter{From: core.NewDate(2025, 2, 1), To: core.NewDate(2025, 1, 1)}
	lines, err := NewEngine(store, nil).GetLedger(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMalformedRowIsSkipped(t *testing.T) {
	store := newStore(t, map[int64]string{1: "C"}, []seedExpense{
		{1, "2025-01-05", "ok", "10", 1},
		{2, "2025-01-06", "broken", "n/a", 1},
		{3, "2025-01-07", "ok", "5", 1},
	})
	lines, err := NewEngine(store, nil).GetLedger(context.Background(), core.Filter{})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(3), lines[1].ExpenseID)
	assert.True(t, lines[1].Balance.Equal(dec("15")))
}

func TestSourceUnavailableIsReported(t *testing.T) {
	store := newStore(t, map[int64]string{1: "C"}, []seedExpense{{1, "2025-01-05", "a", "1", 1}})
	require.NoError(t, store.Close())
	e := NewEngine(store, nil)

	_, err := e.GetLedger(context.Background(), core.Filter{})
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)

	_, err = e.GetByMonth(context.Background(), core.Filter{}.ForCategory(1))
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)

	_, err = e.GetAll(context.Background(), core.Filter{})
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
}

type failingSource struct{ err error }

func (f failingSource) ListExpensesJoined(context.Context, source.Query) ([]source.RowResult, error) {
	return nil, f.err
}
func (f failingSource) CategoryExists(context.Context, int64) (bool, error) { return true, nil }
func (f failingSource) ListCategories(context.Context) ([]core.Category, error) {
	return nil, nil
}

func TestForeignSourceErrorsAreWrapped(t *testing.T) {
	ioErr := errors.New("disk I/O error")
	_, err := NewEngine(failingSource{err: ioErr}, nil).GetByCategory(context.Background(), core.Filter{})
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
	assert.ErrorIs(t, err, ioErr)
}

func mixedStore(t *testing.T) *memory.Store {
	return newStore(t, map[int64]string{1: "Groceries", 2: "Salary", 3: "Credit Card", 4: "Books"}, []seedExpense{
		{1, "2024-11-30", "market", "42.10", 1},
		{2, "2024-12-01", "pay", "-2500", 2},
		{3, "2024-12-01", "card", "310.99", 3},
		{4, "2025-01-15", "novel", "18", 4},
		{5, "2025-01-15", "market", "7.35", 1},
		{6, "2025-03-02", "card", "-50", 3},
		{7, "2025-03-31", "bad", "??", 4},
	})
}

func TestConservationAcrossViews(t *testing.T) {
	e := NewEngine(mixedStore(t), nil)
	for _, f := range []core.Filter{
		{},
		{From: core.NewDate(2024, 12, 1), To: core.NewDate(2025, 1, 31)},
		core.Filter{}.ForCategory(3),
	} {
		b, err := e.GetAll(context.Background(), f)
		require.NoError(t, err)

		ledgerSum := sumAmounts(b.Ledger)

		monthSum := decimal.Zero
		for _, g := range b.ByMonth {
			monthSum = monthSum.Add(g.Total)
		}
		catSum := decimal.Zero
		for _, g := range b.ByCategory {
			catSum = catSum.Add(g.Total)
		}
		require.NotEmpty(t, b.ByMonthAndCategory)
		totals := b.ByMonthAndCategory[len(b.ByMonthAndCategory)-1]
		require.True(t, totals.IsTotals())
		crossSum := decimal.Zero
		for _, c := range totals.PerCategory {
			crossSum = crossSum.Add(c.Total)
		}

		assert.True(t, ledgerSum.Equal(monthSum), "month: %s != %s", ledgerSum, monthSum)
		assert.True(t, ledgerSum.Equal(catSum), "category: %s != %s", ledgerSum, catSum)
		assert.True(t, ledgerSum.Equal(crossSum), "cross-tab: %s != %s", ledgerSum, crossSum)
	}
}

func TestPrefixSumProperty(t *testing.T) {
	lines, err := NewEngine(mixedStore(t), nil).GetLedger(context.Background(), core.Filter{})
	require.NoError(t, err)
	running := decimal.Zero
	for i, l := range lines {
		running = running.Add(l.Amount)
		assert.True(t, l.Balance.Equal(running), "line %d balance %s want %s", i, l.Balance, running)
	}
}

func TestGroupingsPartitionLedger(t *testing.T) {
	b, err := NewEngine(mixedStore(t), nil).GetAll(context.Background(), core.Filter{})
	require.NoError(t, err)

	want := ids(b.Ledger)
	var byMonth, byCat []int64
	for _, g := range b.ByMonth {
		byMonth = append(byMonth, ids(g.Lines)...)
	}
	for _, g := range b.ByCategory {
		byCat = append(byCat, ids(g.Lines)...)
	}
	assert.ElementsMatch(t, want, byMonth)
	assert.ElementsMatch(t, want, byCat)
}

func TestIdempotentAndConcurrentSafe(t *testing.T) {
	e := NewEngine(mixedStore(t), nil)
	first, err := e.GetAll(context.Background(), core.Filter{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Bundle, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.GetAll(context.Background(), core.Filter{})
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, first, r)
	}
}

func ids(lines []LedgerLine) []int64 {
	out := make([]int64, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.ExpenseID)
	}
	return out
}

func TestSkippedRowLogLine(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelWarn, Component: applog.ComponentApp, JSON: true, Output: &buf})
	s := newStore(t, map[int64]string{1: "Food"}, []seedExpense{
		{id: 1, date: "2025-01-01", desc: "bread", amount: "ten", cat: 1},
	})

	_, err := NewEngine(s, logger.Slog()).GetLedger(context.Background(), core.Filter{})
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"component"`)), buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, applog.ComponentReport, entry[applog.FieldComponent])
	assert.Equal(t, float64(1), entry[applog.FieldExpenseID])
}
