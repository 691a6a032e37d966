package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/report"
	"conti/internal/source"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "conti.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func (r *SQLiteRepository) execRaw(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func addExpense(t *testing.T, repo *SQLiteRepository, date core.Date, desc, amount string, cat int64) int64 {
	t.Helper()
	id, err := repo.AddExpense(context.Background(), core.Expense{
		Date:        date,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		CategoryID:  cat,
	})
	require.NoError(t, err)
	return id
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conti.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, RunMigrations(path))
}

func TestListExpensesJoinedOrderAndRange(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	groceries, err := repo.AddCategory(ctx, core.Category{Description: "Groceries", Type: core.TypeExpense})
	require.NoError(t, err)
	salary, err := repo.AddCategory(ctx, core.Category{Description: "Salary", Type: core.TypeIncome})
	require.NoError(t, err)

	addExpense(t, repo, core.NewDate(2025, 1, 10), "Bakery", "5", groceries)
	addExpense(t, repo, core.NewDate(2025, 1, 5), "Market", "30", groceries)
	addExpense(t, repo, core.NewDate(2025, 2, 1), "Pay", "-1500.25", salary)

	rows, err := repo.ListExpensesJoined(ctx, source.Query{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 31)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Market", rows[0].Row.Description)
	assert.Equal(t, "Groceries", rows[0].Row.CategoryDescription)
	assert.Equal(t, "Bakery", rows[1].Row.Description)

	rows, err = repo.ListExpensesJoined(ctx, source.Query{Start: core.RangeStart, End: core.RangeEnd, ByCategory: true, CategoryID: salary})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Row.Amount.Equal(decimal.RequireFromString("-1500.25")))
}

func TestDanglingAndMalformedRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	cat, err := repo.AddCategory(ctx, core.Category{Description: "C", Type: core.TypeExpense})
	require.NoError(t, err)

	addExpense(t, repo, core.NewDate(2025, 1, 1), "ok", "1", cat)
	require.NoError(t, repo.execRaw(ctx,
		`INSERT INTO expenses (date, description, amount, category_id) VALUES ('2025-01-02', 'bad', 'abc', ?)`, cat))
	require.NoError(t, repo.execRaw(ctx,
		`INSERT INTO expenses (date, description, amount, category_id) VALUES ('2025-01-03', 'orphan', '1', 999)`))

	rows, err := repo.ListExpensesJoined(ctx, source.Query{Start: core.RangeStart, End: core.RangeEnd})
	require.NoError(t, err)
	require.Len(t, rows, 2, "orphan must be excluded by the join")
	assert.NoError(t, rows[0].Err)
	assert.ErrorIs(t, rows[1].Err, source.ErrMalformedRow)
}

func TestReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.AddExpense(ctx, core.Expense{
		Date: core.NewDate(2025, 1, 1), Description: "x", Amount: decimal.NewFromInt(1), CategoryID: 7,
	})
	assert.ErrorIs(t, err, source.ErrCategoryMissing)

	cat, err := repo.AddCategory(ctx, core.Category{Description: "C", Type: core.TypeCredit})
	require.NoError(t, err)
	id := addExpense(t, repo, core.NewDate(2025, 1, 1), "x", "1", cat)

	assert.ErrorIs(t, repo.DeleteCategory(ctx, cat), source.ErrCategoryInUse)
	require.NoError(t, repo.DeleteExpense(ctx, id))
	require.NoError(t, repo.DeleteCategory(ctx, cat))
	assert.ErrorIs(t, repo.DeleteCategory(ctx, cat), source.ErrNotFound)

	exists, err := repo.CategoryExists(ctx, cat)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	cat, err := repo.AddCategory(ctx, core.Category{Description: "Old", Type: core.TypeExpense})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateCategory(ctx, core.Category{ID: cat, Description: "New", Type: core.TypeSavings}))

	cats, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "New", cats[0].Description)
	assert.Equal(t, core.TypeSavings, cats[0].Type)

	id := addExpense(t, repo, core.NewDate(2025, 1, 1), "x", "1", cat)
	err = repo.UpdateExpense(ctx, core.Expense{
		ID: id, Date: core.NewDate(2025, 3, 1), Description: "y", Amount: decimal.NewFromInt(-2), CategoryID: cat,
	})
	require.NoError(t, err)
	err = repo.UpdateExpense(ctx, core.Expense{
		ID: id + 100, Date: core.NewDate(2025, 3, 1), Description: "y", Amount: decimal.NewFromInt(-2), CategoryID: cat,
	})
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestClosedRepositoryIsUnavailable(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Close())

	_, err := repo.ListExpensesJoined(context.Background(), source.Query{Start: core.RangeStart, End: core.RangeEnd})
	assert.True(t, errors.Is(err, source.ErrSourceUnavailable))
	assert.ErrorIs(t, repo.Ping(context.Background()), source.ErrSourceUnavailable)
}

func TestEngineOverSQLite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	clothes, err := repo.AddCategory(ctx, core.Category{Description: "Clothes", Type: core.TypeExpense})
	require.NoError(t, err)
	card, err := repo.AddCategory(ctx, core.Category{Description: "Credit Card", Type: core.TypeCredit})
	require.NoError(t, err)
	addExpense(t, repo, core.NewDate(2025, 1, 4), "jacket", "10", clothes)
	addExpense(t, repo, core.NewDate(2025, 1, 9), "payment", "-10", card)

	records, err := report.NewEngine(repo, nil).GetByMonthAndCategory(ctx, core.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2025/01", records[0].MonthKey)
	assert.True(t, records[1].IsTotals())
	assert.True(t, records[1].PerCategory["Credit Card"].Total.Equal(decimal.NewFromInt(-10)))
}
