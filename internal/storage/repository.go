package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/source"

	_ "modernc.org/sqlite"
)

// storageLog scopes the default logger, which the binaries install at
// startup.
func storageLog() *slog.Logger {
	return slog.Default().With(applog.FieldComponent, applog.ComponentStorage)
}

type SQLiteRepository struct {
	db *sql.DB
}

var _ source.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
	}
	return nil
}

const listJoinedQuery = `
SELECT e.id, e.date, e.description, e.amount, e.category_id, c.description
FROM expenses e
INNER JOIN categories c ON c.id = e.category_id
WHERE e.date BETWEEN ? AND ?
  AND (? = 0 OR e.category_id = ?)
ORDER BY e.date ASC, e.id ASC`

// ListExpensesJoined implements source.TransactionSource. Rows whose date
// or amount cannot be decoded come back as skipped results.
func (r *SQLiteRepository) ListExpensesJoined(ctx context.Context, q source.Query) ([]source.RowResult, error) {
	byCategory := 0
	if q.ByCategory {
		byCategory = 1
	}

	rows, err := r.db.QueryContext(ctx, listJoinedQuery,
		q.Start.String(), q.End.String(), byCategory, q.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", source.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []source.RowResult
	for rows.Next() {
		var (
			id, categoryID                   int64
			date, desc, amount, categoryDesc string
		)
		if err := rows.Scan(&id, &date, &desc, &amount, &categoryID, &categoryDesc); err != nil {
			out = append(out, source.Skipped(id, fmt.Errorf("scan: %w", err)))
			continue
		}
		out = append(out, decodeRow(id, date, desc, amount, categoryID, categoryDesc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate expenses: %w", source.ErrSourceUnavailable, err)
	}

	return out, nil
}

func decodeRow(id int64, date, desc, amount string, categoryID int64, categoryDesc string) source.RowResult {
	d, err := core.ParseDate(date)
	if err != nil {
		return source.Skipped(id, err)
	}
	a, err := core.ParseAmount(amount)
	if err != nil {
		return source.Skipped(id, err)
	}
	return source.Ok(source.JoinedExpense{
		ExpenseID:           id,
		Date:                d,
		Description:         desc,
		Amount:              a,
		CategoryID:          categoryID,
		CategoryDescription: categoryDesc,
	})
}

// CategoryExists implements source.CategoryCatalog
func (r *SQLiteRepository) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: category lookup: %w", source.ErrSourceUnavailable, err)
	}
	return true, nil
}

// ListCategories implements source.CategoryCatalog
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, description, type FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", source.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var typ string
		if err := rows.Scan(&c.ID, &c.Description, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.CategoryType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AddCategory(ctx context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (description, type) VALUES (?, ?)`, c.Description, string(c.Type))
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("category id: %w", err)
	}

	storageLog().InfoContext(ctx, "Category saved to SQLite",
		applog.FieldCategoryID, id,
		"description", c.Description,
		"type", c.Type)
	return id, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET description = ?, type = ? WHERE id = ?`, c.Description, string(c.Type), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return expectOne(res, "category", c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE category_id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("count category usage: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("category %d: %w", id, source.ErrCategoryInUse)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return expectOne(res, "category", id)
	})
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireCategory(ctx, tx, e.CategoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (date, description, amount, category_id) VALUES (?, ?, ?, ?)`,
			e.Date.String(), e.Description, e.Amount.String(), e.CategoryID)
		if err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	storageLog().InfoContext(ctx, "Expense saved to SQLite",
		applog.FieldExpenseID, id,
		"description", e.Description,
		"amount", e.Amount.String(),
		"date", e.Date.String(),
		applog.FieldCategoryID, e.CategoryID)
	return id, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireCategory(ctx, tx, e.CategoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET date = ?, description = ?, amount = ?, category_id = ? WHERE id = ?`,
			e.Date.String(), e.Description, e.Amount.String(), e.CategoryID, e.ID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		return expectOne(res, "expense", e.ID)
	})
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if err := expectOne(res, "expense", id); err != nil {
		return err
	}

	storageLog().InfoContext(ctx, "Expense deleted from SQLite", applog.FieldExpenseID, id)
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func requireCategory(ctx context.Context, tx *sql.Tx, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("category %d: %w", id, source.ErrCategoryMissing)
	}
	if err != nil {
		return fmt.Errorf("category lookup: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, source.ErrNotFound)
	}
	return nil
}
