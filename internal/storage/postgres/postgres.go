// Package postgres provides a PostgreSQL Ledger Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/source"
)

//go:embed 001_ledger.sql
var migrationSQL string

// Config holds the PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// ConnString renders the key/value connection string for cfg.
func (cfg Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// Repository reads and writes the ledger in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ source.Store = (*Repository)(nil)

// New connects, pings and applies the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(applog.FieldComponent, applog.ComponentStorage)

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	r := &Repository{pool: pool, logger: logger}
	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

func (r *Repository) runMigrations(ctx context.Context) error {
	r.logger.Info("running database migrations")
	if _, err := r.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	r.logger.Info("migrations completed successfully")
	return nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", source.ErrSourceUnavailable, err)
	}
	return nil
}

const listJoinedQuery = `
SELECT e.id, e.date, e.description, e.amount::text, e.category_id, c.description
FROM expenses e
INNER JOIN categories c ON c.id = e.category_id
WHERE e.date BETWEEN $1 AND $2
  AND (NOT $3 OR e.category_id = $4)
ORDER BY e.date ASC, e.id ASC`

// ListExpensesJoined implements source.TransactionSource.
func (r *Repository) ListExpensesJoined(ctx context.Context, q source.Query) ([]source.RowResult, error) {
	rows, err := r.pool.Query(ctx, listJoinedQuery, q.Start.Time, q.End.Time, q.ByCategory, q.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", source.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []source.RowResult
	for rows.Next() {
		var (
			id, categoryID            int64
			date                      time.Time
			desc, amount, categoryDsc string
		)
		if err := rows.Scan(&id, &date, &desc, &amount, &categoryID, &categoryDsc); err != nil {
			out = append(out, source.Skipped(id, fmt.Errorf("scan: %w", err)))
			continue
		}
		a, err := core.ParseAmount(amount)
		if err != nil {
			out = append(out, source.Skipped(id, err))
			continue
		}
		out = append(out, source.Ok(source.JoinedExpense{
			ExpenseID:           id,
			Date:                core.NewDate(date.Year(), int(date.Month()), date.Day()),
			Description:         desc,
			Amount:              a,
			CategoryID:          categoryID,
			CategoryDescription: categoryDsc,
		}))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate expenses: %w", source.ErrSourceUnavailable, err)
	}
	return out, nil
}

// CategoryExists implements source.CategoryCatalog.
func (r *Repository) CategoryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: category lookup: %w", source.ErrSourceUnavailable, err)
	}
	return exists, nil
}

// ListCategories implements source.CategoryCatalog.
func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, description, type FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", source.ErrSourceUnavailable, err)
	}
	cats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Category, error) {
		var c core.Category
		var typ string
		err := row.Scan(&c.ID, &c.Description, &typ)
		c.Type = core.CategoryType(typ)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect categories: %w", err)
	}
	return cats, nil
}

func (r *Repository) AddCategory(ctx context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (description, type) VALUES ($1, $2) RETURNING id`,
		c.Description, string(c.Type)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return id, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE categories SET description = $1, type = $2 WHERE id = $3`,
		c.Description, string(c.Type), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return expectOne(tag, "category", c.ID)
}

func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var inUse bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM expenses WHERE category_id = $1)`, id).Scan(&inUse); err != nil {
			return fmt.Errorf("count category usage: %w", err)
		}
		if inUse {
			return fmt.Errorf("category %d: %w", id, source.ErrCategoryInUse)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return expectOne(tag, "category", id)
	})
}

func (r *Repository) AddExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := requireCategory(ctx, tx, e.CategoryID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO expenses (date, description, amount, category_id) VALUES ($1, $2, $3::numeric, $4) RETURNING id`,
			e.Date.Time, e.Description, e.Amount.String(), e.CategoryID).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "Expense saved to PostgreSQL", applog.FieldExpenseID, id, "amount", e.Amount.String())
	return id, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := requireCategory(ctx, tx, e.CategoryID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE expenses SET date = $1, description = $2, amount = $3::numeric, category_id = $4 WHERE id = $5`,
			e.Date.Time, e.Description, e.Amount.String(), e.CategoryID, e.ID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		return expectOne(tag, "expense", e.ID)
	})
}

func (r *Repository) DeleteExpense(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return expectOne(tag, "expense", id)
}

func requireCategory(ctx context.Context, tx pgx.Tx, id int64) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM categories WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("category %d: %w", id, source.ErrCategoryMissing)
	}
	if err != nil {
		return fmt.Errorf("category lookup: %w", err)
	}
	return nil
}

func expectOne(tag pgconn.CommandTag, kind string, id int64) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, source.ErrNotFound)
	}
	return nil
}
