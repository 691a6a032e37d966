// Package source defines the ports between the report engine and the
// Ledger Store that holds categories and transactions.
package source

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

var (
	// ErrSourceUnavailable means the store could not be read at all
	// (closed connection, I/O failure). It is the only read failure that
	// reaches report callers.
	ErrSourceUnavailable = errors.New("transaction source unavailable")

	// ErrMalformedRow marks a single stored record whose values cannot be
	// decoded. Such rows are skipped, never fatal.
	ErrMalformedRow = errors.New("malformed stored row")

	ErrNotFound        = errors.New("not found")
	ErrCategoryMissing = errors.New("category does not exist")
	ErrCategoryInUse   = errors.New("category is referenced by transactions")
)

type (
	// Query restricts ListExpensesJoined to an inclusive date range and,
	// when ByCategory is set, to a single category.
	Query struct {
		Start      core.Date
		End        core.Date
		ByCategory bool
		CategoryID int64
	}

	// JoinedExpense is an expense joined with its category description.
	JoinedExpense struct {
		ExpenseID           int64
		Date                core.Date
		Description         string
		Amount              decimal.Decimal
		CategoryID          int64
		CategoryDescription string
	}

	// RowResult carries either a decoded row or the reason it was skipped.
	RowResult struct {
		ExpenseID int64
		Row       JoinedExpense
		Err       error
	}
)

// Ports for the Ledger Store.
type (
	TransactionSource interface {
		// ListExpensesJoined returns rows ordered by date then expense id,
		// restricted to expenses whose category exists.
		ListExpensesJoined(ctx context.Context, q Query) ([]RowResult, error)
	}

	CategoryCatalog interface {
		CategoryExists(ctx context.Context, id int64) (bool, error)
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	// LedgerWriter holds the CRUD side of the store. Writes must enforce
	// that an expense references an existing category.
	LedgerWriter interface {
		AddCategory(ctx context.Context, c core.Category) (int64, error)
		UpdateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, id int64) error
		AddExpense(ctx context.Context, e core.Expense) (int64, error)
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id int64) error
	}

	// Source is what the report engine reads from.
	Source interface {
		TransactionSource
		CategoryCatalog
	}

	// Store is a complete Ledger Store.
	Store interface {
		Source
		LedgerWriter
	}
)

// Skipped builds a RowResult for a row that could not be decoded.
func Skipped(id int64, err error) RowResult {
	return RowResult{ExpenseID: id, Err: errors.Join(ErrMalformedRow, err)}
}

// Ok builds a RowResult for a decoded row.
func Ok(row JoinedExpense) RowResult {
	return RowResult{ExpenseID: row.ExpenseID, Row: row}
}
