package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/source"
)

// Publisher announces committed ledger writes. amqp.Client satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// LedgerService validates writes, commits them to the store and publishes
// a ledger event. Publishing is best effort: a committed write is never
// reported as failed because the broker is down.
type LedgerService struct {
	store     source.Store
	publisher Publisher
	logger    *slog.Logger
}

func NewLedgerService(store source.Store, publisher Publisher, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger.With(applog.FieldComponent, applog.ComponentLedger),
	}
}

// ExpenseInput is the unparsed form of a new expense.
type ExpenseInput struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	CategoryID  int64  `json:"category_id"`
}

// CategoryInput is the unparsed form of a new category.
type CategoryInput struct {
	Description string `json:"description"`
	Type        string `json:"type"`
}

// ValidationError marks input the caller must fix.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err came from input validation.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ParseExpense converts in to a validated expense.
func ParseExpense(in ExpenseInput) (core.Expense, error) {
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Expense{}, &ValidationError{err}
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, &ValidationError{err}
	}
	e := core.Expense{
		Date:        date,
		Description: in.Description,
		Amount:      amount,
		CategoryID:  in.CategoryID,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, &ValidationError{err}
	}
	return e, nil
}

// ParseCategory converts in to a validated category.
func ParseCategory(in CategoryInput) (core.Category, error) {
	typ, err := core.ParseCategoryType(in.Type)
	if err != nil {
		return core.Category{}, &ValidationError{err}
	}
	c := core.Category{Description: in.Description, Type: typ}
	if err := c.Validate(); err != nil {
		return core.Category{}, &ValidationError{err}
	}
	return c, nil
}

func (s *LedgerService) CreateExpense(ctx context.Context, in ExpenseInput) (int64, error) {
	e, err := ParseExpense(in)
	if err != nil {
		return 0, err
	}
	id, err := s.store.AddExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}
	s.logger.InfoContext(ctx, "Expense created",
		applog.FieldExpenseID, id, applog.FieldCategoryID, e.CategoryID, "amount", e.Amount.String())
	s.publish(ctx, applog.OpCreate, "expense", id)
	return id, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, id int64, in ExpenseInput) error {
	e, err := ParseExpense(in)
	if err != nil {
		return err
	}
	e.ID = id
	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	s.publish(ctx, applog.OpUpdate, "expense", id)
	return nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publish(ctx, applog.OpDelete, "expense", id)
	return nil
}

func (s *LedgerService) CreateCategory(ctx context.Context, in CategoryInput) (core.Category, error) {
	c, err := ParseCategory(in)
	if err != nil {
		return core.Category{}, err
	}
	id, err := s.store.AddCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	c.ID = id
	s.publish(ctx, applog.OpCreate, "category", id)
	return c, nil
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.publish(ctx, applog.OpDelete, "category", id)
	return nil
}

func (s *LedgerService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *LedgerService) publish(ctx context.Context, op, entity string, id int64) {
	if s.publisher == nil {
		return
	}
	ev := &amqp.LedgerEvent{Op: op, Entity: entity, ID: id, Timestamp: time.Now()}
	if err := s.publisher.PublishEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"op", op, "entity", entity, "id", id, applog.FieldError, err)
	}
}
