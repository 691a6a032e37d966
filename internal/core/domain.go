package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeIncome  CategoryType = "income"
	TypeExpense CategoryType = "expense"
	TypeCredit  CategoryType = "credit"
	TypeSavings CategoryType = "savings"
)

const (
	maxCategoryDescription = 100
	maxExpenseDescription  = 200
)

type (
	CategoryType string

	Date struct {
		time.Time
	}

	Category struct {
		ID          int64
		Description string
		Type        CategoryType
	}

	// Expense is a single stored movement, income included. Amount is the
	// signed effect on the tracked balance and is never negated.
	Expense struct {
		ID          int64
		Date        Date
		Description string
		Amount      decimal.Decimal
		CategoryID  int64
	}
)

var (
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrInvalidCategoryID   = errors.New("invalid category id")
)

// ParseCategoryType accepts any casing of the four known types.
func ParseCategoryType(s string) (CategoryType, error) {
	t := CategoryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategoryType, s)
	}
	return t, nil
}

func (t CategoryType) IsValid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeCredit, TypeSavings:
		return true
	default:
		return false
	}
}

func (t CategoryType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// DateLayout is the storage and wire format of a Date.
const DateLayout = "2006-01-02"

// IsEmpty returns true if the date is zero. Optional dates use the zero value.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey formats the calendar year and month as "YYYY/MM".
func (d Date) MonthKey() string {
	return fmt.Sprintf("%04d/%02d", d.Year(), int(d.Month()))
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (c Category) Validate() error {
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if len(desc) > maxCategoryDescription {
		return fmt.Errorf("description too long (max %d characters)", maxCategoryDescription)
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategoryType, c.Type)
	}
	return nil
}

func (t Expense) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxExpenseDescription {
		return fmt.Errorf("description too long (max %d characters)", maxExpenseDescription)
	}
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if t.CategoryID <= 0 {
		return ErrInvalidCategoryID
	}
	return nil
}
