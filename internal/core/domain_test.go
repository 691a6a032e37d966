package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateMonthKey(t *testing.T) {
	cases := map[string]Date{
		"2025/01": NewDate(2025, 1, 5),
		"2025/12": NewDate(2025, 12, 31),
		"0999/03": NewDate(999, 3, 1),
	}
	for want, d := range cases {
		if got := d.MonthKey(); got != want {
			t.Fatalf("MonthKey(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2025, 2, 3))
	if err != nil || string(b) != `"2025-02-03"` {
		t.Fatalf("marshal = %s, %v", b, err)
	}
	var d Date
	if err := json.Unmarshal([]byte(`"2024-12-31"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Equal(NewDate(2024, 12, 31).Time) {
		t.Fatalf("unexpected date %v", d)
	}
	if err := json.Unmarshal([]byte(`"31/12/2024"`), &d); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestParseCategoryType(t *testing.T) {
	for _, in := range []string{"income", "Expense", " CREDIT ", "savings"} {
		if _, err := ParseCategoryType(in); err != nil {
			t.Fatalf("%q expected ok, got %v", in, err)
		}
	}
	if _, err := ParseCategoryType("loan"); !errors.Is(err, ErrInvalidCategoryType) {
		t.Fatalf("expected ErrInvalidCategoryType, got %v", err)
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Description: "Groceries", Type: TypeExpense}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Description: " ", Type: TypeExpense}).Validate(); err == nil {
		t.Fatalf("expected error for blank description")
	}
	if err := (Category{Description: "X", Type: "other"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Date:        NewDate(2025, 1, 1),
		Description: "ok",
		Amount:      decimal.NewFromInt(-10),
		CategoryID:  1,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Date: Date{}, Description: "a", Amount: decimal.NewFromInt(1), CategoryID: 1}, // zero date
		{Date: NewDate(2025, 1, 1), Description: "", Amount: decimal.NewFromInt(1), CategoryID: 1},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.Zero, CategoryID: 1},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.NewFromInt(1), CategoryID: 0},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
