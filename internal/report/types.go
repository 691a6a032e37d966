// Package report builds the derived views over a date-ordered,
// category-joined transaction stream: the running-balance ledger, the
// month and category groupings and the month by category cross-tab.
//
// Every view is built fresh per call. Amounts keep the sign they were
// stored with.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// TotalsKey is the MonthKey of the grand-total record that closes a
// cross-tabulation.
const TotalsKey = "TOTALS"

// ShortDescriptionLen caps LedgerLine.ShortDescription, in runes.
const ShortDescriptionLen = 40

type (
	LedgerLine struct {
		ExpenseID           int64           `json:"expense_id"`
		Date                core.Date       `json:"date"`
		ShortDescription    string          `json:"description"`
		Amount              decimal.Decimal `json:"amount"`
		CategoryID          int64           `json:"category_id"`
		CategoryDescription string          `json:"category"`
		Balance             decimal.Decimal `json:"balance"`
	}

	MonthGroup struct {
		MonthKey string          `json:"month"`
		Lines    []LedgerLine    `json:"lines"`
		Total    decimal.Decimal `json:"total"`
	}

	CategoryGroup struct {
		CategoryDescription string          `json:"category"`
		Lines               []LedgerLine    `json:"lines"`
		Total               decimal.Decimal `json:"total"`
	}

	// CategoryCell is one category's share of a cross-tab record. Lines is
	// nil in the TOTALS record.
	CategoryCell struct {
		Total decimal.Decimal `json:"total"`
		Lines []LedgerLine    `json:"lines,omitempty"`
	}

	// MonthCategoryRecord is one row of the cross-tabulation. Total is nil
	// for the TOTALS record.
	MonthCategoryRecord struct {
		MonthKey    string                  `json:"month"`
		Total       *decimal.Decimal        `json:"total,omitempty"`
		PerCategory map[string]CategoryCell `json:"per_category"`
	}

	// Bundle holds all four views built for the same filter. Each view is
	// read separately, so a store changing mid-build may make them disagree.
	Bundle struct {
		Filter             core.Filter           `json:"-"`
		Ledger             []LedgerLine          `json:"ledger"`
		ByMonth            []MonthGroup          `json:"by_month"`
		ByCategory         []CategoryGroup       `json:"by_category"`
		ByMonthAndCategory []MonthCategoryRecord `json:"by_month_and_category"`
	}
)

// IsTotals reports whether r is the grand-total record.
func (r MonthCategoryRecord) IsTotals() bool {
	return r.MonthKey == TotalsKey
}

// Categories returns the category descriptions present in r, sorted.
func (r MonthCategoryRecord) Categories() []string {
	names := make([]string, 0, len(r.PerCategory))
	for name := range r.PerCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sumAmounts(lines []LedgerLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}
