package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"conti/internal/source"
)

// BuildLedger turns joined rows into ledger lines annotated with the
// running balance. Rows must already be ordered by date then expense id;
// rows carrying an error are dropped.
func BuildLedger(rows []source.RowResult) []LedgerLine {
	lines := make([]LedgerLine, 0, len(rows))
	balance := decimal.Zero
	for _, r := range rows {
		if r.Err != nil {
			continue
		}
		balance = balance.Add(r.Row.Amount)
		lines = append(lines, newLine(r.Row, balance))
	}
	return lines
}

func newLine(row source.JoinedExpense, balance decimal.Decimal) LedgerLine {
	return LedgerLine{
		ExpenseID:           row.ExpenseID,
		Date:                row.Date,
		ShortDescription:    shorten(row.Description),
		Amount:              row.Amount,
		CategoryID:          row.CategoryID,
		CategoryDescription: row.CategoryDescription,
		Balance:             balance,
	}
}

func shorten(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= ShortDescriptionLen {
		return s
	}
	return strings.TrimSpace(string(r[:ShortDescriptionLen]))
}
