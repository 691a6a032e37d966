package google

import (
	"sort"

	"github.com/shopspring/decimal"

	"conti/internal/report"
)

// Table is one worksheet's worth of cell values, header first.
type Table struct {
	Title string
	Rows  [][]any
}

// Tables lays out the four views of b under titles built from prefix.
func Tables(prefix string, b *report.Bundle) []Table {
	return []Table{
		{Title: prefix + " Ledger", Rows: LedgerRows(b.Ledger)},
		{Title: prefix + " By Month", Rows: MonthRows(b.ByMonth)},
		{Title: prefix + " By Category", Rows: CategoryRows(b.ByCategory)},
		{Title: prefix + " Month x Category", Rows: CrossTabRows(b.ByMonthAndCategory)},
	}
}

// amountCell writes amounts as numbers so sheet formulas can sum them.
// Every other cell is text and the exporter sends values RAW.
func amountCell(d decimal.Decimal) any {
	return d.Round(2).InexactFloat64()
}

var ledgerHeader = []any{"ID", "Date", "Description", "Category", "Amount", "Balance"}

func ledgerRow(l report.LedgerLine) []any {
	return []any{
		l.ExpenseID,
		l.Date.String(),
		l.ShortDescription,
		l.CategoryDescription,
		amountCell(l.Amount),
		amountCell(l.Balance),
	}
}

func LedgerRows(lines []report.LedgerLine) [][]any {
	rows := [][]any{ledgerHeader}
	for _, l := range lines {
		rows = append(rows, ledgerRow(l))
	}
	return rows
}

// MonthRows writes each month's lines followed by a subtotal row.
func MonthRows(groups []report.MonthGroup) [][]any {
	rows := [][]any{append([]any{"Month"}, ledgerHeader[:5]...)}
	for _, g := range groups {
		for _, l := range g.Lines {
			rows = append(rows, append([]any{g.MonthKey}, ledgerRow(l)[:5]...))
		}
		rows = append(rows, []any{g.MonthKey, "", "", "Total", "", amountCell(g.Total)})
	}
	return rows
}

// CategoryRows writes each category's lines followed by a subtotal row.
func CategoryRows(groups []report.CategoryGroup) [][]any {
	rows := [][]any{append([]any{"Category"}, ledgerHeader[:5]...)}
	for _, g := range groups {
		for _, l := range g.Lines {
			rows = append(rows, append([]any{g.CategoryDescription}, ledgerRow(l)[:5]...))
		}
		rows = append(rows, []any{g.CategoryDescription, "", "", "Total", "", amountCell(g.Total)})
	}
	return rows
}

// CrossTabRows pivots the records into one row per month and one column
// per category. Cells for categories absent in a month stay blank.
func CrossTabRows(records []report.MonthCategoryRecord) [][]any {
	seen := map[string]bool{}
	for _, r := range records {
		for name := range r.PerCategory {
			seen[name] = true
		}
	}
	categories := make([]string, 0, len(seen))
	for name := range seen {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	header := []any{"Month", "Total"}
	for _, c := range categories {
		header = append(header, c)
	}
	rows := [][]any{header}

	for _, r := range records {
		row := []any{r.MonthKey, ""}
		if r.Total != nil {
			row[1] = amountCell(*r.Total)
		}
		for _, c := range categories {
			cell, ok := r.PerCategory[c]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, amountCell(cell.Total))
		}
		rows = append(rows, row)
	}
	return rows
}
