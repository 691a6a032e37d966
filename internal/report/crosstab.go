package report

import "github.com/shopspring/decimal"

// BuildByMonthAndCategory cross-tabulates month groups by category. One
// record per month, followed by a single TOTALS record carrying the
// per-category grand totals without lines. Categories absent in a month
// have no entry in that month's record. An empty input yields an empty, non-nil slice.
func BuildByMonthAndCategory(months []MonthGroup) []MonthCategoryRecord {
	if len(months) == 0 {
		return []MonthCategoryRecord{}
	}

	records := make([]MonthCategoryRecord, 0, len(months)+1)
	grand := make(map[string]decimal.Decimal)
	for _, m := range months {
		total := m.Total
		rec := MonthCategoryRecord{
			MonthKey:    m.MonthKey,
			Total:       &total,
			PerCategory: make(map[string]CategoryCell),
		}
		byName := partition(m.Lines)
		for _, name := range sortedKeys(byName) {
			cell := CategoryCell{Total: sumAmounts(byName[name]), Lines: byName[name]}
			rec.PerCategory[name] = cell
			if acc, ok := grand[name]; ok {
				grand[name] = acc.Add(cell.Total)
			} else {
				grand[name] = cell.Total
			}
		}
		records = append(records, rec)
	}

	totals := MonthCategoryRecord{
		MonthKey:    TotalsKey,
		PerCategory: make(map[string]CategoryCell, len(grand)),
	}
	for name, sum := range grand {
		totals.PerCategory[name] = CategoryCell{Total: sum}
	}
	return append(records, totals)
}
