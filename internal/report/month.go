package report

import "github.com/shopspring/decimal"

// BuildByMonth groups ledger lines by "YYYY/MM". Groups come out in the
// order their first line appears, which is chronological for a
// date-ordered input. Balance is reset to zero in grouped lines: there is
// no running balance across months.
func BuildByMonth(lines []LedgerLine) []MonthGroup {
	groups := []MonthGroup{}
	index := make(map[string]int)
	for _, l := range lines {
		key := l.Date.MonthKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, MonthGroup{MonthKey: key, Total: decimal.Zero})
		}
		l.Balance = decimal.Zero
		groups[i].Lines = append(groups[i].Lines, l)
		groups[i].Total = groups[i].Total.Add(l.Amount)
	}
	return groups
}
