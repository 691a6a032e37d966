package report

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BuildByCategory groups ledger lines by category description. Groups are
// sorted by description; lines inside a group by date, ties keeping input
// order.
func BuildByCategory(lines []LedgerLine) []CategoryGroup {
	byName := partition(lines)
	groups := make([]CategoryGroup, 0, len(byName))
	for _, name := range sortedKeys(byName) {
		members := byName[name]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Date.Before(members[j].Date.Time)
		})
		groups = append(groups, CategoryGroup{
			CategoryDescription: name,
			Lines:               members,
			Total:               sumAmounts(members),
		})
	}
	return groups
}

// partition splits lines by category description, resetting the balance.
func partition(lines []LedgerLine) map[string][]LedgerLine {
	out := make(map[string][]LedgerLine)
	for _, l := range lines {
		l.Balance = decimal.Zero
		out[l.CategoryDescription] = append(out[l.CategoryDescription], l)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
