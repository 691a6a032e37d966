package core

// Default report range. An absent bound means "effectively unbounded".
var (
	RangeStart = NewDate(1900, 1, 1)
	RangeEnd   = NewDate(2500, 1, 1)
)

// Filter selects the transactions a report is built from. A zero From or
// To means the bound is absent; CategoryID is consulted only when
// ByCategory is set.
type Filter struct {
	From       Date
	To         Date
	ByCategory bool
	CategoryID int64
}

// Bounds returns the inclusive date range with defaults applied.
func (f Filter) Bounds() (start, end Date) {
	start, end = f.From, f.To
	if start.IsEmpty() {
		start = RangeStart
	}
	if end.IsEmpty() {
		end = RangeEnd
	}
	return start, end
}

// Empty reports whether the range cannot match anything (start after end).
func (f Filter) Empty() bool {
	start, end := f.Bounds()
	return start.After(end.Time)
}

// ForCategory returns a copy restricted to the given category.
func (f Filter) ForCategory(id int64) Filter {
	f.ByCategory = true
	f.CategoryID = id
	return f
}
