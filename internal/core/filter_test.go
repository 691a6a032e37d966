package core

import "testing"

func TestFilterBoundsDefaults(t *testing.T) {
	start, end := Filter{}.Bounds()
	if !start.Equal(RangeStart.Time) || !end.Equal(RangeEnd.Time) {
		t.Fatalf("unexpected defaults %v..%v", start, end)
	}

	f := Filter{From: NewDate(2025, 1, 1)}
	start, end = f.Bounds()
	if !start.Equal(NewDate(2025, 1, 1).Time) || !end.Equal(RangeEnd.Time) {
		t.Fatalf("unexpected bounds %v..%v", start, end)
	}
}

func TestFilterEmpty(t *testing.T) {
	if (Filter{}).Empty() {
		t.Fatalf("default filter must not be empty")
	}
	same := Filter{From: NewDate(2025, 1, 1), To: NewDate(2025, 1, 1)}
	if same.Empty() {
		t.Fatalf("single-day range must not be empty")
	}
	inverted := Filter{From: NewDate(2025, 2, 1), To: NewDate(2025, 1, 1)}
	if !inverted.Empty() {
		t.Fatalf("inverted range must be empty")
	}
}

func TestFilterForCategory(t *testing.T) {
	f := Filter{}.ForCategory(7)
	if !f.ByCategory || f.CategoryID != 7 {
		t.Fatalf("unexpected filter %+v", f)
	}
}
