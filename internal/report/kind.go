package report

import (
	"context"
	"errors"
	"fmt"

	"conti/internal/core"
)

// Kind names one of the views an Engine can build.
type Kind string

const (
	KindLedger          Kind = "ledger"
	KindByMonth         Kind = "by_month"
	KindByCategory      Kind = "by_category"
	KindByMonthCategory Kind = "by_month_and_category"
	KindAll             Kind = "all"
)

var ErrUnknownKind = errors.New("unknown report kind")

// Kinds lists every buildable view.
var Kinds = []Kind{KindLedger, KindByMonth, KindByCategory, KindByMonthCategory, KindAll}

func (k Kind) IsValid() bool {
	switch k {
	case KindLedger, KindByMonth, KindByCategory, KindByMonthCategory, KindAll:
		return true
	}
	return false
}

// ParseKind accepts the names in Kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q, want one of %v", ErrUnknownKind, s, Kinds)
	}
	return k, nil
}

// Build dispatches to the Get method named by k.
func (e *Engine) Build(ctx context.Context, k Kind, f core.Filter) (any, error) {
	switch k {
	case KindLedger:
		return e.GetLedger(ctx, f)
	case KindByMonth:
		return e.GetByMonth(ctx, f)
	case KindByCategory:
		return e.GetByCategory(ctx, f)
	case KindByMonthCategory:
		return e.GetByMonthAndCategory(ctx, f)
	case KindAll:
		return e.GetAll(ctx, f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}
