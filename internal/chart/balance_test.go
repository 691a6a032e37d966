package chart

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/report"
)

func line(date core.Date, balance string) report.LedgerLine {
	return report.LedgerLine{Date: date, Balance: decimal.RequireFromString(balance)}
}

func TestBalancePointsKeepsLastBalanceOfDay(t *testing.T) {
	d1 := core.NewDate(2024, 1, 1)
	d2 := core.NewDate(2024, 1, 5)
	points := BalancePoints([]report.LedgerLine{
		line(d1, "10"),
		line(d1, "4.5"),
		line(d2, "-2"),
	})

	require.Len(t, points, 2)
	assert.Equal(t, 4.5, points[0].Balance)
	assert.Equal(t, -2.0, points[1].Balance)
}

func TestRenderBalanceNeedsTwoDays(t *testing.T) {
	_, err := RenderBalance(nil)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	d := core.NewDate(2024, 1, 1)
	_, err = RenderBalance([]report.LedgerLine{line(d, "1"), line(d, "2")})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestRenderBalancePNG(t *testing.T) {
	png, err := RenderBalance([]report.LedgerLine{
		line(core.NewDate(2024, 1, 1), "100"),
		line(core.NewDate(2024, 2, 1), "80"),
		line(core.NewDate(2024, 3, 1), "120"),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestAmountLabel(t *testing.T) {
	assert.Equal(t, "1250.50", amountLabel(1250.5))
	assert.Equal(t, "-3.00", amountLabel(-3.0))
	assert.Equal(t, "", amountLabel("x"))
}
