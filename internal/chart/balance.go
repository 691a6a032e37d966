// Package chart renders report views as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"conti/internal/core"
	"conti/internal/report"
)

// ErrTooFewPoints is returned when a series has fewer than two points.
var ErrTooFewPoints = errors.New("chart needs at least 2 data points")

// BalancePoint is the closing balance of one day.
type BalancePoint struct {
	Date    time.Time
	Balance float64
}

// BalancePoints collapses a ledger to one point per date, keeping the
// balance after the last line of that date.
func BalancePoints(lines []report.LedgerLine) []BalancePoint {
	var out []BalancePoint
	for _, l := range lines {
		v, _ := l.Balance.Float64()
		if n := len(out); n > 0 && out[n-1].Date.Equal(l.Date.Time) {
			out[n-1].Balance = v
			continue
		}
		out = append(out, BalancePoint{Date: l.Date.Time, Balance: v})
	}
	return out
}

// RenderBalance draws the running balance of a ledger as a PNG line chart.
func RenderBalance(lines []report.LedgerLine) ([]byte, error) {
	points := BalancePoints(lines)
	if len(points) < 2 {
		return nil, fmt.Errorf("%w, got %d", ErrTooFewPoints, len(points))
	}

	xValues := make([]time.Time, len(points))
	yValues := make([]float64, len(points))
	for i, p := range points {
		xValues[i] = p.Date
		yValues[i] = p.Balance
	}

	graph := chart.Chart{
		Title:  "Balance",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: amountLabel,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "Balance",
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("2563eb"),
					StrokeWidth: 2.5,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func amountLabel(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return core.FormatAmount(decimal.NewFromFloat(f))
}
