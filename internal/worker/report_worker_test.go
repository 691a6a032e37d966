package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/report"
	"conti/internal/source/memory"
)

func seededWorker(t *testing.T) (*ReportWorker, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	food, err := store.AddCategory(ctx, core.Category{Description: "Food", Type: core.TypeExpense})
	require.NoError(t, err)
	rent, err := store.AddCategory(ctx, core.Category{Description: "Rent", Type: core.TypeExpense})
	require.NoError(t, err)

	for _, e := range []core.Expense{
		{Date: core.NewDate(2025, 1, 3), Description: "Groceries", Amount: decimal.NewFromInt(40), CategoryID: food},
		{Date: core.NewDate(2025, 1, 5), Description: "January rent", Amount: decimal.NewFromInt(800), CategoryID: rent},
		{Date: core.NewDate(2025, 2, 2), Description: "Bakery", Amount: decimal.NewFromInt(6), CategoryID: food},
	} {
		_, err := store.AddExpense(ctx, e)
		require.NoError(t, err)
	}

	w := NewReportWorker(report.NewEngine(store, nil), nil)
	w.reconnectDelay = time.Millisecond
	return w, store, food
}

func TestHandleRequestLedger(t *testing.T) {
	w, _, _ := seededWorker(t)

	req := amqp.NewReportRequest(report.KindLedger, core.Filter{})
	resp := w.HandleRequest(context.Background(), req)

	require.Empty(t, resp.Error)
	assert.Equal(t, req.ID, resp.RequestID)
	assert.Equal(t, report.KindLedger, resp.Kind)

	var lines []report.LedgerLine
	require.NoError(t, json.Unmarshal(resp.Data, &lines))
	require.Len(t, lines, 3)
	assert.True(t, lines[2].Balance.Equal(decimal.NewFromInt(846)))
}

func TestHandleRequestCategoryFilter(t *testing.T) {
	w, _, food := seededWorker(t)

	req := amqp.NewReportRequest(report.KindByMonthCategory, core.Filter{}.ForCategory(food))
	resp := w.HandleRequest(context.Background(), req)
	require.Empty(t, resp.Error)

	var records []report.MonthCategoryRecord
	require.NoError(t, json.Unmarshal(resp.Data, &records))
	require.Len(t, records, 3)
	assert.Equal(t, "2025/01", records[0].MonthKey)
	assert.Equal(t, report.TotalsKey, records[2].MonthKey)
	assert.True(t, records[2].PerCategory["Food"].Total.Equal(decimal.NewFromInt(46)))
	assert.NotContains(t, records[2].PerCategory, "Rent")
}

func TestHandleRequestAll(t *testing.T) {
	w, _, _ := seededWorker(t)

	resp := w.HandleRequest(context.Background(), amqp.NewReportRequest(report.KindAll, core.Filter{}))
	require.Empty(t, resp.Error)

	var bundle report.Bundle
	require.NoError(t, json.Unmarshal(resp.Data, &bundle))
	assert.Len(t, bundle.Ledger, 3)
	assert.Len(t, bundle.ByMonth, 2)
	assert.Len(t, bundle.ByCategory, 2)
	assert.Len(t, bundle.ByMonthAndCategory, 3)
}

func TestHandleRequestSourceUnavailable(t *testing.T) {
	w, store, _ := seededWorker(t)
	require.NoError(t, store.Close())

	resp := w.HandleRequest(context.Background(), amqp.NewReportRequest(report.KindByMonth, core.Filter{}))
	assert.Nil(t, resp.Data)
	assert.Contains(t, resp.Error, "unavailable")
}

func TestHandleRequestUnknownKind(t *testing.T) {
	w, _, _ := seededWorker(t)

	resp := w.HandleRequest(context.Background(), &amqp.ReportRequest{ID: "x", Kind: "pie"})
	assert.Contains(t, resp.Error, report.ErrUnknownKind.Error())
}

type fakeConsumer struct {
	serves     atomic.Int32
	reconnects atomic.Int32
	failures   []error
	cancel     context.CancelFunc
}

func (f *fakeConsumer) ServeReports(ctx context.Context, _ amqp.ReportHandler) error {
	n := int(f.serves.Add(1)) - 1
	if n < len(f.failures) {
		return f.failures[n]
	}
	f.cancel()
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) Reconnect(context.Context) error {
	f.reconnects.Add(1)
	return nil
}

func TestRunReconnectsOnConnectionLoss(t *testing.T) {
	w, _, _ := seededWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &fakeConsumer{failures: []error{amqp.ErrChannelClosed}, cancel: cancel}
	require.NoError(t, w.Run(ctx, c))
	assert.Equal(t, int32(2), c.serves.Load())
	assert.Equal(t, int32(1), c.reconnects.Load())
}

func TestRunReturnsOtherErrors(t *testing.T) {
	w, _, _ := seededWorker(t)
	boom := errors.New("access refused")

	c := &fakeConsumer{failures: []error{boom}, cancel: func() {}}
	err := w.Run(context.Background(), c)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), c.reconnects.Load())
}
