package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/observability"
)

func scrape(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

type fakeLedger struct {
	snapshots []ledger.BalanceSnapshot
	sums      map[string][2]decimal.Decimal
}

func (f *fakeLedger) ListBalances(ctx context.Context) ([]ledger.BalanceSnapshot, error) {
	return f.snapshots, nil
}

func (f *fakeLedger) SumEntries(ctx context.Context, kind ledger.OwnerKind, ownerID int64) (decimal.Decimal, decimal.Decimal, error) {
	sum := f.sums[fmt.Sprintf("%s:%d", kind, ownerID)]
	return sum[0], sum[1], nil
}

type fakeStock struct {
	items []inventory.LowStockItem
}

func (f *fakeStock) LowStock(ctx context.Context) ([]inventory.LowStockItem, error) {
	return f.items, nil
}

func TestReconcileCountsMismatches(t *testing.T) {
	ledgers := &fakeLedger{
		snapshots: []ledger.BalanceSnapshot{
			// opening 100 + credit 50 - debit 20 = 130, cached agrees
			{Kind: ledger.OwnerAccount, OwnerID: 1, Opening: decimal.NewFromInt(100), Current: decimal.NewFromInt(130)},
			// cached balance drifted
			{Kind: ledger.OwnerSupplier, OwnerID: 2, Opening: decimal.Zero, Current: decimal.NewFromInt(99)},
		},
		sums: map[string][2]decimal.Decimal{
			"account:1":  {decimal.NewFromInt(20), decimal.NewFromInt(50)},
			"supplier:2": {decimal.Zero, decimal.NewFromInt(40)},
		},
	}
	metrics := observability.NewMetrics()
	tasks := NewTasks(slog.New(slog.NewTextHandler(io.Discard, nil)), ledgers, &fakeStock{}, metrics, nil)

	require.NoError(t, tasks.HandleLedgerReconcile(context.Background(), NewLedgerReconcileTask()))
	require.Contains(t, scrape(t, metrics), "pharmadesk_ledger_reconcile_mismatches 1")
}

func TestLowStockScanSetsGauge(t *testing.T) {
	stock := &fakeStock{items: []inventory.LowStockItem{
		{ProductID: 1, SKU: "PARA-500", Name: "Paracetamol 500mg", Quantity: 2, ReorderLevel: 10},
		{ProductID: 2, SKU: "AMOX-250", Name: "Amoxicillin 250mg", Quantity: 0, ReorderLevel: 5},
	}}
	metrics := observability.NewMetrics()
	tasks := NewTasks(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeLedger{}, stock, metrics, nil)

	require.NoError(t, tasks.HandleLowStock(context.Background(), NewLowStockTask()))
	require.Contains(t, scrape(t, metrics), "pharmadesk_low_stock_products 2")
}
