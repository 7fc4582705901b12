// Package jobs runs the background worker: periodic ledger reconciliation
// and low-stock scanning over Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
	jobmetrics "github.com/pharmadesk/pharmadesk/internal/jobs"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile re-sums ledger entries per owner and compares the
	// result with the cached balance.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskInventoryLowStock scans for products at or below reorder level.
	TaskInventoryLowStock = "inventory:lowstock"
)

// NewLedgerReconcileTask constructs the reconcile task.
func NewLedgerReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerReconcile, nil)
}

// NewLowStockTask constructs the low-stock scan task.
func NewLowStockTask() *asynq.Task {
	return asynq.NewTask(TaskInventoryLowStock, nil)
}

// LedgerStore exposes the reconcile queries.
type LedgerStore interface {
	ListBalances(ctx context.Context) ([]ledger.BalanceSnapshot, error)
	SumEntries(ctx context.Context, kind ledger.OwnerKind, ownerID int64) (debit, credit decimal.Decimal, err error)
}

// StockStore exposes the low-stock scan.
type StockStore interface {
	LowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// Tasks holds the dependencies shared by the task handlers.
type Tasks struct {
	logger  *slog.Logger
	ledgers LedgerStore
	stock   StockStore
	metrics *observability.Metrics
	track   *jobmetrics.Metrics
}

// NewTasks builds the task handler set.
func NewTasks(logger *slog.Logger, ledgers LedgerStore, stock StockStore, metrics *observability.Metrics, track *jobmetrics.Metrics) *Tasks {
	return &Tasks{logger: logger, ledgers: ledgers, stock: stock, metrics: metrics, track: track}
}

// HandleLedgerReconcile verifies current_balance == opening + credits − debits
// for every owner, logging and counting the mismatches.
func (t *Tasks) HandleLedgerReconcile(ctx context.Context, _ *asynq.Task) error {
	tracker := t.track.Track("ledger_reconcile")
	return tracker.End(t.reconcile(ctx))
}

func (t *Tasks) reconcile(ctx context.Context) error {
	snapshots, err := t.ledgers.ListBalances(ctx)
	if err != nil {
		return err
	}
	mismatches := 0
	for _, snap := range snapshots {
		debit, credit, err := t.ledgers.SumEntries(ctx, snap.Kind, snap.OwnerID)
		if err != nil {
			return err
		}
		expected := snap.Opening.Add(credit).Sub(debit)
		if !expected.Equal(snap.Current) {
			mismatches++
			t.logger.Error("ledger balance mismatch",
				slog.String("owner_kind", string(snap.Kind)),
				slog.Int64("owner_id", snap.OwnerID),
				slog.String("cached", snap.Current.String()),
				slog.String("expected", expected.String()))
		}
	}
	if t.metrics != nil {
		t.metrics.ReconcileMismatch.Set(float64(mismatches))
	}
	t.logger.Info("ledger reconcile finished",
		slog.Int("owners", len(snapshots)),
		slog.Int("mismatches", mismatches))
	return nil
}

// LowStockAlert is the payload logged for each depleted product.
type LowStockAlert struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Quantity     int64  `json:"quantity"`
	ReorderLevel int64  `json:"reorder_level"`
}

// HandleLowStock scans for depleted products and emits one alert per item.
func (t *Tasks) HandleLowStock(ctx context.Context, _ *asynq.Task) error {
	tracker := t.track.Track("inventory_lowstock")
	return tracker.End(t.scanLowStock(ctx))
}

func (t *Tasks) scanLowStock(ctx context.Context) error {
	items, err := t.stock.LowStock(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		payload, _ := json.Marshal(LowStockAlert{
			ProductID:    item.ProductID,
			SKU:          item.SKU,
			Name:         item.Name,
			Quantity:     item.Quantity,
			ReorderLevel: item.ReorderLevel,
		})
		t.logger.Warn("low stock", slog.String("alert", string(payload)))
	}
	if t.metrics != nil {
		t.metrics.LowStockProducts.Set(float64(len(items)))
	}
	t.logger.Info("low stock scan finished", slog.Int("products", len(items)))
	return nil
}
