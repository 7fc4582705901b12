package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

type memoryRepo struct {
	stock     map[int64]int64
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stock: make(map[int64]int64)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetStock(ctx context.Context, productID int64) (*Stock, error) {
	qty, ok := r.stock[productID]
	if !ok {
		return nil, fmt.Errorf("%w: stock for product %d", httpx.ErrNotFound, productID)
	}
	return &Stock{ProductID: productID, Quantity: qty}, nil
}

func (r *memoryRepo) ListStock(ctx context.Context) ([]Stock, error) {
	var stocks []Stock
	for id, qty := range r.stock {
		stocks = append(stocks, Stock{ProductID: id, Quantity: qty})
	}
	return stocks, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	var matched []Movement
	for _, m := range r.movements {
		if m.ProductID == productID {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

func (r *memoryRepo) LowStock(ctx context.Context) ([]LowStockItem, error) {
	return nil, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	qty, ok := tx.repo.stock[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %d", ErrStockNotFound, productID)
	}
	return qty, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func (tx *memoryTx) UpsertStock(ctx context.Context, productID, quantity int64) error {
	tx.repo.stock[productID] = quantity
	return nil
}

func TestAdjustRecordsMovementWithBalance(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 10
	svc := NewService(repo, NewApplier(false), nil, nil)
	ctx := context.Background()

	movement, err := svc.Adjust(ctx, 1, -3, "damaged blister packs")
	require.NoError(t, err)
	require.Equal(t, int64(-3), movement.QtyChange)
	require.Equal(t, int64(7), movement.BalanceAfter)
	require.Equal(t, ReasonAdjustment, movement.Reason)

	stock, err := svc.Stock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(7), stock.Quantity)
}

func TestAdjustStartsFromZeroForNewProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewApplier(false), nil, nil)

	movement, err := svc.Adjust(context.Background(), 5, 20, "initial count")
	require.NoError(t, err)
	require.Equal(t, int64(20), movement.BalanceAfter)
}

func TestNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 2
	svc := NewService(repo, NewApplier(false), nil, nil)

	_, err := svc.Adjust(context.Background(), 1, -5, "oversell")
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, httpx.ErrState)
	require.Equal(t, int64(2), repo.stock[1])
}

func TestNegativeStockAllowedByPolicy(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = 2
	svc := NewService(repo, NewApplier(true), nil, nil)

	movement, err := svc.Adjust(context.Background(), 1, -5, "backorder")
	require.NoError(t, err)
	require.Equal(t, int64(-3), movement.BalanceAfter)
}

func TestAdjustRejectsZeroChange(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, NewApplier(false), nil, nil)

	_, err := svc.Adjust(context.Background(), 1, 0, "noop")
	require.ErrorIs(t, err, httpx.ErrValidation)
}
