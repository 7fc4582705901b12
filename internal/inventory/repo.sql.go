package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewPgTxStore(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetStock returns the stock row for one product.
func (r *Repository) GetStock(ctx context.Context, productID int64) (*Stock, error) {
	var stock Stock
	err := r.pool.QueryRow(ctx, `SELECT product_id, quantity, updated_at FROM inventory WHERE product_id = $1`, productID).
		Scan(&stock.ProductID, &stock.Quantity, &stock.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: stock for product %d", httpx.ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// ListStock returns all stock rows ordered by product id.
func (r *Repository) ListStock(ctx context.Context) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity, updated_at FROM inventory ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stocks []Stock
	for rows.Next() {
		var stock Stock
		if err := rows.Scan(&stock.ProductID, &stock.Quantity, &stock.UpdatedAt); err != nil {
			return nil, err
		}
		stocks = append(stocks, stock)
	}
	return stocks, rows.Err()
}

// ListMovements returns movements for one product, newest first.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, qty_change, balance_after, reason, ref_type, ref_id, note, created_at
FROM stock_movements WHERE product_id = $1 ORDER BY id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var refType, note *string
		var refID *int64
		if err := rows.Scan(&m.ID, &m.ProductID, &m.QtyChange, &m.BalanceAfter, &m.Reason, &refType, &refID, &note, &m.CreatedAt); err != nil {
			return nil, err
		}
		if refType != nil {
			m.RefType = *refType
		}
		if refID != nil {
			m.RefID = *refID
		}
		if note != nil {
			m.Note = *note
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// LowStock lists active products at or below their reorder level.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, p.name, COALESCE(i.quantity, 0), p.reorder_level
FROM products p
LEFT JOIN inventory i ON i.product_id = p.id
WHERE p.active AND COALESCE(i.quantity, 0) <= p.reorder_level
ORDER BY COALESCE(i.quantity, 0), p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LowStockItem
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.Quantity, &item.ReorderLevel); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NewPgTxStore binds a TxStore to an open transaction.
func NewPgTxStore(tx pgx.Tx) TxStore {
	return &pgTxStore{tx: tx}
}

type pgTxStore struct {
	tx pgx.Tx
}

func (s *pgTxStore) GetStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	err := s.tx.QueryRow(ctx, `SELECT quantity FROM inventory WHERE product_id = $1 FOR UPDATE`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: product %d", ErrStockNotFound, productID)
	}
	return qty, err
}

func (s *pgTxStore) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, qty_change, balance_after, reason, ref_type, ref_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		movement.ProductID, movement.QtyChange, movement.BalanceAfter, movement.Reason,
		nullableString(movement.RefType), nullableID(movement.RefID), nullableString(movement.Note)).Scan(&id)
	return id, err
}

func (s *pgTxStore) UpsertStock(ctx context.Context, productID, quantity int64) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO inventory (product_id, quantity, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`, productID, quantity)
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
