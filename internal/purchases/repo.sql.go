package purchases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// TxRepository exposes the transactional operations of a purchase, together
// with ledger and inventory stores bound to the same transaction.
type TxRepository interface {
	InsertPurchase(ctx context.Context, purchase Purchase) (int64, error)
	InsertItems(ctx context.Context, purchaseID int64, items []Item) error
	GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error)
	GetItems(ctx context.Context, purchaseID int64) ([]Item, error)
	ReturnedQty(ctx context.Context, purchaseID int64) (map[int64]int64, error)
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	InsertReturnItems(ctx context.Context, returnID int64, items []ReturnItem) error
	UpdateStatus(ctx context.Context, id int64, status Status) error

	Ledger() ledger.TxStore
	Inventory() inventory.TxStore
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const purchaseColumns = `id, code, supplier_id, account_id, total::text, paid::text, due::text, status, created_at`

// GetPurchase returns a purchase with its items.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	purchase, err := scanPurchase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: purchase %d", httpx.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_id, product_id, qty, unit_cost::text, subtotal::text FROM purchase_items WHERE purchase_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		purchase.Items = append(purchase.Items, item)
	}
	return &purchase, rows.Err()
}

// ListPurchases returns purchases matching the filter, newest first.
func (r *Repository) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		where += fmt.Sprintf(" AND supplier_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT `+purchaseColumns+` FROM purchases %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var purchases []Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, purchase)
	}
	return purchases, total, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Ledger() ledger.TxStore {
	return ledger.NewPgTxStore(t.tx)
}

func (t *txRepo) Inventory() inventory.TxStore {
	return inventory.NewPgTxStore(t.tx)
}

func (t *txRepo) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchases (code, supplier_id, account_id, total, paid, due, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		purchase.Code, purchase.SupplierID, purchase.AccountID, purchase.Total.String(),
		purchase.Paid.String(), purchase.Due.String(), purchase.Status).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItems(ctx context.Context, purchaseID int64, items []Item) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO purchase_items (purchase_id, product_id, qty, unit_cost, subtotal) VALUES ($1, $2, $3, $4, $5)`,
			purchaseID, item.ProductID, item.Qty, item.UnitCost.String(), item.Subtotal.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id)
	purchase, err := scanPurchase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, fmt.Errorf("%w: purchase %d", httpx.ErrNotFound, id)
	}
	return purchase, err
}

func (t *txRepo) GetItems(ctx context.Context, purchaseID int64) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, purchase_id, product_id, qty, unit_cost::text, subtotal::text FROM purchase_items WHERE purchase_id = $1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepo) ReturnedQty(ctx context.Context, purchaseID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT ri.product_id, COALESCE(SUM(ri.qty), 0)
FROM purchase_return_items ri JOIN purchase_returns r ON r.id = ri.return_id
WHERE r.purchase_id = $1 GROUP BY ri.product_id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	returned := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		returned[productID] = qty
	}
	return returned, rows.Err()
}

func (t *txRepo) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_returns (code, purchase_id, value, reason, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		ret.Code, ret.PurchaseID, ret.Value.String(), nullableString(ret.Reason)).Scan(&id)
	return id, err
}

func (t *txRepo) InsertReturnItems(ctx context.Context, returnID int64, items []ReturnItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO purchase_return_items (return_id, product_id, qty, value) VALUES ($1, $2, $3, $4)`,
			returnID, item.ProductID, item.Qty, item.Value.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchases SET status = $2 WHERE id = $1`, id, status)
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (Purchase, error) {
	var purchase Purchase
	var total, paid, due string
	if err := row.Scan(&purchase.ID, &purchase.Code, &purchase.SupplierID, &purchase.AccountID, &total, &paid, &due, &purchase.Status, &purchase.CreatedAt); err != nil {
		return Purchase{}, err
	}
	var err error
	if purchase.Total, err = decimal.NewFromString(total); err != nil {
		return Purchase{}, err
	}
	if purchase.Paid, err = decimal.NewFromString(paid); err != nil {
		return Purchase{}, err
	}
	if purchase.Due, err = decimal.NewFromString(due); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var unitCost, subtotal string
	if err := row.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Qty, &unitCost, &subtotal); err != nil {
		return Item{}, err
	}
	var err error
	if item.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return Item{}, err
	}
	if item.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return Item{}, err
	}
	return item, nil
}
