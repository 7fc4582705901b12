package sales

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

// TxRepository exposes the transactional operations of a sale, together with
// ledger and inventory stores bound to the same transaction.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertItems(ctx context.Context, saleID int64, items []Item) error
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	GetItems(ctx context.Context, saleID int64) ([]Item, error)
	ReturnedQty(ctx context.Context, saleID int64) (map[int64]int64, error)
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

const saleColumns = `id, code, account_id, customer_id, subtotal::text, discount::text, total::text, paid::text, change::text, due::text, status, created_at`

// GetSale returns a sale with its items.
func (r *Repository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", httpx.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price::text, discount::text, tax::text, subtotal::text FROM sale_items WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	return &sale, rows.Err()
}

// ListSales returns sales matching the filter, newest first.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where += fmt.Sprintf(" AND customer_id = $%d", len(args))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales `+where, args...).Scan(&total); err != nil {
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
	query := fmt.Sprintf(`SELECT `+saleColumns+` FROM sales %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	return sales, total, rows.Err()
}

// GetReturn returns one sale return with its items.
func (r *Repository) GetReturn(ctx context.Context, id int64) (*Return, error) {
	var ret Return
	var refund string
	var reason *string
	err := r.pool.QueryRow(ctx, `SELECT id, code, sale_id, refund::text, reason, restocked, created_at FROM sale_returns WHERE id = $1`, id).
		Scan(&ret.ID, &ret.Code, &ret.SaleID, &refund, &reason, &ret.Restocked, &ret.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale return %d", httpx.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if ret.Refund, err = decimal.NewFromString(refund); err != nil {
		return nil, err
	}
	if reason != nil {
		ret.Reason = *reason
	}
	rows, err := r.pool.Query(ctx, `SELECT id, return_id, product_id, qty, refund::text FROM sale_return_items WHERE return_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item ReturnItem
		var itemRefund string
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.Qty, &itemRefund); err != nil {
			return nil, err
		}
		if item.Refund, err = decimal.NewFromString(itemRefund); err != nil {
			return nil, err
		}
		ret.Items = append(ret.Items, item)
	}
	return &ret, rows.Err()
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

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (code, account_id, customer_id, subtotal, discount, total, paid, change, due, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()) RETURNING id`,
		sale.Code, sale.AccountID, sale.CustomerID, sale.Subtotal.String(), sale.Discount.String(),
		sale.Total.String(), sale.Paid.String(), sale.Change.String(), sale.Due.String(), sale.Status).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItems(ctx context.Context, saleID int64, items []Item) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO sale_items (sale_id, product_id, qty, unit_price, discount, tax, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			saleID, item.ProductID, item.Qty, item.UnitPrice.String(), item.Discount.String(), item.Tax.String(), item.Subtotal.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
	sale, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, fmt.Errorf("%w: sale %d", httpx.ErrNotFound, id)
	}
	return sale, err
}

func (t *txRepo) GetItems(ctx context.Context, saleID int64) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price::text, discount::text, tax::text, subtotal::text FROM sale_items WHERE sale_id = $1 ORDER BY id`, saleID)
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

func (t *txRepo) ReturnedQty(ctx context.Context, saleID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT ri.product_id, COALESCE(SUM(ri.qty), 0)
FROM sale_return_items ri JOIN sale_returns r ON r.id = ri.return_id
WHERE r.sale_id = $1 GROUP BY ri.product_id`, saleID)
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
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_returns (code, sale_id, refund, reason, restocked, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id`,
		ret.Code, ret.SaleID, ret.Refund.String(), nullableString(ret.Reason), ret.Restocked).Scan(&id)
	return id, err
}

func (t *txRepo) InsertReturnItems(ctx context.Context, returnID int64, items []ReturnItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO sale_return_items (return_id, product_id, qty, refund) VALUES ($1, $2, $3, $4)`,
			returnID, item.ProductID, item.Qty, item.Refund.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, status)
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

func scanSale(row rowScanner) (Sale, error) {
	var sale Sale
	var subtotal, discount, total, paid, change, due string
	if err := row.Scan(&sale.ID, &sale.Code, &sale.AccountID, &sale.CustomerID, &subtotal, &discount, &total, &paid, &change, &due, &sale.Status, &sale.CreatedAt); err != nil {
		return Sale{}, err
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&sale.Subtotal, subtotal}, {&sale.Discount, discount}, {&sale.Total, total},
		{&sale.Paid, paid}, {&sale.Change, change}, {&sale.Due, due},
	} {
		value, err := decimal.NewFromString(pair.raw)
		if err != nil {
			return Sale{}, err
		}
		*pair.dst = value
	}
	return sale, nil
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var unitPrice, discount, tax, subtotal string
	if err := row.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &unitPrice, &discount, &tax, &subtotal); err != nil {
		return Item{}, err
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&item.UnitPrice, unitPrice}, {&item.Discount, discount}, {&item.Tax, tax}, {&item.Subtotal, subtotal},
	} {
		value, err := decimal.NewFromString(pair.raw)
		if err != nil {
			return Item{}, err
		}
		*pair.dst = value
	}
	return item, nil
}
