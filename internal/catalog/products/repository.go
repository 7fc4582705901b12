package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/catalog/shared"
	"github.com/pharmadesk/pharmadesk/internal/platform/db"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Repository abstracts product persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetBySKU(ctx context.Context, sku string) (Product, error)
	Create(ctx context.Context, input Input) (Product, error)
	Update(ctx context.Context, id int64, input Input) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, sku, COALESCE(barcode, ''), name, category_id, price::text, cost::text, reorder_level, active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + ` OR barcode ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.CategoryID != nil {
		argCount++
		cond := ` AND category_id = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.CategoryID)
	}
	if filters.Active != nil {
		argCount++
		cond := ` AND active = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.Active)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + shared.SortOrder(filters.SortBy, filters.SortDir, "name", "sku", "price", "created_at")
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	return p, err
}

func (r *repository) GetBySKU(ctx context.Context, sku string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: product sku %q", httpx.ErrNotFound, sku)
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, input Input) (Product, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, barcode, name, category_id, price, cost, reorder_level, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW()) RETURNING id`,
		input.SKU, nullableString(input.Barcode), input.Name, input.CategoryID,
		input.Price.String(), input.Cost.String(), input.ReorderLevel).Scan(&id)
	if err != nil {
		return Product{}, conflictOr(err, input)
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, input Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sku = $2, barcode = $3, name = $4, category_id = $5, price = $6, cost = $7, reorder_level = $8, updated_at = NOW() WHERE id = $1`,
		id, input.SKU, nullableString(input.Barcode), input.Name, input.CategoryID,
		input.Price.String(), input.Cost.String(), input.ReorderLevel)
	if err != nil {
		return conflictOr(err, input)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	return nil
}

// conflictOr maps unique violations to a ConflictError naming the field.
func conflictOr(err error, input Input) error {
	constraint, ok := db.UniqueConstraint(err)
	if !ok {
		return err
	}
	switch constraint {
	case "products_barcode_key":
		return &httpx.ConflictError{Field: "barcode", Value: input.Barcode}
	default:
		return &httpx.ConflictError{Field: "sku", Value: input.SKU}
	}
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

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	var price, cost string
	if err := row.Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.CategoryID, &price, &cost, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, err
	}
	if p.Cost, err = decimal.NewFromString(cost); err != nil {
		return Product{}, err
	}
	return p, nil
}
