package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the report aggregations against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TodaySummary aggregates today's completed trade.
func (r *Repository) TodaySummary(ctx context.Context) (TodaySummary, error) {
	summary := TodaySummary{Date: time.Now().Format("2006-01-02")}
	var revenue, refunds string
	err := r.pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM sales WHERE created_at::date = CURRENT_DATE),
  (SELECT COALESCE(SUM(total), 0)::text FROM sales WHERE created_at::date = CURRENT_DATE),
  (SELECT COALESCE(SUM(refund), 0)::text FROM sale_returns WHERE created_at::date = CURRENT_DATE)`).
		Scan(&summary.SalesCount, &revenue, &refunds)
	if err != nil {
		return TodaySummary{}, err
	}
	if summary.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return TodaySummary{}, err
	}
	if summary.Refunds, err = decimal.NewFromString(refunds); err != nil {
		return TodaySummary{}, err
	}
	return summary, nil
}

// DailyRevenue returns one point per day of the given month.
func (r *Repository) DailyRevenue(ctx context.Context, year int, month time.Month) ([]DailyPoint, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows, err := r.pool.Query(ctx, `SELECT created_at::date::text, COUNT(*), COALESCE(SUM(total), 0)::text
FROM sales WHERE created_at >= $1 AND created_at < $2
GROUP BY created_at::date ORDER BY created_at::date`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []DailyPoint
	for rows.Next() {
		var point DailyPoint
		var revenue string
		if err := rows.Scan(&point.Date, &point.SalesCount, &revenue); err != nil {
			return nil, err
		}
		if point.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// TopProducts ranks products by revenue over the window.
func (r *Repository) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.sku, p.name, COALESCE(SUM(si.qty), 0), COALESCE(SUM(si.subtotal), 0)::text
FROM sale_items si
JOIN sales s ON s.id = si.sale_id
JOIN products p ON p.id = si.product_id
WHERE s.created_at >= $1 AND s.created_at < $2
GROUP BY p.id, p.sku, p.name
ORDER BY SUM(si.subtotal) DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []TopProduct
	for rows.Next() {
		var product TopProduct
		var revenue string
		if err := rows.Scan(&product.ProductID, &product.SKU, &product.Name, &product.QtySold, &revenue); err != nil {
			return nil, err
		}
		if product.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}
