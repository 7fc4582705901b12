// Package reports serves read-only aggregations over sales and stock. All
// queries are against committed data and may be served from a short-lived
// Redis cache, so figures can trail the ledger by the cache TTL.
package reports

import (
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
)

// TodaySummary aggregates the current day's trade.
type TodaySummary struct {
	Date       string          `json:"date"`
	SalesCount int64           `json:"sales_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	Refunds    decimal.Decimal `json:"refunds"`
}

// DailyPoint is one day in a monthly revenue series.
type DailyPoint struct {
	Date       string          `json:"date"`
	SalesCount int64           `json:"sales_count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// TopProduct ranks a product by revenue over a window.
type TopProduct struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	QtySold   int64           `json:"qty_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// Dashboard combines the standard report sections in one payload.
type Dashboard struct {
	Today       TodaySummary             `json:"today"`
	Monthly     []DailyPoint             `json:"monthly"`
	TopProducts []TopProduct             `json:"top_products"`
	LowStock    []inventory.LowStockItem `json:"low_stock"`
}
