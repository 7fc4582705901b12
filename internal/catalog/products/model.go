// Package products manages the medicine catalog.
package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog item. SKU is unique; barcode is unique when
// present.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode,omitempty"`
	Name         string          `json:"name"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost"`
	ReorderLevel int64           `json:"reorder_level"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Input carries the writable product fields.
type Input struct {
	SKU          string
	Barcode      string
	Name         string
	CategoryID   *int64
	Price        decimal.Decimal
	Cost         decimal.Decimal
	ReorderLevel int64
}
