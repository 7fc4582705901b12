// Package inventory tracks on-hand stock per product and records every
// movement with its resulting balance.
package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Reason labels why stock changed.
type Reason string

const (
	ReasonSale           Reason = "sale"
	ReasonPurchase       Reason = "purchase"
	ReasonSaleReturn     Reason = "sale_return"
	ReasonPurchaseReturn Reason = "purchase_return"
	ReasonAdjustment     Reason = "adjustment"
)

// Valid reports whether the reason is one of the known reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonPurchase, ReasonSaleReturn, ReasonPurchaseReturn, ReasonAdjustment:
		return true
	}
	return false
}

// Stock is the on-hand quantity for one product.
type Stock struct {
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Movement records one stock change. BalanceAfter snapshots the quantity
// once the movement is applied.
type Movement struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	QtyChange    int64     `json:"qty_change"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       Reason    `json:"reason"`
	RefType      string    `json:"ref_type,omitempty"`
	RefID        int64     `json:"ref_id,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MovementInput describes a stock change to apply.
type MovementInput struct {
	ProductID int64
	QtyChange int64
	Reason    Reason
	RefType   string
	RefID     int64
	Note      string
}

// LowStockItem is a product at or below its reorder level.
type LowStockItem struct {
	ProductID    int64  `json:"product_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Quantity     int64  `json:"quantity"`
	ReorderLevel int64  `json:"reorder_level"`
}

var (
	// ErrInsufficientStock rejects movements that would take stock negative.
	// It wraps the state sentinel so handlers answer 422.
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", httpx.ErrState)
	// ErrStockNotFound indicates no stock row exists for the product yet.
	ErrStockNotFound = errors.New("inventory: stock not found")
)
