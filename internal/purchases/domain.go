// Package purchases records supplier purchases. A purchase writes its header
// and items, the stock increments and the ledger entries in one transaction.
package purchases

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks the lifecycle of a purchase.
type Status string

const (
	StatusReceived          Status = "received"
	StatusPartiallyReturned Status = "partially_returned"
	StatusReturned          Status = "returned"
)

// Purchase is a received supplier delivery.
type Purchase struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	SupplierID int64           `json:"supplier_id"`
	AccountID  int64           `json:"account_id"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	Due        decimal.Decimal `json:"due"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`

	Items []Item `json:"items,omitempty"`
}

// Item is one purchase line at cost price.
type Item struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchase_id"`
	ProductID  int64           `json:"product_id"`
	Qty        int64           `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// ItemInput is one requested purchase line.
type ItemInput struct {
	ProductID int64
	Qty       int64
	UnitCost  decimal.Decimal
}

// CreateInput describes a goods receipt.
type CreateInput struct {
	SupplierID int64
	AccountID  int64
	Items      []ItemInput
	Paid       decimal.Decimal
}

// Return is a purchase return sent back to the supplier.
type Return struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	PurchaseID int64           `json:"purchase_id"`
	Value      decimal.Decimal `json:"value"`
	Reason     string          `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	Items []ReturnItem `json:"items,omitempty"`
}

// ReturnItem is one returned line.
type ReturnItem struct {
	ID        int64           `json:"id"`
	ReturnID  int64           `json:"return_id"`
	ProductID int64           `json:"product_id"`
	Qty       int64           `json:"qty"`
	Value     decimal.Decimal `json:"value"`
}

// ReturnInput describes a purchase return request.
type ReturnInput struct {
	PurchaseID int64
	Items      []ReturnItemInput
	Reason     string
}

// ReturnItemInput is one requested return line.
type ReturnItemInput struct {
	ProductID int64
	Qty       int64
}

// PaymentInput settles part of a supplier balance from an account.
type PaymentInput struct {
	SupplierID int64
	AccountID  int64
	Amount     decimal.Decimal
	Note       string
}

// ListFilter narrows purchase listings.
type ListFilter struct {
	SupplierID int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}
