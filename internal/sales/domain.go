// Package sales records point-of-sale transactions. A sale writes its header
// and items, the stock decrements and the ledger entries in one transaction.
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks the lifecycle of a sale.
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusPending           Status = "pending"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Sale is a completed checkout.
type Sale struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	AccountID  int64           `json:"account_id"`
	CustomerID *int64          `json:"customer_id,omitempty"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	Paid       decimal.Decimal `json:"paid"`
	Change     decimal.Decimal `json:"change"`
	Due        decimal.Decimal `json:"due"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`

	Items []Item `json:"items,omitempty"`
}

// Item is one sale line. Subtotal is qty × unit price − discount + tax.
type Item struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	ProductID int64           `json:"product_id"`
	Qty       int64           `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// ItemInput is one requested sale line.
type ItemInput struct {
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
}

// CreateInput describes a checkout request.
type CreateInput struct {
	AccountID  int64
	CustomerID *int64
	Items      []ItemInput
	Discount   decimal.Decimal
	Paid       decimal.Decimal
}

// Return is a sale return. Refund is the amount handed back from the account.
type Return struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	SaleID    int64           `json:"sale_id"`
	Refund    decimal.Decimal `json:"refund"`
	Reason    string          `json:"reason,omitempty"`
	Restocked bool            `json:"restocked"`
	CreatedAt time.Time       `json:"created_at"`

	Items []ReturnItem `json:"items,omitempty"`
}

// ReturnItem is one returned line.
type ReturnItem struct {
	ID        int64           `json:"id"`
	ReturnID  int64           `json:"return_id"`
	ProductID int64           `json:"product_id"`
	Qty       int64           `json:"qty"`
	Refund    decimal.Decimal `json:"refund"`
}

// ReturnInput describes a return request.
type ReturnInput struct {
	SaleID int64
	Items  []ReturnItemInput
	Reason string
}

// ReturnItemInput is one requested return line.
type ReturnItemInput struct {
	ProductID int64
	Qty       int64
}

// PaymentInput settles part of a customer's receivable into an account.
type PaymentInput struct {
	CustomerID int64
	AccountID  int64
	Amount     decimal.Decimal
	Note       string
}

// ListFilter narrows sale listings.
type ListFilter struct {
	Status     Status
	CustomerID int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}
