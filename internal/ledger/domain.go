// Package ledger keeps running balances for cash accounts, suppliers and
// customers. Every financial event in the system ends up here as an entry.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// OwnerKind identifies which balance an entry belongs to.
type OwnerKind string

const (
	OwnerAccount  OwnerKind = "account"
	OwnerSupplier OwnerKind = "supplier"
	OwnerCustomer OwnerKind = "customer"
)

// Valid reports whether the owner kind is one of the known kinds.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerAccount, OwnerSupplier, OwnerCustomer:
		return true
	}
	return false
}

// Account is a money account such as a cash drawer or a bank account.
type Account struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Entry is a single ledger line. Exactly one of Debit or Credit is positive.
// BalanceAfter snapshots the owner balance once the entry is applied.
type Entry struct {
	ID           int64           `json:"id"`
	OwnerKind    OwnerKind       `json:"owner_kind"`
	OwnerID      int64           `json:"owner_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	RefType      string          `json:"ref_type,omitempty"`
	RefID        int64           `json:"ref_id,omitempty"`
	EntryDate    time.Time       `json:"entry_date"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PostInput describes an entry to be posted.
type PostInput struct {
	OwnerKind   OwnerKind
	OwnerID     int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	RefType     string
	RefID       int64
	EntryDate   time.Time
}

// AccountInput creates a new account.
type AccountInput struct {
	Name           string
	Kind           string
	OpeningBalance decimal.Decimal
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	OwnerKind OwnerKind
	OwnerID   int64
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

var (
	// ErrBalanceNotFound indicates the owner row does not exist. It wraps the
	// not-found sentinel so handlers answer 404.
	ErrBalanceNotFound = fmt.Errorf("ledger: balance not found: %w", httpx.ErrNotFound)
	// ErrAccountInactive rejects postings against a deactivated account.
	ErrAccountInactive = errors.New("ledger: account is inactive")
)
