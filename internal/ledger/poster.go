package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// TxStore is the slice of storage a posting needs. It is satisfied by the
// transactional repository here and by fakes in tests, and other modules
// obtain one from NewPgTxStore to post entries inside their own transactions.
type TxStore interface {
	GetBalanceForUpdate(ctx context.Context, kind OwnerKind, ownerID int64) (decimal.Decimal, error)
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
	UpdateBalance(ctx context.Context, kind OwnerKind, ownerID int64, balance decimal.Decimal) error
}

// Post validates the input, applies it to the owner balance and records the
// entry. Credits raise the balance, debits lower it, for every owner kind.
func Post(ctx context.Context, store TxStore, input PostInput) (Entry, error) {
	if !input.OwnerKind.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown owner kind %q", httpx.ErrValidation, input.OwnerKind)
	}
	if input.OwnerID <= 0 {
		return Entry{}, fmt.Errorf("%w: owner id required", httpx.ErrValidation)
	}
	if input.Debit.IsNegative() || input.Credit.IsNegative() {
		return Entry{}, fmt.Errorf("%w: debit and credit must not be negative", httpx.ErrValidation)
	}
	if input.Debit.IsPositive() && input.Credit.IsPositive() {
		return Entry{}, fmt.Errorf("%w: entry cannot carry both debit and credit", httpx.ErrValidation)
	}
	if input.Debit.IsZero() && input.Credit.IsZero() {
		return Entry{}, fmt.Errorf("%w: entry amount required", httpx.ErrValidation)
	}

	balance, err := store.GetBalanceForUpdate(ctx, input.OwnerKind, input.OwnerID)
	if err != nil {
		return Entry{}, err
	}
	newBalance := balance.Add(input.Credit).Sub(input.Debit)

	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now().UTC()
	}
	entry := Entry{
		OwnerKind:    input.OwnerKind,
		OwnerID:      input.OwnerID,
		Debit:        input.Debit,
		Credit:       input.Credit,
		BalanceAfter: newBalance,
		Description:  input.Description,
		RefType:      input.RefType,
		RefID:        input.RefID,
		EntryDate:    entryDate,
	}
	id, err := store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	if err := store.UpdateBalance(ctx, input.OwnerKind, input.OwnerID, newBalance); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
