package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// TxStore is the slice of storage a movement needs. Sales and purchases
// obtain one from NewPgTxStore to move stock inside their own transactions.
type TxStore interface {
	GetStockForUpdate(ctx context.Context, productID int64) (int64, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	UpsertStock(ctx context.Context, productID, quantity int64) error
}

// Applier applies stock movements under the configured negative-stock policy.
type Applier struct {
	allowNegative bool
}

// NewApplier builds an Applier.
func NewApplier(allowNegative bool) *Applier {
	return &Applier{allowNegative: allowNegative}
}

// Apply validates the movement, adjusts the stock quantity and records the
// movement with the resulting balance.
func (a *Applier) Apply(ctx context.Context, store TxStore, input MovementInput) (Movement, error) {
	if input.ProductID <= 0 {
		return Movement{}, fmt.Errorf("%w: product id required", httpx.ErrValidation)
	}
	if input.QtyChange == 0 {
		return Movement{}, fmt.Errorf("%w: quantity change required", httpx.ErrValidation)
	}
	if !input.Reason.Valid() {
		return Movement{}, fmt.Errorf("%w: unknown movement reason %q", httpx.ErrValidation, input.Reason)
	}

	current, err := store.GetStockForUpdate(ctx, input.ProductID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return Movement{}, err
	}
	newQty := current + input.QtyChange
	if newQty < 0 && !a.allowNegative {
		return Movement{}, fmt.Errorf("%w: product %d has %d on hand, movement of %d rejected",
			ErrInsufficientStock, input.ProductID, current, input.QtyChange)
	}

	movement := Movement{
		ProductID:    input.ProductID,
		QtyChange:    input.QtyChange,
		BalanceAfter: newQty,
		Reason:       input.Reason,
		RefType:      input.RefType,
		RefID:        input.RefID,
		Note:         input.Note,
	}
	id, err := store.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id
	if err := store.UpsertStock(ctx, input.ProductID, newQty); err != nil {
		return Movement{}, err
	}
	return movement, nil
}
