package purchases

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
	"github.com/pharmadesk/pharmadesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (*Purchase, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates purchase recording.
type Service struct {
	repo    RepositoryPort
	applier *inventory.Applier
	audit   AuditPort
	metrics *observability.Metrics
}

// NewService builds a Service.
func NewService(repo RepositoryPort, applier *inventory.Applier, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, applier: applier, audit: audit, metrics: metrics}
}

// Create records a goods receipt. Stock increments, the supplier credit for
// the unpaid remainder and the account debit for the paid part commit
// together with the header.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Purchase, error) {
	if input.SupplierID <= 0 {
		return nil, fmt.Errorf("%w: supplier id required", httpx.ErrValidation)
	}
	if input.AccountID <= 0 {
		return nil, fmt.Errorf("%w: account id required", httpx.ErrValidation)
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", httpx.ErrValidation)
	}
	if input.Paid.IsNegative() {
		return nil, fmt.Errorf("%w: paid must not be negative", httpx.ErrValidation)
	}

	total := decimal.Zero
	items := make([]Item, 0, len(input.Items))
	for i, line := range input.Items {
		if line.ProductID <= 0 {
			return nil, fmt.Errorf("%w: item %d: product id required", httpx.ErrValidation, i+1)
		}
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be positive", httpx.ErrValidation, i+1)
		}
		if line.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: item %d: unit cost must not be negative", httpx.ErrValidation, i+1)
		}
		subtotal := line.UnitCost.Mul(decimal.NewFromInt(line.Qty))
		items = append(items, Item{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}
	if input.Paid.GreaterThan(total) {
		return nil, fmt.Errorf("%w: paid exceeds purchase total", httpx.ErrValidation)
	}

	purchase := Purchase{
		Code:       "PUR-" + uuid.NewString(),
		SupplierID: input.SupplierID,
		AccountID:  input.AccountID,
		Total:      total,
		Paid:       input.Paid,
		Due:        total.Sub(input.Paid),
		Status:     StatusReceived,
		Items:      items,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPurchase(ctx, purchase)
		if err != nil {
			return err
		}
		purchase.ID = id
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}

		for _, item := range items {
			if _, err := s.applier.Apply(ctx, tx.Inventory(), inventory.MovementInput{
				ProductID: item.ProductID,
				QtyChange: item.Qty,
				Reason:    inventory.ReasonPurchase,
				RefType:   "purchase",
				RefID:     id,
			}); err != nil {
				return err
			}
		}

		if purchase.Due.IsPositive() {
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
				OwnerKind:   ledger.OwnerSupplier,
				OwnerID:     purchase.SupplierID,
				Credit:      purchase.Due,
				Description: "purchase " + purchase.Code,
				RefType:     "purchase",
				RefID:       id,
			}); err != nil {
				return err
			}
		}
		if purchase.Paid.IsPositive() {
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
				OwnerKind:   ledger.OwnerAccount,
				OwnerID:     purchase.AccountID,
				Debit:       purchase.Paid,
				Description: "purchase " + purchase.Code,
				RefType:     "purchase",
				RefID:       id,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StockMovements.WithLabelValues(string(inventory.ReasonPurchase)).Add(float64(len(items)))
	}
	s.recordAudit(ctx, "purchases:create", "purchase", purchase.ID, map[string]any{
		"code":  purchase.Code,
		"total": purchase.Total.String(),
	})
	return &purchase, nil
}

// Return sends goods back to the supplier: stock decrements and a supplier
// debit for the returned value, atomic with the return records.
func (s *Service) Return(ctx context.Context, input ReturnInput) (*Return, error) {
	if input.PurchaseID <= 0 {
		return nil, fmt.Errorf("%w: purchase id required", httpx.ErrValidation)
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", httpx.ErrValidation)
	}
	for i, line := range input.Items {
		if line.ProductID <= 0 || line.Qty <= 0 {
			return nil, fmt.Errorf("%w: item %d: product id and positive quantity required", httpx.ErrValidation, i+1)
		}
	}

	ret := Return{
		Code:       "PRT-" + uuid.NewString(),
		PurchaseID: input.PurchaseID,
		Reason:     input.Reason,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		purchase, err := tx.GetPurchaseForUpdate(ctx, input.PurchaseID)
		if err != nil {
			return err
		}
		if purchase.Status == StatusReturned {
			return fmt.Errorf("%w: purchase %s already fully returned", httpx.ErrState, purchase.Code)
		}

		items, err := tx.GetItems(ctx, purchase.ID)
		if err != nil {
			return err
		}
		// A purchase may carry several lines for the same product; the
		// returnable quantity and value are per product, summed across lines.
		received := make(map[int64]receivedProduct, len(items))
		for _, item := range items {
			agg := received[item.ProductID]
			agg.Qty += item.Qty
			agg.Cost = agg.Cost.Add(item.Subtotal)
			received[item.ProductID] = agg
		}
		returned, err := tx.ReturnedQty(ctx, purchase.ID)
		if err != nil {
			return err
		}

		value := decimal.Zero
		returnItems := make([]ReturnItem, 0, len(input.Items))
		for _, line := range input.Items {
			item, ok := received[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %d was not part of purchase %s", httpx.ErrValidation, line.ProductID, purchase.Code)
			}
			remaining := item.Qty - returned[line.ProductID]
			if line.Qty > remaining {
				return fmt.Errorf("%w: product %d: %d returnable, %d requested", httpx.ErrState, line.ProductID, remaining, line.Qty)
			}
			// Value goods at the average unit cost across the product's lines.
			unitCost := item.Cost.Div(decimal.NewFromInt(item.Qty))
			itemValue := unitCost.Mul(decimal.NewFromInt(line.Qty)).Round(2)
			value = value.Add(itemValue)
			returnItems = append(returnItems, ReturnItem{
				ProductID: line.ProductID,
				Qty:       line.Qty,
				Value:     itemValue,
			})
			returned[line.ProductID] += line.Qty
		}
		ret.Value = value

		id, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = id
		ret.Items = returnItems
		if err := tx.InsertReturnItems(ctx, id, returnItems); err != nil {
			return err
		}

		for _, item := range returnItems {
			if _, err := s.applier.Apply(ctx, tx.Inventory(), inventory.MovementInput{
				ProductID: item.ProductID,
				QtyChange: -item.Qty,
				Reason:    inventory.ReasonPurchaseReturn,
				RefType:   "purchase_return",
				RefID:     id,
			}); err != nil {
				return err
			}
		}

		if value.IsPositive() {
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
				OwnerKind:   ledger.OwnerSupplier,
				OwnerID:     purchase.SupplierID,
				Debit:       value,
				Description: "purchase return " + ret.Code,
				RefType:     "purchase_return",
				RefID:       id,
			}); err != nil {
				return err
			}
		}

		status := StatusPartiallyReturned
		if fullyReturned(items, returned) {
			status = StatusReturned
		}
		return tx.UpdateStatus(ctx, purchase.ID, status)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StockMovements.WithLabelValues(string(inventory.ReasonPurchaseReturn)).Add(float64(len(ret.Items)))
	}
	s.recordAudit(ctx, "purchases:return", "purchase_return", ret.ID, map[string]any{
		"purchase_id": ret.PurchaseID,
		"value":       ret.Value.String(),
	})
	return &ret, nil
}

// RecordPayment settles part of a supplier balance: a debit on the supplier
// and a debit on the paying account, posted atomically.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) error {
	if input.SupplierID <= 0 || input.AccountID <= 0 {
		return fmt.Errorf("%w: supplier and account required", httpx.ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", httpx.ErrValidation)
	}
	code := "SPM-" + uuid.NewString()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
			OwnerKind:   ledger.OwnerSupplier,
			OwnerID:     input.SupplierID,
			Debit:       input.Amount,
			Description: "payment " + code + " " + input.Note,
			RefType:     "supplier_payment",
		}); err != nil {
			return err
		}
		_, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
			OwnerKind:   ledger.OwnerAccount,
			OwnerID:     input.AccountID,
			Debit:       input.Amount,
			Description: "payment " + code + " " + input.Note,
			RefType:     "supplier_payment",
		})
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "purchases:supplier_payment", "supplier", input.SupplierID, map[string]any{
		"amount":     input.Amount.String(),
		"account_id": input.AccountID,
	})
	return nil
}

// Get returns one purchase with items.
func (s *Service) Get(ctx context.Context, id int64) (*Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// List returns purchases matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Purchase, shared.Pagination, error) {
	purchases, total, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return purchases, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// receivedProduct accumulates a product's received quantity and cost across
// every line of a purchase.
type receivedProduct struct {
	Qty  int64
	Cost decimal.Decimal
}

func fullyReturned(items []Item, returned map[int64]int64) bool {
	received := make(map[int64]int64, len(items))
	for _, item := range items {
		received[item.ProductID] += item.Qty
	}
	for pid, qty := range received {
		if returned[pid] < qty {
			return false
		}
	}
	return true
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
