package sales

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
	GetSale(ctx context.Context, id int64) (*Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	GetReturn(ctx context.Context, id int64) (*Return, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups sale policies.
type Config struct {
	RestockOnReturn bool
}

// Service coordinates sale recording.
type Service struct {
	repo    RepositoryPort
	applier *inventory.Applier
	audit   AuditPort
	metrics *observability.Metrics
	cfg     Config
}

// NewService builds a Service.
func NewService(repo RepositoryPort, applier *inventory.Applier, audit AuditPort, metrics *observability.Metrics, cfg Config) *Service {
	return &Service{repo: repo, applier: applier, audit: audit, metrics: metrics, cfg: cfg}
}

// Create records a sale. The header, items, stock decrements and ledger
// entries commit or roll back together. Every accepted call creates new
// records; retries are the caller's responsibility.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Sale, error) {
	if input.AccountID <= 0 {
		return nil, fmt.Errorf("%w: account id required", httpx.ErrValidation)
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", httpx.ErrValidation)
	}
	if input.Paid.IsNegative() || input.Discount.IsNegative() {
		return nil, fmt.Errorf("%w: paid and discount must not be negative", httpx.ErrValidation)
	}

	subtotal := decimal.Zero
	items := make([]Item, 0, len(input.Items))
	for i, line := range input.Items {
		if line.ProductID <= 0 {
			return nil, fmt.Errorf("%w: item %d: product id required", httpx.ErrValidation, i+1)
		}
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be positive", httpx.ErrValidation, i+1)
		}
		if line.UnitPrice.IsNegative() || line.Discount.IsNegative() || line.Tax.IsNegative() {
			return nil, fmt.Errorf("%w: item %d: amounts must not be negative", httpx.ErrValidation, i+1)
		}
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Qty)).Sub(line.Discount).Add(line.Tax)
		if lineTotal.IsNegative() {
			return nil, fmt.Errorf("%w: item %d: discount exceeds line amount", httpx.ErrValidation, i+1)
		}
		items = append(items, Item{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			Discount:  line.Discount,
			Tax:       line.Tax,
			Subtotal:  lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	total := subtotal.Sub(input.Discount)
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: discount exceeds subtotal", httpx.ErrValidation)
	}
	// A sale must move money; a fully discounted ticket would write stock
	// movements with no ledger entry.
	if total.IsZero() {
		return nil, fmt.Errorf("%w: sale total must be positive", httpx.ErrValidation)
	}

	change := decimal.Zero
	due := decimal.Zero
	status := StatusCompleted
	if input.Paid.GreaterThanOrEqual(total) {
		change = input.Paid.Sub(total)
	} else {
		due = total.Sub(input.Paid)
		status = StatusPending
		if input.CustomerID == nil {
			return nil, fmt.Errorf("%w: credit sale requires a customer", httpx.ErrValidation)
		}
	}

	sale := Sale{
		Code:       "SAL-" + uuid.NewString(),
		AccountID:  input.AccountID,
		CustomerID: input.CustomerID,
		Subtotal:   subtotal,
		Discount:   input.Discount,
		Total:      total,
		Paid:       input.Paid,
		Change:     change,
		Due:        due,
		Status:     status,
		Items:      items,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}

		for _, item := range items {
			if _, err := s.applier.Apply(ctx, tx.Inventory(), inventory.MovementInput{
				ProductID: item.ProductID,
				QtyChange: -item.Qty,
				Reason:    inventory.ReasonSale,
				RefType:   "sale",
				RefID:     id,
			}); err != nil {
				return err
			}
		}

		// Cash retained is paid minus change. The change goes back across
		// the counter and never touches the drawer balance.
		retained := sale.Paid.Sub(sale.Change)
		if retained.IsPositive() {
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
				OwnerKind:   ledger.OwnerAccount,
				OwnerID:     sale.AccountID,
				Credit:      retained,
				Description: "sale " + sale.Code,
				RefType:     "sale",
				RefID:       id,
			}); err != nil {
				return err
			}
		}
		if due.IsPositive() {
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
				OwnerKind:   ledger.OwnerCustomer,
				OwnerID:     *sale.CustomerID,
				Credit:      due,
				Description: "credit sale " + sale.Code,
				RefType:     "sale",
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
		s.metrics.StockMovements.WithLabelValues(string(inventory.ReasonSale)).Add(float64(len(items)))
		s.metrics.LedgerPostings.WithLabelValues(string(ledger.OwnerAccount)).Inc()
	}
	s.recordAudit(ctx, "sales:create", "sale", sale.ID, map[string]any{
		"code":  sale.Code,
		"total": sale.Total.String(),
		"due":   sale.Due.String(),
	})
	return &sale, nil
}

// Return records a sale return. Items cannot exceed the sold quantity minus
// what was already returned. Restocking follows the configured policy.
func (s *Service) Return(ctx context.Context, input ReturnInput) (*Return, error) {
	if input.SaleID <= 0 {
		return nil, fmt.Errorf("%w: sale id required", httpx.ErrValidation)
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
		Code:      "SRT-" + uuid.NewString(),
		SaleID:    input.SaleID,
		Reason:    input.Reason,
		Restocked: s.cfg.RestockOnReturn,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, input.SaleID)
		if err != nil {
			return err
		}
		if sale.Status == StatusRefunded {
			return fmt.Errorf("%w: sale %s already fully refunded", httpx.ErrState, sale.Code)
		}

		items, err := tx.GetItems(ctx, sale.ID)
		if err != nil {
			return err
		}
		// A sale may carry several lines for the same product; the returnable
		// quantity and refund value are per product, summed across lines.
		sold := make(map[int64]soldProduct, len(items))
		for _, item := range items {
			agg := sold[item.ProductID]
			agg.Qty += item.Qty
			agg.Net = agg.Net.Add(item.Subtotal)
			sold[item.ProductID] = agg
		}
		returned, err := tx.ReturnedQty(ctx, sale.ID)
		if err != nil {
			return err
		}

		refund := decimal.Zero
		returnItems := make([]ReturnItem, 0, len(input.Items))
		for _, line := range input.Items {
			item, ok := sold[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %d was not part of sale %s", httpx.ErrValidation, line.ProductID, sale.Code)
			}
			remaining := item.Qty - returned[line.ProductID]
			if line.Qty > remaining {
				return fmt.Errorf("%w: product %d: %d returnable, %d requested", httpx.ErrState, line.ProductID, remaining, line.Qty)
			}
			// Refund at the per-unit net price the customer actually paid.
			unitNet := item.Net.Div(decimal.NewFromInt(item.Qty))
			itemRefund := unitNet.Mul(decimal.NewFromInt(line.Qty)).Round(2)
			refund = refund.Add(itemRefund)
			returnItems = append(returnItems, ReturnItem{
				ProductID: line.ProductID,
				Qty:       line.Qty,
				Refund:    itemRefund,
			})
			returned[line.ProductID] += line.Qty
		}
		ret.Refund = refund

		id, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = id
		ret.Items = returnItems
		if err := tx.InsertReturnItems(ctx, id, returnItems); err != nil {
			return err
		}

		if s.cfg.RestockOnReturn {
			for _, item := range returnItems {
				if _, err := s.applier.Apply(ctx, tx.Inventory(), inventory.MovementInput{
					ProductID: item.ProductID,
					QtyChange: item.Qty,
					Reason:    inventory.ReasonSaleReturn,
					RefType:   "sale_return",
					RefID:     id,
				}); err != nil {
					return err
				}
			}
		}

		if refund.IsPositive() {
			if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
				OwnerKind:   ledger.OwnerAccount,
				OwnerID:     sale.AccountID,
				Debit:       refund,
				Description: "refund " + ret.Code,
				RefType:     "sale_return",
				RefID:       id,
			}); err != nil {
				return err
			}
		}

		status := StatusPartiallyRefunded
		if fullyReturned(items, returned) {
			status = StatusRefunded
		}
		return tx.UpdateStatus(ctx, sale.ID, status)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && s.cfg.RestockOnReturn {
		s.metrics.StockMovements.WithLabelValues(string(inventory.ReasonSaleReturn)).Add(float64(len(ret.Items)))
	}
	s.recordAudit(ctx, "sales:return", "sale_return", ret.ID, map[string]any{
		"sale_id": ret.SaleID,
		"refund":  ret.Refund.String(),
	})
	return &ret, nil
}

// RecordPayment settles part of a customer's receivable: a debit on the
// customer and a credit on the receiving account, posted atomically.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) error {
	if input.CustomerID <= 0 || input.AccountID <= 0 {
		return fmt.Errorf("%w: customer and account required", httpx.ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", httpx.ErrValidation)
	}
	code := "CPM-" + uuid.NewString()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
			OwnerKind:   ledger.OwnerCustomer,
			OwnerID:     input.CustomerID,
			Debit:       input.Amount,
			Description: "payment " + code + " " + input.Note,
			RefType:     "customer_payment",
		}); err != nil {
			return err
		}
		_, err := ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
			OwnerKind:   ledger.OwnerAccount,
			OwnerID:     input.AccountID,
			Credit:      input.Amount,
			Description: "payment " + code + " " + input.Note,
			RefType:     "customer_payment",
		})
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "sales:customer_payment", "customer", input.CustomerID, map[string]any{
		"amount":     input.Amount.String(),
		"account_id": input.AccountID,
	})
	return nil
}

// Get returns one sale with items.
func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// List returns sales matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return sales, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// GetReturn returns one sale return with items.
func (s *Service) GetReturn(ctx context.Context, id int64) (*Return, error) {
	return s.repo.GetReturn(ctx, id)
}

// soldProduct accumulates a product's sold quantity and net value across
// every line of a sale.
type soldProduct struct {
	Qty int64
	Net decimal.Decimal
}

func fullyReturned(items []Item, returned map[int64]int64) bool {
	sold := make(map[int64]int64, len(items))
	for _, item := range items {
		sold[item.ProductID] += item.Qty
	}
	for pid, qty := range sold {
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
