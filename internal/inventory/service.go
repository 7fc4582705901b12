package inventory

import (
	"context"
	"strconv"

	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetStock(ctx context.Context, productID int64) (*Stock, error)
	ListStock(ctx context.Context) ([]Stock, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
	LowStock(ctx context.Context) ([]LowStockItem, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo    RepositoryPort
	applier *Applier
	audit   AuditPort
	metrics *observability.Metrics
}

// NewService builds a Service.
func NewService(repo RepositoryPort, applier *Applier, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, applier: applier, audit: audit, metrics: metrics}
}

// Adjust applies a manual stock correction.
func (s *Service) Adjust(ctx context.Context, productID, qtyChange int64, note string) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		movement, err = s.applier.Apply(ctx, tx, MovementInput{
			ProductID: productID,
			QtyChange: qtyChange,
			Reason:    ReasonAdjustment,
			Note:      note,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	if s.metrics != nil {
		s.metrics.StockMovements.WithLabelValues(string(ReasonAdjustment)).Inc()
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:adjust",
			Entity:   "stock",
			EntityID: strconv.FormatInt(productID, 10),
			Meta:     map[string]any{"qty_change": qtyChange, "note": note},
		})
	}
	return movement, nil
}

// Stock returns the stock row for one product.
func (s *Service) Stock(ctx context.Context, productID int64) (*Stock, error) {
	return s.repo.GetStock(ctx, productID)
}

// StockList returns all stock rows.
func (s *Service) StockList(ctx context.Context) ([]Stock, error) {
	return s.repo.ListStock(ctx)
}

// Movements lists recent movements for one product.
func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, productID, limit)
}

// LowStock lists products at or below their reorder level.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	return s.repo.LowStock(ctx)
}
