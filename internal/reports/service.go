package reports

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
)

// Store runs the sale aggregations.
type Store interface {
	TodaySummary(ctx context.Context) (TodaySummary, error)
	DailyRevenue(ctx context.Context, year int, month time.Month) ([]DailyPoint, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error)
}

// StockStore lists products at or below their reorder level.
type StockStore interface {
	LowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// Service coordinates report queries with the cache layer.
type Service struct {
	store Store
	stock StockStore
	cache *Cache
}

// NewService wires the stores with a Cache helper.
func NewService(store Store, stock StockStore, cache *Cache) *Service {
	return &Service{store: store, stock: stock, cache: cache}
}

// Today returns the current day's summary.
func (s *Service) Today(ctx context.Context) (TodaySummary, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "today", time.Now().Format("2006-01-02"))
	if err != nil {
		return TodaySummary{}, err
	}
	var summary TodaySummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.store.TodaySummary(ctx)
	})
	return summary, err
}

// Monthly returns the daily revenue series for one month.
func (s *Service) Monthly(ctx context.Context, year int, month time.Month) ([]DailyPoint, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "monthly", strconv.Itoa(year), strconv.Itoa(int(month)))
	if err != nil {
		return nil, err
	}
	var points []DailyPoint
	err = s.cache.FetchJSON(ctx, key, &points, func(ctx context.Context) (any, error) {
		return s.store.DailyRevenue(ctx, year, month)
	})
	return points, err
}

// TopProducts ranks products by revenue over the window.
func (s *Service) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "top",
		from.Format("2006-01-02"), to.Format("2006-01-02"), strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	var products []TopProduct
	err = s.cache.FetchJSON(ctx, key, &products, func(ctx context.Context) (any, error) {
		return s.store.TopProducts(ctx, from, to, limit)
	})
	return products, err
}

// LowStock lists products at or below their reorder level. Not cached, the
// shelf view must not lag a restock.
func (s *Service) LowStock(ctx context.Context) ([]inventory.LowStockItem, error) {
	return s.stock.LowStock(ctx)
}

// Dashboard loads every section concurrently and combines them.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := time.Now()
	var dashboard Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dashboard.Today, err = s.Today(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		dashboard.Monthly, err = s.Monthly(gctx, now.Year(), now.Month())
		return err
	})
	g.Go(func() error {
		var err error
		dashboard.TopProducts, err = s.TopProducts(gctx, now.AddDate(0, -1, 0), now.AddDate(0, 0, 1), 10)
		return err
	})
	g.Go(func() error {
		var err error
		dashboard.LowStock, err = s.LowStock(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return dashboard, nil
}

// Invalidate drops all cached report payloads.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
