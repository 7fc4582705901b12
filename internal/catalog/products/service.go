package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/pharmadesk/pharmadesk/internal/catalog/shared"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Service validates and coordinates product operations.
type Service struct {
	repo Repository
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns products matching the filters.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	return s.repo.List(ctx, filters)
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// GetBySKU returns one product by its SKU.
func (s *Service) GetBySKU(ctx context.Context, sku string) (Product, error) {
	return s.repo.GetBySKU(ctx, strings.TrimSpace(sku))
}

// Create inserts a new product.
func (s *Service) Create(ctx context.Context, input Input) (Product, error) {
	if err := validateInput(&input); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, input)
}

// Update replaces the writable fields of a product.
func (s *Service) Update(ctx context.Context, id int64, input Input) error {
	if err := validateInput(&input); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, input)
}

// SetActive toggles the active flag. Products referenced by past sales are
// never deleted, only deactivated.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

func validateInput(input *Input) error {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	input.Barcode = strings.TrimSpace(input.Barcode)
	if input.SKU == "" {
		return fmt.Errorf("%w: sku required", httpx.ErrValidation)
	}
	if input.Name == "" {
		return fmt.Errorf("%w: name required", httpx.ErrValidation)
	}
	if input.Price.IsNegative() || input.Cost.IsNegative() {
		return fmt.Errorf("%w: price and cost must not be negative", httpx.ErrValidation)
	}
	if input.ReorderLevel < 0 {
		return fmt.Errorf("%w: reorder level must not be negative", httpx.ErrValidation)
	}
	return nil
}
