package products

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/catalog/shared"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var items []Product
	for _, p := range r.products {
		items = append(items, p)
	}
	return items, len(items), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	return p, nil
}

func (r *memoryRepo) GetBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: product sku %q", httpx.ErrNotFound, sku)
}

func (r *memoryRepo) Create(ctx context.Context, input Input) (Product, error) {
	for _, p := range r.products {
		if p.SKU == input.SKU {
			return Product{}, &httpx.ConflictError{Field: "sku", Value: input.SKU}
		}
		if input.Barcode != "" && p.Barcode == input.Barcode {
			return Product{}, &httpx.ConflictError{Field: "barcode", Value: input.Barcode}
		}
	}
	r.nextID++
	p := Product{
		ID: r.nextID, SKU: input.SKU, Barcode: input.Barcode, Name: input.Name,
		CategoryID: input.CategoryID, Price: input.Price, Cost: input.Cost,
		ReorderLevel: input.ReorderLevel, Active: true,
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input Input) error {
	p, ok := r.products[id]
	if !ok {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	p.SKU, p.Barcode, p.Name = input.SKU, input.Barcode, input.Name
	p.Price, p.Cost, p.ReorderLevel = input.Price, input.Cost, input.ReorderLevel
	r.products[id] = p
	return nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	p, ok := r.products[id]
	if !ok {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, id)
	}
	p.Active = active
	r.products[id] = p
	return nil
}

func TestCreateValidatesAndTrims(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	p, err := svc.Create(ctx, Input{SKU: "  PARA-500 ", Name: " Paracetamol 500mg ", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.Equal(t, "PARA-500", p.SKU)
	require.Equal(t, "Paracetamol 500mg", p.Name)

	_, err = svc.Create(ctx, Input{Name: "No SKU"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, Input{SKU: "X", Name: "Neg", Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDuplicateSKUConflict(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{SKU: "PARA-500", Name: "Paracetamol"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, Input{SKU: "PARA-500", Name: "Paracetamol again"})
	require.ErrorIs(t, err, httpx.ErrConflict)

	var conflict *httpx.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "sku", conflict.Field)
	require.Equal(t, "PARA-500", conflict.Value)
}

func TestDeactivateKeepsProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, Input{SKU: "AMOX-250", Name: "Amoxicillin"})
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, p.ID, false))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}
