package importer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/catalog/products"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

type fakeCreator struct {
	created []products.Input
	seen    map[string]bool
}

func (f *fakeCreator) Create(ctx context.Context, input products.Input) (products.Product, error) {
	if input.SKU == "" {
		return products.Product{}, httpx.ErrValidation
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[input.SKU] {
		return products.Product{}, &httpx.ConflictError{Field: "sku", Value: input.SKU}
	}
	f.seen[input.SKU] = true
	f.created = append(f.created, input)
	return products.Product{ID: int64(len(f.created)), SKU: input.SKU, Name: input.Name}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestImportCollectsPerRowErrors(t *testing.T) {
	creator := &fakeCreator{}
	svc := NewService(discardLogger(), creator)

	result := svc.Import(context.Background(), []Row{
		{SKU: "PARA-500", Name: "paracetamol 500mg", Price: decimal.NewFromInt(5)},
		{SKU: "AMOX-250", Name: "amoxicillin 250mg", Price: decimal.NewFromInt(12)},
		{SKU: "PARA-500", Name: "paracetamol duplicate", Price: decimal.NewFromInt(5)},
	})

	require.Equal(t, 2, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 3, result.Errors[0].Row)
	require.Equal(t, "PARA-500", result.Errors[0].SKU)
	require.Contains(t, result.Errors[0].Message, "sku")
}

func TestImportNormalizesNames(t *testing.T) {
	creator := &fakeCreator{}
	svc := NewService(discardLogger(), creator)

	result := svc.Import(context.Background(), []Row{
		{SKU: "IBU-400", Name: "  ibuprofen 400mg  ", Price: decimal.NewFromInt(8)},
	})
	require.Equal(t, 1, result.Success)
	require.Equal(t, "Ibuprofen 400Mg", creator.created[0].Name)
}

func TestImportInvalidRowDoesNotStopOthers(t *testing.T) {
	creator := &fakeCreator{}
	svc := NewService(discardLogger(), creator)

	result := svc.Import(context.Background(), []Row{
		{SKU: "", Name: "missing sku", Price: decimal.NewFromInt(1)},
		{SKU: "OK-1", Name: "fine", Price: decimal.NewFromInt(1)},
	})
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Errors[0].Row)
}

func TestParseCSV(t *testing.T) {
	input := strings.NewReader(`sku,name,price,cost,barcode,reorder_level
PARA-500,Paracetamol 500mg,5.50,3.20,880123,20
AMOX-250,Amoxicillin 250mg,12,8,,10
`)
	rows, err := ParseCSV(input)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "PARA-500", rows[0].SKU)
	require.True(t, rows[0].Price.Equal(decimal.RequireFromString("5.50")))
	require.Equal(t, int64(20), rows[0].ReorderLevel)
	require.Empty(t, rows[1].Barcode)
}

func TestParseCSVRequiresHeader(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("PARA-500,Paracetamol,5\n"))
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = ParseCSV(strings.NewReader("sku,name\nPARA-500,Paracetamol\n"))
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestParseCSVRejectsBadNumbers(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("sku,name,price\nPARA-500,Paracetamol,abc\n"))
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestParseJSON(t *testing.T) {
	input := strings.NewReader(`[{"sku":"PARA-500","name":"Paracetamol","price":"5.5","reorder_level":20}]`)
	rows, err := ParseJSON(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Price.Equal(decimal.RequireFromString("5.5")))

	_, err = ParseJSON(strings.NewReader(`{"not":"an array"}`))
	require.ErrorIs(t, err, httpx.ErrValidation)
}
