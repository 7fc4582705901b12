// Package importer loads products in bulk from CSV or JSON files. Rows are
// attempted independently so one bad line never blocks the rest of the file.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pharmadesk/pharmadesk/internal/catalog/products"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Row is one product candidate from an import file.
type Row struct {
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost"`
	ReorderLevel int64           `json:"reorder_level"`
}

// RowError describes why a row was rejected.
type RowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku,omitempty"`
	Message string `json:"message"`
}

// Result summarises an import run.
type Result struct {
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors,omitempty"`
}

// ProductCreator inserts catalog products.
type ProductCreator interface {
	Create(ctx context.Context, input products.Input) (products.Product, error)
}

// Service runs bulk imports against the product catalog.
type Service struct {
	logger   *slog.Logger
	products ProductCreator
	titler   cases.Caser
}

// NewService builds a Service.
func NewService(logger *slog.Logger, creator ProductCreator) *Service {
	return &Service{
		logger:   logger,
		products: creator,
		titler:   cases.Title(language.English),
	}
}

// Import attempts every row and collects per-row failures.
func (s *Service) Import(ctx context.Context, rows []Row) Result {
	var result Result
	for i, row := range rows {
		input := products.Input{
			SKU:          strings.TrimSpace(row.SKU),
			Barcode:      strings.TrimSpace(row.Barcode),
			Name:         s.titler.String(strings.TrimSpace(row.Name)),
			Price:        row.Price,
			Cost:         row.Cost,
			ReorderLevel: row.ReorderLevel,
		}
		if _, err := s.products.Create(ctx, input); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{
				Row:     i + 1,
				SKU:     input.SKU,
				Message: err.Error(),
			})
			continue
		}
		result.Success++
	}
	s.logger.Info("product import finished",
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed))
	return result
}

// ParseCSV reads rows from a CSV file. The first record must be a header
// naming at least sku, name and price; column order is free.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing CSV header", httpx.ErrValidation)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"sku", "name", "price"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: CSV header missing %q column", httpx.ErrValidation, required)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", httpx.ErrValidation, line, err)
		}
		row := Row{
			SKU:     field(record, index, "sku"),
			Barcode: field(record, index, "barcode"),
			Name:    field(record, index, "name"),
		}
		if row.Price, err = decimalField(record, index, "price"); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", httpx.ErrValidation, line, err)
		}
		if row.Cost, err = decimalField(record, index, "cost"); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", httpx.ErrValidation, line, err)
		}
		if raw := field(record, index, "reorder_level"); raw != "" {
			if row.ReorderLevel, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: reorder_level must be an integer", httpx.ErrValidation, line)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseJSON reads rows from a JSON array.
func ParseJSON(r io.Reader) ([]Row, error) {
	var rows []Row
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return rows, nil
}

func field(record []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func decimalField(record []string, index map[string]int, name string) (decimal.Decimal, error) {
	raw := field(record, index, name)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a number", name)
	}
	return value, nil
}
