// Package customers manages customer master data. The balance column is the
// customer's receivable ledger balance, maintained by the ledger module.
package customers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/catalog/shared"
	"github.com/pharmadesk/pharmadesk/internal/platform/db"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Customer is a sales counterparty. A positive balance is an outstanding
// receivable: credit sales raise it, payments bring it back down.
type Customer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Input carries the writable customer fields.
type Input struct {
	Name           string
	Phone          string
	Address        string
	OpeningBalance decimal.Decimal
}

// Repository abstracts customer persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, input Input) (Customer, error)
	Update(ctx context.Context, id int64, input Input) error
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, name, COALESCE(phone, ''), COALESCE(address, ''), opening_balance::text, balance::text, active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM customers WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		cond := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR phone ILIKE $` + strconv.Itoa(argCount) + `)`
		query += cond
		countQuery += cond
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.Active != nil {
		argCount++
		cond := ` AND active = $` + strconv.Itoa(argCount)
		query += cond
		countQuery += cond
		args = append(args, *filters.Active)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + shared.SortOrder(filters.SortBy, filters.SortDir, "name", "balance", "created_at")
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: customer %d", httpx.ErrNotFound, id)
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, input Input) (Customer, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO customers (name, phone, address, opening_balance, balance, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4, TRUE, NOW(), NOW()) RETURNING id`,
		input.Name, nullableString(input.Phone), nullableString(input.Address), input.OpeningBalance.String()).Scan(&id)
	if db.IsUniqueViolation(err) {
		return Customer{}, &httpx.ConflictError{Field: "phone", Value: input.Phone}
	}
	if err != nil {
		return Customer{}, err
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, id int64, input Input) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET name = $2, phone = $3, address = $4, updated_at = NOW() WHERE id = $1`,
		id, input.Name, nullableString(input.Phone), nullableString(input.Address))
	if db.IsUniqueViolation(err) {
		return &httpx.ConflictError{Field: "phone", Value: input.Phone}
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d", httpx.ErrNotFound, id)
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d", httpx.ErrNotFound, id)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (Customer, error) {
	var c Customer
	var opening, balance string
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &opening, &balance, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Customer{}, err
	}
	var err error
	if c.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return Customer{}, err
	}
	if c.Balance, err = decimal.NewFromString(balance); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// Service validates customer operations.
type Service struct {
	repo Repository
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, input Input) (Customer, error) {
	if err := validateInput(&input); err != nil {
		return Customer{}, err
	}
	return s.repo.Create(ctx, input)
}

func (s *Service) Update(ctx context.Context, id int64, input Input) error {
	if err := validateInput(&input); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, input)
}

func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

func validateInput(input *Input) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	if input.Name == "" {
		return fmt.Errorf("%w: customer name required", httpx.ErrValidation)
	}
	return nil
}
