package hr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// TxRepository exposes the transactional payroll operations together with a
// ledger store bound to the same transaction.
type TxRepository interface {
	GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error)
	InsertSalaryPayment(ctx context.Context, payment SalaryPayment) (int64, error)

	Ledger() ledger.TxStore
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const employeeColumns = `id, name, COALESCE(phone, ''), monthly_salary::text, active, created_at`

// CreateEmployee inserts a new employee.
func (r *Repository) CreateEmployee(ctx context.Context, input EmployeeInput) (Employee, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO employees (name, phone, monthly_salary, active, created_at)
VALUES ($1, NULLIF($2, ''), $3, TRUE, NOW())
RETURNING `+employeeColumns, input.Name, input.Phone, input.MonthlySalary.String())
	return scanEmployee(row)
}

// GetEmployee returns one employee.
func (r *Repository) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	employee, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	return employee, err
}

// ListEmployees returns employees, active first.
func (r *Repository) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY active DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var employees []Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

// UpdateEmployee replaces the writable fields.
func (r *Repository) UpdateEmployee(ctx context.Context, id int64, input EmployeeInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE employees SET name = $2, phone = NULLIF($3, ''), monthly_salary = $4 WHERE id = $1`,
		id, input.Name, input.Phone, input.MonthlySalary.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	return nil
}

// SetEmployeeActive toggles the active flag.
func (r *Repository) SetEmployeeActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE employees SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	return nil
}

// UpsertAttendance records one employee day, replacing an earlier status for
// the same date.
func (r *Repository) UpsertAttendance(ctx context.Context, att Attendance) (Attendance, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO attendance (employee_id, att_date, status, note)
VALUES ($1, $2, $3, NULLIF($4, ''))
ON CONFLICT (employee_id, att_date) DO UPDATE SET status = EXCLUDED.status, note = EXCLUDED.note
RETURNING id, employee_id, att_date, status, COALESCE(note, '')`,
		att.EmployeeID, att.Date, att.Status, att.Note)
	var saved Attendance
	err := row.Scan(&saved.ID, &saved.EmployeeID, &saved.Date, &saved.Status, &saved.Note)
	return saved, err
}

// ListAttendance returns one employee's records inside the window, oldest
// first.
func (r *Repository) ListAttendance(ctx context.Context, employeeID int64, from, to time.Time) ([]Attendance, error) {
	query := `SELECT id, employee_id, att_date, status, COALESCE(note, '') FROM attendance WHERE employee_id = $1`
	args := []any{employeeID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND att_date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND att_date <= $%d", len(args))
	}
	query += " ORDER BY att_date"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Attendance
	for rows.Next() {
		var att Attendance
		if err := rows.Scan(&att.ID, &att.EmployeeID, &att.Date, &att.Status, &att.Note); err != nil {
			return nil, err
		}
		records = append(records, att)
	}
	return records, rows.Err()
}

// ListSalaryPayments returns payouts for one employee, newest first.
func (r *Repository) ListSalaryPayments(ctx context.Context, employeeID int64) ([]SalaryPayment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, employee_id, account_id, amount::text, period, COALESCE(note, ''), created_at
FROM salary_payments WHERE employee_id = $1 ORDER BY id DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []SalaryPayment
	for rows.Next() {
		var payment SalaryPayment
		var amount string
		if err := rows.Scan(&payment.ID, &payment.Code, &payment.EmployeeID, &payment.AccountID,
			&amount, &payment.Period, &payment.Note, &payment.CreatedAt); err != nil {
			return nil, err
		}
		if payment.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Ledger() ledger.TxStore {
	return ledger.NewPgTxStore(t.tx)
}

func (t *txRepo) GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1 FOR UPDATE`, id)
	employee, err := scanEmployee(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	return employee, err
}

func (t *txRepo) InsertSalaryPayment(ctx context.Context, payment SalaryPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO salary_payments (code, employee_id, account_id, amount, period, note, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NOW()) RETURNING id`,
		payment.Code, payment.EmployeeID, payment.AccountID, payment.Amount.String(),
		payment.Period, payment.Note).Scan(&id)
	return id, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (Employee, error) {
	var employee Employee
	var salary string
	if err := row.Scan(&employee.ID, &employee.Name, &employee.Phone, &salary, &employee.Active, &employee.CreatedAt); err != nil {
		return Employee{}, err
	}
	var err error
	if employee.MonthlySalary, err = decimal.NewFromString(salary); err != nil {
		return Employee{}, err
	}
	return employee, nil
}
