package hr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
	"github.com/pharmadesk/pharmadesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateEmployee(ctx context.Context, input EmployeeInput) (Employee, error)
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	UpdateEmployee(ctx context.Context, id int64, input EmployeeInput) error
	SetEmployeeActive(ctx context.Context, id int64, active bool) error
	UpsertAttendance(ctx context.Context, att Attendance) (Attendance, error)
	ListAttendance(ctx context.Context, employeeID int64, from, to time.Time) ([]Attendance, error)
	ListSalaryPayments(ctx context.Context, employeeID int64) ([]SalaryPayment, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates payroll operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics *observability.Metrics
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// CreateEmployee registers a staff member.
func (s *Service) CreateEmployee(ctx context.Context, input EmployeeInput) (Employee, error) {
	if err := validateEmployee(&input); err != nil {
		return Employee{}, err
	}
	employee, err := s.repo.CreateEmployee(ctx, input)
	if err != nil {
		return Employee{}, err
	}
	s.recordAudit(ctx, "hr:employee_create", "employee", employee.ID, map[string]any{"name": employee.Name})
	return employee, nil
}

// Employee returns one employee.
func (s *Service) Employee(ctx context.Context, id int64) (Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

// Employees lists all employees.
func (s *Service) Employees(ctx context.Context) ([]Employee, error) {
	return s.repo.ListEmployees(ctx)
}

// UpdateEmployee replaces the writable fields.
func (s *Service) UpdateEmployee(ctx context.Context, id int64, input EmployeeInput) error {
	if err := validateEmployee(&input); err != nil {
		return err
	}
	return s.repo.UpdateEmployee(ctx, id, input)
}

// SetActive toggles the active flag.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	if err := s.repo.SetEmployeeActive(ctx, id, active); err != nil {
		return err
	}
	s.recordAudit(ctx, "hr:employee_set_active", "employee", id, map[string]any{"active": active})
	return nil
}

// RecordAttendance stores one employee day, replacing an earlier entry for
// the same date.
func (s *Service) RecordAttendance(ctx context.Context, att Attendance) (Attendance, error) {
	if att.EmployeeID <= 0 {
		return Attendance{}, fmt.Errorf("%w: employee id required", httpx.ErrValidation)
	}
	if !att.Status.Valid() {
		return Attendance{}, fmt.Errorf("%w: unknown attendance status %q", httpx.ErrValidation, att.Status)
	}
	if att.Date.IsZero() {
		att.Date = time.Now()
	}
	att.Date = att.Date.Truncate(24 * time.Hour)
	if _, err := s.repo.GetEmployee(ctx, att.EmployeeID); err != nil {
		return Attendance{}, err
	}
	return s.repo.UpsertAttendance(ctx, att)
}

// Attendance lists one employee's records inside the window.
func (s *Service) Attendance(ctx context.Context, employeeID int64, from, to time.Time) ([]Attendance, error) {
	return s.repo.ListAttendance(ctx, employeeID, from, to)
}

// PaySalary records a payout and debits the paying account in the same
// transaction. A zero amount defaults to the employee's monthly salary.
func (s *Service) PaySalary(ctx context.Context, input PaySalaryInput) (*SalaryPayment, error) {
	if input.EmployeeID <= 0 || input.AccountID <= 0 {
		return nil, fmt.Errorf("%w: employee and account required", httpx.ErrValidation)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", httpx.ErrValidation)
	}
	period := strings.TrimSpace(input.Period)
	if period == "" {
		period = time.Now().Format("2006-01")
	} else if _, err := time.Parse("2006-01", period); err != nil {
		return nil, fmt.Errorf("%w: period must be YYYY-MM", httpx.ErrValidation)
	}

	payment := SalaryPayment{
		Code:       "SLR-" + uuid.NewString(),
		EmployeeID: input.EmployeeID,
		AccountID:  input.AccountID,
		Amount:     input.Amount,
		Period:     period,
		Note:       input.Note,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		employee, err := tx.GetEmployeeForUpdate(ctx, input.EmployeeID)
		if err != nil {
			return err
		}
		if !employee.Active {
			return fmt.Errorf("%w: employee %d", ErrEmployeeInactive, employee.ID)
		}
		if payment.Amount.IsZero() {
			payment.Amount = employee.MonthlySalary
		}
		if !payment.Amount.IsPositive() {
			return fmt.Errorf("%w: employee %d has no salary configured", httpx.ErrValidation, employee.ID)
		}

		id, err := tx.InsertSalaryPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id

		_, err = ledger.Post(ctx, tx.Ledger(), ledger.PostInput{
			OwnerKind:   ledger.OwnerAccount,
			OwnerID:     payment.AccountID,
			Debit:       payment.Amount,
			Description: "salary " + payment.Period + " " + payment.Code,
			RefType:     "salary_payment",
			RefID:       id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LedgerPostings.WithLabelValues(string(ledger.OwnerAccount)).Inc()
	}
	s.recordAudit(ctx, "hr:pay_salary", "salary_payment", payment.ID, map[string]any{
		"employee_id": payment.EmployeeID,
		"amount":      payment.Amount.String(),
		"period":      payment.Period,
	})
	return &payment, nil
}

// SalaryPayments lists payouts for one employee.
func (s *Service) SalaryPayments(ctx context.Context, employeeID int64) ([]SalaryPayment, error) {
	return s.repo.ListSalaryPayments(ctx, employeeID)
}

func validateEmployee(input *EmployeeInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	if input.Name == "" {
		return fmt.Errorf("%w: name required", httpx.ErrValidation)
	}
	if input.MonthlySalary.IsNegative() {
		return fmt.Errorf("%w: monthly salary must not be negative", httpx.ErrValidation)
	}
	return nil
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
