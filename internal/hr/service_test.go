package hr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

type memoryRepo struct {
	employees  map[int64]Employee
	attendance map[string]Attendance
	payments   []SalaryPayment
	balances   map[int64]decimal.Decimal
	entries    []ledger.Entry
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		employees:  make(map[int64]Employee),
		attendance: make(map[string]Attendance),
		balances:   make(map[int64]decimal.Decimal),
	}
}

func attKey(employeeID int64, date time.Time) string {
	return fmt.Sprintf("%d:%s", employeeID, date.Format("2006-01-02"))
}

func (r *memoryRepo) snapshot() *memoryRepo {
	clone := newMemoryRepo()
	for k, v := range r.employees {
		clone.employees[k] = v
	}
	for k, v := range r.attendance {
		clone.attendance[k] = v
	}
	for k, v := range r.balances {
		clone.balances[k] = v
	}
	clone.payments = append([]SalaryPayment(nil), r.payments...)
	clone.entries = append([]ledger.Entry(nil), r.entries...)
	clone.nextID = r.nextID
	return clone
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.employees = from.employees
	r.attendance = from.attendance
	r.balances = from.balances
	r.payments = from.payments
	r.entries = from.entries
	r.nextID = from.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryRepo) CreateEmployee(ctx context.Context, input EmployeeInput) (Employee, error) {
	r.nextID++
	employee := Employee{
		ID:            r.nextID,
		Name:          input.Name,
		Phone:         input.Phone,
		MonthlySalary: input.MonthlySalary,
		Active:        true,
	}
	r.employees[employee.ID] = employee
	return employee, nil
}

func (r *memoryRepo) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	employee, ok := r.employees[id]
	if !ok {
		return Employee{}, fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	return employee, nil
}

func (r *memoryRepo) ListEmployees(ctx context.Context) ([]Employee, error) {
	var employees []Employee
	for _, employee := range r.employees {
		employees = append(employees, employee)
	}
	return employees, nil
}

func (r *memoryRepo) UpdateEmployee(ctx context.Context, id int64, input EmployeeInput) error {
	employee, ok := r.employees[id]
	if !ok {
		return fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	employee.Name = input.Name
	employee.Phone = input.Phone
	employee.MonthlySalary = input.MonthlySalary
	r.employees[id] = employee
	return nil
}

func (r *memoryRepo) SetEmployeeActive(ctx context.Context, id int64, active bool) error {
	employee, ok := r.employees[id]
	if !ok {
		return fmt.Errorf("%w: employee %d", httpx.ErrNotFound, id)
	}
	employee.Active = active
	r.employees[id] = employee
	return nil
}

func (r *memoryRepo) UpsertAttendance(ctx context.Context, att Attendance) (Attendance, error) {
	key := attKey(att.EmployeeID, att.Date)
	if existing, ok := r.attendance[key]; ok {
		att.ID = existing.ID
	} else {
		r.nextID++
		att.ID = r.nextID
	}
	r.attendance[key] = att
	return att, nil
}

func (r *memoryRepo) ListAttendance(ctx context.Context, employeeID int64, from, to time.Time) ([]Attendance, error) {
	var records []Attendance
	for _, att := range r.attendance {
		if att.EmployeeID == employeeID {
			records = append(records, att)
		}
	}
	return records, nil
}

func (r *memoryRepo) ListSalaryPayments(ctx context.Context, employeeID int64) ([]SalaryPayment, error) {
	var payments []SalaryPayment
	for _, payment := range r.payments {
		if payment.EmployeeID == employeeID {
			payments = append(payments, payment)
		}
	}
	return payments, nil
}

type memTx struct {
	repo *memoryRepo
}

func (t *memTx) GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error) {
	return t.repo.GetEmployee(ctx, id)
}

func (t *memTx) InsertSalaryPayment(ctx context.Context, payment SalaryPayment) (int64, error) {
	t.repo.nextID++
	payment.ID = t.repo.nextID
	t.repo.payments = append(t.repo.payments, payment)
	return payment.ID, nil
}

func (t *memTx) Ledger() ledger.TxStore {
	return &memLedger{repo: t.repo}
}

type memLedger struct {
	repo *memoryRepo
}

func (l *memLedger) GetBalanceForUpdate(ctx context.Context, kind ledger.OwnerKind, ownerID int64) (decimal.Decimal, error) {
	if kind != ledger.OwnerAccount {
		return decimal.Zero, fmt.Errorf("%w: %s %d", ledger.ErrBalanceNotFound, kind, ownerID)
	}
	bal, ok := l.repo.balances[ownerID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: account %d", ledger.ErrBalanceNotFound, ownerID)
	}
	return bal, nil
}

func (l *memLedger) InsertEntry(ctx context.Context, entry ledger.Entry) (int64, error) {
	l.repo.nextID++
	entry.ID = l.repo.nextID
	l.repo.entries = append(l.repo.entries, entry)
	return entry.ID, nil
}

func (l *memLedger) UpdateBalance(ctx context.Context, kind ledger.OwnerKind, ownerID int64, balance decimal.Decimal) error {
	l.repo.balances[ownerID] = balance
	return nil
}

func seedRepo(t *testing.T) (*memoryRepo, *Service, Employee) {
	t.Helper()
	repo := newMemoryRepo()
	repo.balances[1] = decimal.NewFromInt(1000)
	svc := NewService(repo, nil, nil)
	employee, err := svc.CreateEmployee(context.Background(), EmployeeInput{
		Name:          "Rahim Uddin",
		MonthlySalary: decimal.NewFromInt(300),
	})
	require.NoError(t, err)
	return repo, svc, employee
}

func TestPaySalaryDebitsAccount(t *testing.T) {
	repo, svc, employee := seedRepo(t)

	payment, err := svc.PaySalary(context.Background(), PaySalaryInput{
		EmployeeID: employee.ID,
		AccountID:  1,
		Amount:     decimal.NewFromInt(250),
		Period:     "2026-08",
	})
	require.NoError(t, err)
	require.Equal(t, "2026-08", payment.Period)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(250)))
	require.True(t, repo.balances[1].Equal(decimal.NewFromInt(750)))
	require.Len(t, repo.payments, 1)
	require.Len(t, repo.entries, 1)
	require.True(t, repo.entries[0].Debit.Equal(decimal.NewFromInt(250)))
}

func TestPaySalaryDefaultsToMonthlySalary(t *testing.T) {
	repo, svc, employee := seedRepo(t)

	payment, err := svc.PaySalary(context.Background(), PaySalaryInput{
		EmployeeID: employee.ID,
		AccountID:  1,
	})
	require.NoError(t, err)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(300)))
	require.True(t, repo.balances[1].Equal(decimal.NewFromInt(700)))
}

func TestPaySalaryRollsBackOnUnknownAccount(t *testing.T) {
	repo, svc, employee := seedRepo(t)

	_, err := svc.PaySalary(context.Background(), PaySalaryInput{
		EmployeeID: employee.ID,
		AccountID:  9,
		Amount:     decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, ledger.ErrBalanceNotFound)
	require.Empty(t, repo.payments, "payment row must roll back with the ledger entry")
}

func TestPaySalaryRejectsInactiveEmployee(t *testing.T) {
	_, svc, employee := seedRepo(t)
	require.NoError(t, svc.SetActive(context.Background(), employee.ID, false))

	_, err := svc.PaySalary(context.Background(), PaySalaryInput{
		EmployeeID: employee.ID,
		AccountID:  1,
		Amount:     decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, httpx.ErrState)
}

func TestPaySalaryRejectsBadPeriod(t *testing.T) {
	_, svc, employee := seedRepo(t)

	_, err := svc.PaySalary(context.Background(), PaySalaryInput{
		EmployeeID: employee.ID,
		AccountID:  1,
		Amount:     decimal.NewFromInt(100),
		Period:     "August 2026",
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRecordAttendanceReplacesSameDay(t *testing.T) {
	_, svc, employee := seedRepo(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	first, err := svc.RecordAttendance(ctx, Attendance{EmployeeID: employee.ID, Date: day, Status: AttendancePresent})
	require.NoError(t, err)

	second, err := svc.RecordAttendance(ctx, Attendance{EmployeeID: employee.ID, Date: day, Status: AttendanceLeave})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "same day replaces, not duplicates")
	require.Equal(t, AttendanceLeave, second.Status)

	_, err = svc.RecordAttendance(ctx, Attendance{EmployeeID: employee.ID, Date: day, Status: "late"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.RecordAttendance(ctx, Attendance{EmployeeID: 99, Date: day, Status: AttendancePresent})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
