// Package hr manages employees, attendance and salary payouts. A salary
// payment writes its record and the account ledger debit in one transaction.
package hr

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// AttendanceStatus classifies one day of attendance.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
)

// Valid reports whether the status is known.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLeave:
		return true
	}
	return false
}

// Employee is a staff member on the payroll.
type Employee struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone,omitempty"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EmployeeInput carries the writable employee fields.
type EmployeeInput struct {
	Name          string
	Phone         string
	MonthlySalary decimal.Decimal
}

// Attendance is one employee day.
type Attendance struct {
	ID         int64            `json:"id"`
	EmployeeID int64            `json:"employee_id"`
	Date       time.Time        `json:"date"`
	Status     AttendanceStatus `json:"status"`
	Note       string           `json:"note,omitempty"`
}

// SalaryPayment is a period-stamped payout to an employee.
type SalaryPayment struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	EmployeeID int64           `json:"employee_id"`
	AccountID  int64           `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	Period     string          `json:"period"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PaySalaryInput requests a salary payout. A zero amount pays the employee's
// monthly salary.
type PaySalaryInput struct {
	EmployeeID int64
	AccountID  int64
	Amount     decimal.Decimal
	Period     string
	Note       string
}

// ErrEmployeeInactive rejects payouts to staff that left.
var ErrEmployeeInactive = fmt.Errorf("hr: employee inactive: %w", httpx.ErrState)
