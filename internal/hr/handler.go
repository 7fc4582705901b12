package hr

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
	"github.com/pharmadesk/pharmadesk/internal/shared"
)

// Handler exposes the payroll endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/employees", h.createEmployee)
	r.Get("/employees", h.listEmployees)
	r.Get("/employees/{id}", h.getEmployee)
	r.Put("/employees/{id}", h.updateEmployee)
	r.Post("/employees/{id}/activate", h.setActive(true))
	r.Post("/employees/{id}/deactivate", h.setActive(false))
	r.Post("/attendance", h.recordAttendance)
	r.Get("/employees/{id}/attendance", h.listAttendance)
	r.Post("/salaries", h.paySalary)
	r.Get("/employees/{id}/salaries", h.listSalaries)
}

type employeeRequest struct {
	Name          string          `json:"name" validate:"required,max=120"`
	Phone         string          `json:"phone" validate:"omitempty,max=32"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	employee, err := h.service.CreateEmployee(r.Context(), EmployeeInput{
		Name:          req.Name,
		Phone:         req.Phone,
		MonthlySalary: req.MonthlySalary,
	})
	if err != nil {
		h.logger.Error("create employee failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, employee)
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.service.Employees(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "employee id must be numeric")
		return
	}
	employee, err := h.service.Employee(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, employee)
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "employee id must be numeric")
		return
	}
	var req employeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateEmployee(r.Context(), id, EmployeeInput{
		Name:          req.Name,
		Phone:         req.Phone,
		MonthlySalary: req.MonthlySalary,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "employee id must be numeric")
			return
		}
		if err := h.service.SetActive(r.Context(), id, active); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
	}
}

type attendanceRequest struct {
	EmployeeID int64  `json:"employee_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status     string `json:"status" validate:"required,oneof=present absent leave"`
	Note       string `json:"note" validate:"omitempty,max=255"`
}

func (h *Handler) recordAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	att := Attendance{
		EmployeeID: req.EmployeeID,
		Status:     AttendanceStatus(req.Status),
		Note:       req.Note,
	}
	if req.Date != "" {
		att.Date, _ = time.Parse("2006-01-02", req.Date)
	}
	saved, err := h.service.RecordAttendance(r.Context(), att)
	if err != nil {
		h.logger.Error("record attendance failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saved)
}

func (h *Handler) listAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "employee id must be numeric")
		return
	}
	q := r.URL.Query()
	var from, to time.Time
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	records, err := h.service.Attendance(r.Context(), id, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"attendance": records})
}

type paySalaryRequest struct {
	EmployeeID int64           `json:"employee_id" validate:"required,gt=0"`
	AccountID  int64           `json:"account_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Period     string          `json:"period" validate:"omitempty,datetime=2006-01"`
	Note       string          `json:"note" validate:"omitempty,max=255"`
}

func (h *Handler) paySalary(w http.ResponseWriter, r *http.Request) {
	var req paySalaryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.PaySalary(r.Context(), PaySalaryInput{
		EmployeeID: req.EmployeeID,
		AccountID:  req.AccountID,
		Amount:     req.Amount,
		Period:     req.Period,
		Note:       req.Note,
	})
	if err != nil {
		h.logger.Error("pay salary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listSalaries(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "employee id must be numeric")
		return
	}
	payments, err := h.service.SalaryPayments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}
