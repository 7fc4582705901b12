package purchases

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

// Handler exposes purchase endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/returns", h.createReturn)
	r.Post("/payments", h.recordPayment)
}

type purchaseItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       int64           `json:"qty" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type createPurchaseRequest struct {
	SupplierID int64                 `json:"supplier_id" validate:"required,gt=0"`
	AccountID  int64                 `json:"account_id" validate:"required,gt=0"`
	Items      []purchaseItemRequest `json:"items" validate:"required,min=1,dive"`
	Paid       decimal.Decimal       `json:"paid"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		SupplierID: req.SupplierID,
		AccountID:  req.AccountID,
		Paid:       req.Paid,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			UnitCost:  item.UnitCost,
		})
	}
	purchase, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create purchase failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	filter.SupplierID, _ = strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	var err error
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if filter.To, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	purchases, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchases failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchases": purchases, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase id must be numeric")
		return
	}
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

type returnItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"required,gt=0"`
}

type createReturnRequest struct {
	Items  []returnItemRequest `json:"items" validate:"required,min=1,dive"`
	Reason string              `json:"reason" validate:"omitempty,max=255"`
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	purchaseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase id must be numeric")
		return
	}
	var req createReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReturnInput{PurchaseID: purchaseID, Reason: req.Reason}
	for _, item := range req.Items {
		input.Items = append(input.Items, ReturnItemInput{ProductID: item.ProductID, Qty: item.Qty})
	}
	ret, err := h.service.Return(r.Context(), input)
	if err != nil {
		h.logger.Error("purchase return failed", slog.Any("error", err), slog.Int64("purchase_id", purchaseID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

type paymentRequest struct {
	SupplierID int64           `json:"supplier_id" validate:"required,gt=0"`
	AccountID  int64           `json:"account_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note" validate:"omitempty,max=255"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := shared.Validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.RecordPayment(r.Context(), PaymentInput{
		SupplierID: req.SupplierID,
		AccountID:  req.AccountID,
		Amount:     req.Amount,
		Note:       req.Note,
	}); err != nil {
		h.logger.Error("supplier payment failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"supplier_id": req.SupplierID,
		"account_id":  req.AccountID,
		"amount":      req.Amount,
	})
}
