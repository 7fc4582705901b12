package importer

import (
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

const maxImportBytes = 10 << 20

// Handler exposes the bulk import endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers the import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.importProducts)
}

func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	defer func() { _ = body.Close() }()

	var rows []Row
	var err error
	switch importFormat(r) {
	case "csv":
		rows, err = ParseCSV(body)
	case "json":
		rows, err = ParseJSON(body)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Unsupported Format", "use Content-Type text/csv or application/json, or a format query parameter")
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(rows) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Empty Import", "file contains no rows")
		return
	}
	result := h.service.Import(r.Context(), rows)
	httpx.JSON(w, http.StatusOK, result)
}

func importFormat(r *http.Request) string {
	if format := strings.ToLower(r.URL.Query().Get("format")); format != "" {
		return format
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mediaType {
	case "text/csv":
		return "csv"
	case "application/json":
		return "json"
	}
	return ""
}
