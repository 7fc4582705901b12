package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pharmadesk/pharmadesk/internal/catalog"
	"github.com/pharmadesk/pharmadesk/internal/hr"
	"github.com/pharmadesk/pharmadesk/internal/importer"
	"github.com/pharmadesk/pharmadesk/internal/inventory"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/purchases"
	"github.com/pharmadesk/pharmadesk/internal/reports"
	"github.com/pharmadesk/pharmadesk/internal/sales"
	"github.com/pharmadesk/pharmadesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	InventoryHandler *inventory.Handler
	CatalogHandler   *catalog.Handler
	SalesHandler     *sales.Handler
	PurchasesHandler *purchases.Handler
	ReportsHandler   *reports.Handler
	ImportHandler    *importer.Handler
	HRHandler        *hr.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with PharmaDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/sales", params.SalesHandler.MountRoutes)
	r.Route("/purchases", params.PurchasesHandler.MountRoutes)
	r.Route("/reports", params.ReportsHandler.MountRoutes)
	r.Route("/import", params.ImportHandler.MountRoutes)
	r.Route("/hr", params.HRHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
