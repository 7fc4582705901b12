// Package catalog aggregates the master data handlers under one mount point.
package catalog

import (
	"github.com/go-chi/chi/v5"

	"github.com/pharmadesk/pharmadesk/internal/catalog/categories"
	"github.com/pharmadesk/pharmadesk/internal/catalog/customers"
	"github.com/pharmadesk/pharmadesk/internal/catalog/products"
	"github.com/pharmadesk/pharmadesk/internal/catalog/suppliers"
)

// Handler bundles the catalog sub-handlers.
type Handler struct {
	Products   *products.Handler
	Categories *categories.Handler
	Suppliers  *suppliers.Handler
	Customers  *customers.Handler
}

// NewHandler constructs the aggregate handler.
func NewHandler(p *products.Handler, cat *categories.Handler, s *suppliers.Handler, cust *customers.Handler) *Handler {
	return &Handler{Products: p, Categories: cat, Suppliers: s, Customers: cust}
}

// MountRoutes mounts every catalog entity under its own prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", h.Products.MountRoutes)
	r.Route("/categories", h.Categories.MountRoutes)
	r.Route("/suppliers", h.Suppliers.MountRoutes)
	r.Route("/customers", h.Customers.MountRoutes)
}
