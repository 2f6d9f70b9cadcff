package reporthttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the reporting API under the given router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/inventory/{productID}", h.handleInventory)
		r.Get("/aging", h.handleAging)
		r.Get("/profit/products", h.handleProfitByProduct)
		r.Get("/profit/monthly", h.handleProfitByMonth)
		r.Get("/profit/sales/{saleID}", h.handleProfitBySale)
	})
}
