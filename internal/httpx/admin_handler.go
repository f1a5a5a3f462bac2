package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/woolstore/storefront/internal/auth"
)

// Customers is the account listing surface; satisfied by *auth.Repo.
type Customers interface {
	ListCustomers(ctx context.Context) ([]auth.User, error)
}

type AdminHandler struct {
	Customers Customers
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/admin/customers", h.listCustomers)
	})
}

func (h *AdminHandler) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	us, err := h.Customers.ListCustomers(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, us)
}
