package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/cart"
)

type CartHandler struct {
	Cart *cart.Aggregator
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Get("/cart", h.get)
		r.Post("/cart", h.add)
		r.Put("/cart", h.setQuantity)
		r.Delete("/cart", h.remove)
	})
}

type cartReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	snap, err := h.Cart.Snapshot(ctx, s.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	var req cartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeErr(w, apperr.New(apperr.KindValidation, "product_id and qty are required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Cart.Add(ctx, s.UserID, req.ProductID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	h.respondSnapshot(ctx, w, s.UserID)
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	var req cartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeErr(w, apperr.New(apperr.KindValidation, "product_id and qty are required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Cart.SetQuantity(ctx, s.UserID, req.ProductID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	h.respondSnapshot(ctx, w, s.UserID)
}

// DELETE /cart?product_id=X removes one line; without the parameter the
// whole cart is cleared.
func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var err error
	if pid := r.URL.Query().Get("product_id"); pid != "" {
		err = h.Cart.Remove(ctx, s.UserID, pid)
	} else {
		err = h.Cart.Clear(ctx, s.UserID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	h.respondSnapshot(ctx, w, s.UserID)
}

func (h *CartHandler) respondSnapshot(ctx context.Context, w http.ResponseWriter, userID string) {
	snap, err := h.Cart.Snapshot(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
