package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/auth"
	"github.com/woolstore/storefront/internal/orders"
	"github.com/woolstore/storefront/internal/redisx"
)

// OrderService is the order surface the handler needs; satisfied by
// *orders.Service.
type OrderService interface {
	Create(ctx context.Context, orderID, customerID string, lines []orders.LineInput) (orders.Order, error)
	Cancel(ctx context.Context, orderID string) (orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error)
	Get(ctx context.Context, orderID string) (orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]orders.Order, error)
}

type OrdersHandler struct {
	Service OrderService
	Redis   *redis.Client // optional status cache
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Post("/orders", h.create)
		r.Get("/orders", h.list)
		r.Get("/orders/{id}", h.get)
		r.Post("/orders/{id}/cancel", h.cancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Post("/orders/{id}/status", h.updateStatus)
		r.Get("/admin/orders/{id}/status", h.getStatus)
	})
}

type createOrderReq struct {
	CustomerID string             `json:"customer_id"`
	Lines      []orders.LineInput `json:"lines"`
}

// create mints the order id once and retries transient failures a
// bounded number of times; reservations and the insert are idempotent
// on that id, so a retry can never double-reserve.
func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "invalid json"))
		return
	}

	// Customers order for themselves; only admins may place an order on
	// another customer's behalf.
	customerID := req.CustomerID
	if s.Role != auth.RoleAdmin || customerID == "" {
		customerID = s.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	orderID := uuid.NewString()
	var (
		o   orders.Order
		err error
	)
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(200 * time.Millisecond)
		}
		o, err = h.Service.Create(ctx, orderID, customerID, req.Lines)
		if err == nil || !apperr.Retryable(err) || ctx.Err() != nil {
			// a cancelled request classifies as transient but must not
			// burn further attempts on a client that is gone
			break
		}
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		out []orders.Order
		err error
	)
	if s.Role == auth.RoleAdmin {
		out, err = h.Service.List(ctx)
	} else {
		out, err = h.Service.ListByCustomer(ctx, s.UserID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.Role != auth.RoleAdmin && o.CustomerID != s.UserID {
		// hide other customers' orders entirely
		writeErr(w, apperr.New(apperr.KindNotFound, "order not found: %s", o.ID))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if s.Role != auth.RoleAdmin {
		o, err := h.Service.Get(ctx, id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if o.CustomerID != s.UserID {
			writeErr(w, apperr.New(apperr.KindNotFound, "order not found: %s", id))
			return
		}
	}

	o, err := h.Service.Cancel(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
	// present only to reject modification attempts explicitly
	Lines      json.RawMessage `json:"lines,omitempty"`
	CustomerID string          `json:"customer_id,omitempty"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "invalid json"))
		return
	}
	if len(req.Lines) > 0 || req.CustomerID != "" {
		writeErr(w, apperr.New(apperr.KindValidation, "lines and customer are immutable after creation"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

// getStatus serves the status from Redis when cached, falling back to
// the store and re-priming the cache.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, id)
		if v, err := h.Redis.Get(ctx, key).Result(); err == nil && v != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(v))
			return
		}
	}

	o, err := h.Service.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(map[string]any{"status": o.Status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
