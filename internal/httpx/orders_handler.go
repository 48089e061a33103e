package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/integrahub/orderflow/internal/orders"
	"github.com/integrahub/orderflow/internal/reconcile"
	"github.com/integrahub/orderflow/internal/redisx"
)

type OrdersHandler struct {
	Repo  *orders.Repo
	Recon *reconcile.Ops
	Redis *redis.Client
}

type CreateOrderReq struct {
	CustomerName string `json:"customer_name"`
	Cedula       string `json:"cedula"`
	ProductID    int64  `json:"product_id"`
	Quantity     int    `json:"quantity"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/{id}/invoice", h.invoice)
	r.Post("/orders/{id}/republish", h.republishOne)
	r.Post("/orders/republish-created", h.republishStuck)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CustomerName == "" || req.ProductID <= 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}
	if req.Cedula == "" {
		req.Cedula = "N/A"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	product, err := h.Repo.GetProduct(ctx, req.ProductID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	o := orders.Order{
		CustomerName: req.CustomerName,
		Cedula:       req.Cedula,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		TotalAmount:  product.Price * float64(req.Quantity),
		Status:       orders.StatusCreated,
	}
	if err := h.Repo.CreateOrder(ctx, &o); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.Recon.Enqueue(ctx, o); err != nil {
		// The order is durable either way; FAILED_QUEUE keeps it visible for
		// the republish recovery path.
		_ = h.Repo.SetStatus(ctx, o.ID, orders.StatusFailedQueue)
		o.Status = orders.StatusFailedQueue
		writeError(w, http.StatusServiceUnavailable, "could not enqueue order; retry later via republish")
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	out, err := h.Repo.ListOrders(ctx, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves from the Redis cache when the consumer has kept it
// warm, falling back to the store.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": s})
		return
	}

	o, err := h.Repo.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.cacheStatus(ctx, id, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": o.Status})
}

func (h *OrdersHandler) republishOne(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	err := h.Recon.ReenqueueOne(ctx, id)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, reconcile.ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.cacheStatus(ctx, id, orders.StatusCreated)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order_id": id})
	}
}

func (h *OrdersHandler) republishStuck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	republished, total, err := h.Recon.ReenqueueAll(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"republished": republished, "total": total})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, id int64, st orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	_ = h.Redis.Set(ctx, key, string(st), redisx.TTLStatusCache).Err()
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return def
}
