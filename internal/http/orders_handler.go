package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Orders interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	ListAll(ctx context.Context) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error)
}

type OrdersHandler struct {
	orders Orders
	logger *zap.Logger
}

func NewOrdersHandler(orders Orders, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, logger: logger}
}

type OrderListDTO struct {
	Orders []*domain.Order `json:"orders"`
	Count  int             `json:"count"`
}

type UpdateStatusRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListByUser(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		h.logger.Error("list orders failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load orders")
		return
	}
	respondJSON(w, http.StatusOK, OrderListDTO{Orders: list, Count: len(list)})
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}
	// other users' orders are indistinguishable from missing ones
	if o.UserID != principalFrom(r.Context()).UserID {
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// GET /api/v1/admin/orders
func (h *OrdersHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListAll(r.Context())
	if err != nil {
		h.logger.Error("list all orders failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load orders")
		return
	}

	if status := domain.OrderStatus(r.URL.Query().Get("status")); status != "" {
		filtered := make([]*domain.Order, 0, len(list))
		for _, o := range list {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		list = filtered
	}
	respondJSON(w, http.StatusOK, OrderListDTO{Orders: list, Count: len(list)})
}

// PATCH /api/v1/admin/orders/{id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	h.logger.Info("order status updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("by", principalFrom(r.Context()).UserID))
	respondJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, orders.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	default:
		h.logger.Error("order request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
