package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/analytics"
	"github.com/fjod/storefront/internal/reconcile"
	"go.uber.org/zap"
)

type Reconciler interface {
	Audit(ctx context.Context) ([]reconcile.Drift, error)
	Apply(ctx context.Context, drifts []reconcile.Drift) (reconcile.Result, error)
	Policy() reconcile.Policy
}

type AdminHandler struct {
	orders     Orders
	products   Products
	reconciler Reconciler
	logger     *zap.Logger
	now        func() time.Time
}

func NewAdminHandler(orders Orders, products Products, reconciler Reconciler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		orders:     orders,
		products:   products,
		reconciler: reconciler,
		logger:     logger,
		now:        time.Now,
	}
}

type AuditResponseDTO struct {
	Policy reconcile.Policy  `json:"policy"`
	Drifts []reconcile.Drift `json:"drifts"`
	Count  int               `json:"count"`
}

type ApplyResponseDTO struct {
	Policy reconcile.Policy `json:"policy"`
	reconcile.Result
}

// GET /api/v1/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	all, err := h.orders.ListAll(r.Context())
	if err != nil {
		h.logger.Error("dashboard orders failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load orders")
		return
	}
	count, err := h.products.Count(r.Context())
	if err != nil {
		h.logger.Error("dashboard products failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load products")
		return
	}

	respondJSON(w, http.StatusOK, analytics.Dashboard(all, count, h.now()))
}

// GET /api/v1/admin/reconcile
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.reconciler.Audit(r.Context())
	if err != nil {
		h.logger.Error("audit failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "audit failed")
		return
	}
	if drifts == nil {
		drifts = []reconcile.Drift{}
	}
	respondJSON(w, http.StatusOK, AuditResponseDTO{
		Policy: h.reconciler.Policy(),
		Drifts: drifts,
		Count:  len(drifts),
	})
}

// POST /api/v1/admin/reconcile
func (h *AdminHandler) Apply(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.reconciler.Audit(r.Context())
	if err != nil {
		h.logger.Error("audit failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "audit failed")
		return
	}

	res, err := h.reconciler.Apply(r.Context(), drifts)
	if err != nil {
		h.logger.Error("reconcile apply failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "reconciliation failed")
		return
	}

	h.logger.Info("reconciliation applied",
		zap.String("by", principalFrom(r.Context()).UserID),
		zap.Int("corrected", len(res.Corrected)),
		zap.Int("flagged", len(res.Flagged)))
	respondJSON(w, http.StatusOK, ApplyResponseDTO{Policy: h.reconciler.Policy(), Result: res})
}
