package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxLineQuantity = 99

type Carts interface {
	Open(ctx context.Context, id cart.Identity) (*cart.Store, error)
	MergeGuest(ctx context.Context, sessionID, userID string) (*cart.Store, error)
}

type CartHandler struct {
	carts    Carts
	products Products
	calc     pricing.Calculator
	logger   *zap.Logger
}

func NewCartHandler(carts Carts, products Products, calc pricing.Calculator, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		calc:     calc,
		logger:   logger,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponseDTO struct {
	Key   string            `json:"key"`
	Lines []domain.CartLine `json:"lines"`
	Count int               `json:"count"`
	Total decimal.Decimal   `json:"total"`
}

type QuoteResponseDTO struct {
	pricing.Snapshot
	Display map[string]string `json:"display"`
}

// identityFor picks the user cart for signed-in callers and the guest
// cart otherwise.
func identityFor(p Principal) cart.Identity {
	if p.Authenticated() {
		return cart.UserIdentity(p.UserID)
	}
	return cart.GuestIdentity(p.SessionID)
}

func (h *CartHandler) open(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	store, err := h.carts.Open(r.Context(), identityFor(principalFrom(r.Context())))
	if err != nil {
		if errors.Is(err, cart.ErrNoIdentity) {
			respondError(w, http.StatusBadRequest, "missing_session", "no cart session")
			return nil, false
		}
		h.logger.Error("open cart failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return nil, false
	}
	return store, true
}

func cartResponse(s *cart.Store) CartResponseDTO {
	lines := s.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponseDTO{
		Key:   s.Key(),
		Lines: lines,
		Count: s.Count(),
		Total: s.Total(),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(store))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	// the price comes from the catalog, never from the request
	p, err := h.products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "product_not_found", "product not found")
			return
		}
		h.logger.Error("get product failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load product")
		return
	}

	store, ok := h.open(w, r)
	if !ok {
		return
	}
	store.AddToCart(r.Context(), *p, req.Quantity)

	respondJSON(w, http.StatusCreated, cartResponse(store))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	store, ok := h.open(w, r)
	if !ok {
		return
	}
	store.UpdateQuantity(r.Context(), chi.URLParam(r, "product_id"), req.Quantity)

	respondJSON(w, http.StatusOK, cartResponse(store))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	store.RemoveFromCart(r.Context(), chi.URLParam(r, "product_id"))

	respondJSON(w, http.StatusOK, cartResponse(store))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	store.ClearCart(r.Context())

	respondJSON(w, http.StatusOK, cartResponse(store))
}

// GET /api/v1/cart/quote?promo_code=
func (h *CartHandler) Quote(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}

	q := h.calc.Quote(store.Lines(), r.URL.Query().Get("promo_code"))
	respondJSON(w, http.StatusOK, QuoteResponseDTO{
		Snapshot: q,
		Display: map[string]string{
			"subtotal":        pricing.Display(q.Subtotal),
			"discount_amount": pricing.Display(q.DiscountAmount),
			"shipping_fee":    pricing.Display(q.ShippingFee),
			"grand_total":     pricing.Display(q.GrandTotal),
		},
	})
}
