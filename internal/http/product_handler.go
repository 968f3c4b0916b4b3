package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Products interface {
	ListProducts(ctx context.Context, f catalog.Filter) ([]domain.Product, error)
	Categories(ctx context.Context) ([]string, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	Count(ctx context.Context) (int, error)
}

type ProductHandler struct {
	products Products
	logger   *zap.Logger
}

func NewProductHandler(products Products, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

type ProductListDTO struct {
	Products []domain.Product `json:"products"`
	Count    int              `json:"count"`
}

type CreateProductRequestDTO struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
}

// GET /api/v1/products?search=&category=&price_range=&sort=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	priceRange, err := catalog.ParsePriceRange(q.Get("price_range"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_price_range", err.Error())
		return
	}
	sortKey, err := catalog.ParseSortKey(q.Get("sort"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_sort", err.Error())
		return
	}

	products, err := h.products.ListProducts(r.Context(), catalog.Filter{
		SearchTerm: q.Get("search"),
		Category:   q.Get("category"),
		PriceRange: priceRange,
		SortKey:    sortKey,
	})
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load products")
		return
	}

	respondJSON(w, http.StatusOK, ProductListDTO{Products: products, Count: len(products)})
}

// GET /api/v1/products/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.products.Categories(r.Context())
	if err != nil {
		h.logger.Error("list categories failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load categories")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"categories": append([]string{catalog.AllCategories}, categories...)})
}

// GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "product_not_found", "product not found")
			return
		}
		h.logger.Error("get product failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load product")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// POST /api/v1/admin/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.products.CreateProduct(r.Context(), domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidProduct) {
			respondError(w, http.StatusBadRequest, "invalid_product", err.Error())
			return
		}
		h.logger.Error("create product failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create product")
		return
	}
	respondJSON(w, http.StatusCreated, p)
}
