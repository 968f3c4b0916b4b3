package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/records"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Repository reads and writes the products table.
type Repository struct {
	store records.Store
}

func NewRepository(store records.Store) *Repository {
	return &Repository{store: store}
}

// GetAllProducts returns products in creation order.
func (r *Repository) GetAllProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.store.Select(ctx, records.TableProducts, nil, records.Asc("created_at"), records.Asc("id"))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := productFromRow(row)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	rows, err := r.store.Select(ctx, records.TableProducts, records.Filter{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrProductNotFound
	}

	p, err := productFromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	row, err := r.store.Insert(ctx, records.TableProducts, records.Row{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"category":    p.Category,
		"image_url":   p.ImageURL,
		"price":       p.Price,
		"created_at":  p.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	created, err := productFromRow(row)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func productFromRow(row records.Row) (domain.Product, error) {
	p := domain.Product{
		ID:          row.String("id"),
		Name:        row.String("name"),
		Description: row.String("description"),
		Category:    row.String("category"),
		ImageURL:    row.String("image_url"),
	}

	var err error
	if p.Price, err = row.Decimal("price"); err != nil {
		return p, fmt.Errorf("product %s: %w", p.ID, err)
	}
	if p.Price.LessThan(decimal.Zero) {
		return p, fmt.Errorf("product %s: negative price", p.ID)
	}
	if p.CreatedAt, err = row.Time("created_at"); err != nil {
		return p, fmt.Errorf("product %s: %w", p.ID, err)
	}
	return p, nil
}
