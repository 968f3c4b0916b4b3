package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 30 * time.Second

type ProductRepository interface {
	GetAllProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
}

// Reader serves the product listing. The full list is fetched once per
// cache period and filtered in memory.
type Reader struct {
	repo   ProductRepository
	logger *zap.Logger
	sfg    singleflight.Group // Prevents concurrent full fetches
	ttl    time.Duration

	mu        sync.RWMutex
	products  []domain.Product
	fetchedAt time.Time
}

func NewReader(repo ProductRepository, logger *zap.Logger, ttl time.Duration) *Reader {
	return &Reader{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
	}
}

func (r *Reader) ListProducts(ctx context.Context, f Filter) ([]domain.Product, error) {
	products, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	return Apply(products, f), nil
}

func (r *Reader) Categories(ctx context.Context) ([]string, error) {
	products, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	return Categories(products), nil
}

func (r *Reader) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return r.repo.GetProduct(ctx, id)
}

// Count is the number of products in the catalog.
func (r *Reader) Count(ctx context.Context) (int, error) {
	products, err := r.all(ctx)
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

func (r *Reader) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	created, err := r.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	r.Invalidate()
	r.logger.Info("product created", zap.String("product_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

func (r *Reader) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = nil
	r.fetchedAt = time.Time{}
}

func (r *Reader) all(ctx context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	if r.products != nil && time.Since(r.fetchedAt) < r.ttl {
		products := r.products
		r.mu.RUnlock()
		return products, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.sfg.Do("products", func() (interface{}, error) {
		products, err := r.repo.GetAllProducts(ctx)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []domain.Product{}
		}

		r.mu.Lock()
		r.products = products
		r.fetchedAt = time.Now()
		r.mu.Unlock()
		return products, nil
	})
	if err != nil {
		r.logger.Error("product fetch failed", zap.Error(err))
		return nil, err
	}

	return v.([]domain.Product), nil
}
