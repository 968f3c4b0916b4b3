package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

// CachedStorage keeps carts in a durable primary store and fronts reads with
// a cache. Writes go to the primary first, then invalidate the cache entry.
type CachedStorage struct {
	primary CartStorage
	cache   CartStorage
	logger  *zap.Logger
}

func NewCachedStorage(primary, cache CartStorage, logger *zap.Logger) *CachedStorage {
	return &CachedStorage{
		primary: primary,
		cache:   cache,
		logger:  logger,
	}
}

func (s *CachedStorage) Load(ctx context.Context, key string) (*domain.Cart, error) {
	cart, err := s.cache.Load(ctx, key)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		s.logger.Warn("cart cache load failed", zap.String("key", key), zap.Error(err))
	}

	cart, err = s.primary.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	go func() {
		setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if errSet := s.cache.Save(setCtx, cart); errSet != nil {
			s.logger.Warn("cart cache fill failed", zap.String("key", key), zap.Error(errSet))
		}
	}()

	return cart, nil
}

func (s *CachedStorage) Save(ctx context.Context, cart *domain.Cart) error {
	if err := s.primary.Save(ctx, cart); err != nil {
		return err
	}
	s.invalidate(ctx, cart.Key)
	return nil
}

func (s *CachedStorage) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *CachedStorage) invalidate(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("cart cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
