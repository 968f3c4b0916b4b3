package storage

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// CartStorage persists full cart snapshots under an identity key.
type CartStorage interface {
	Load(ctx context.Context, key string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, key string) error
}

var ErrCartNotFound = errors.New("cart not found")
