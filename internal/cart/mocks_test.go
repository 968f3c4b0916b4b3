package cart

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/cart/storage"
	"github.com/fjod/storefront/internal/domain"
)

type mockStorage struct {
	m       sync.Mutex
	carts   map[string]domain.Cart
	loadErr error
	saveErr error
	loads   int
	saves   int
	deletes int

	// block, when set, is waited on inside Load
	block chan struct{}
}

func newMockStorage() *mockStorage {
	return &mockStorage{carts: make(map[string]domain.Cart)}
}

func (m *mockStorage) Load(ctx context.Context, key string) (*domain.Cart, error) {
	m.m.Lock()
	m.loads++
	block := m.block
	m.m.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	c, ok := m.carts[key]
	if !ok {
		return nil, storage.ErrCartNotFound
	}
	lines := make([]domain.CartLine, len(c.Lines))
	copy(lines, c.Lines)
	c.Lines = lines
	return &c, nil
}

func (m *mockStorage) Save(_ context.Context, c *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.carts[c.Key] = *c
	return nil
}

func (m *mockStorage) Delete(_ context.Context, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	if m.saveErr != nil {
		return m.saveErr
	}
	delete(m.carts, key)
	return nil
}

func (m *mockStorage) stored(key string) (domain.Cart, bool) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[key]
	return c, ok
}

func (m *mockStorage) loadCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.loads
}
