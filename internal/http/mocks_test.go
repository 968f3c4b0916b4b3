package http

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/cart/storage"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
)

type MockSubmitter struct {
	mu      sync.Mutex
	attempt *checkout.Attempt
	err     error
	reqs    []checkout.Request
}

func (m *MockSubmitter) Submit(_ context.Context, _ checkout.CartSource, req checkout.Request) (*checkout.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	return m.attempt, m.err
}

func (m *MockSubmitter) requests() []checkout.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkout.Request(nil), m.reqs...)
}

type MockCarts struct {
	store *cart.Store
	err   error
}

func (m *MockCarts) Open(context.Context, cart.Identity) (*cart.Store, error) {
	return m.store, m.err
}

func (m *MockCarts) MergeGuest(context.Context, string, string) (*cart.Store, error) {
	return m.store, m.err
}

// MockProvider accepts any token as the session of userID.
type MockProvider struct {
	userID string
	role   auth.Role
	err    error
}

func (m *MockProvider) GetSession(_ context.Context, token string) (*auth.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &auth.Session{User: auth.User{ID: m.userID}, Token: token}, nil
}

func (m *MockProvider) SignIn(context.Context, string, string) (*auth.Session, error) {
	return nil, auth.ErrInvalidCredentials
}

func (m *MockProvider) SignUp(context.Context, string, string) (*auth.User, error) {
	return nil, auth.ErrEmailTaken
}

func (m *MockProvider) SignOut(context.Context, string) error {
	return nil
}

func (m *MockProvider) Role(context.Context, string) (auth.Role, error) {
	return m.role, m.err
}

type memoryCartStorage struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

func (s *memoryCartStorage) Load(_ context.Context, key string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[key]
	if !ok {
		return nil, storage.ErrCartNotFound
	}
	return &c, nil
}

func (s *memoryCartStorage) Save(_ context.Context, c *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts == nil {
		s.carts = make(map[string]domain.Cart)
	}
	s.carts[c.Key] = *c
	return nil
}

func (s *memoryCartStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, key)
	return nil
}
