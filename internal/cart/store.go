package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cart/storage"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultPersistTimeout = 2 * time.Second

// Store is the state container for one cart. Every mutation is applied in
// memory first and then the full snapshot is written to storage. Storage
// failures are logged; the in-memory cart stays authoritative.
type Store struct {
	mu       sync.Mutex
	key      string
	lines    []domain.CartLine
	lastUsed time.Time

	storage storage.CartStorage
	logger  *zap.Logger
	timeout time.Duration
}

func NewStore(key string, st storage.CartStorage, logger *zap.Logger) *Store {
	return &Store{
		key:      key,
		storage:  st,
		logger:   logger.With(zap.String("cart", key)),
		timeout:  defaultPersistTimeout,
		lastUsed: time.Now(),
	}
}

// Load replaces the in-memory lines with the persisted snapshot. A missing
// snapshot leaves the cart empty.
func (s *Store) Load(ctx context.Context) error {
	cart, err := s.storage.Load(ctx, s.key)
	if err != nil && !errors.Is(err, storage.ErrCartNotFound) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	if cart != nil {
		for _, l := range cart.Lines {
			if l.ProductID == "" || l.Quantity < 1 {
				continue
			}
			s.lines = append(s.lines, l)
		}
	}
	s.lastUsed = time.Now()
	return nil
}

func (s *Store) Key() string {
	return s.key
}

// AddToCart inserts the product with its current price, or sums the quantity
// into the existing line. Quantities below 1 count as 1; products without an
// id are ignored.
func (s *Store) AddToCart(ctx context.Context, p domain.Product, quantity int) {
	if p.ID == "" {
		return
	}
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(p.ID); i >= 0 {
		s.lines[i].Quantity += quantity
	} else {
		s.lines = append(s.lines, domain.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			ImageURL:  p.ImageURL,
			UnitPrice: p.Price,
			Quantity:  quantity,
		})
	}
	s.persist(ctx)
}

// RemoveFromCart drops the line. Removing an absent product is a no-op.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		s.lastUsed = time.Now()
		return
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.persist(ctx)
}

// UpdateQuantity sets the quantity exactly; zero or less removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	if quantity <= 0 {
		s.RemoveFromCart(ctx, productID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		s.lastUsed = time.Now()
		return
	}
	s.lines[i].Quantity = quantity
	s.persist(ctx)
}

func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.persist(ctx)
}

// Merge folds lines into the cart with AddToCart semantics. The unit price of
// a line already present is kept.
func (s *Store) Merge(ctx context.Context, lines []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 {
			continue
		}
		if i := s.indexOf(l.ProductID); i >= 0 {
			s.lines[i].Quantity += l.Quantity
		} else {
			s.lines = append(s.lines, l)
		}
		changed = true
	}
	if changed {
		s.persist(ctx)
	}
}

// Lines returns a copy in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed = time.Now()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Count is the sum of quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Total is the cart subtotal, without discount or shipping.
func (s *Store) Total() decimal.Decimal {
	return pricing.Subtotal(s.Lines())
}

func (s *Store) Snapshot() domain.Cart {
	return domain.Cart{
		Key:       s.key,
		Lines:     s.Lines(),
		UpdatedAt: time.Now(),
	}
}

func (s *Store) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

func (s *Store) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Store) indexOf(productID string) int {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context) {
	now := time.Now()
	s.lastUsed = now

	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	snapshot := &domain.Cart{Key: s.key, Lines: lines, UpdatedAt: now}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var err error
	if len(lines) == 0 {
		err = s.storage.Delete(saveCtx, s.key)
	} else {
		err = s.storage.Save(saveCtx, snapshot)
	}
	if err != nil {
		s.logger.Warn("cart persist failed", zap.Int("lines", len(lines)), zap.Error(err))
	}
}
