package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cart/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// IdleTTL is how long an untouched store stays in memory
	IdleTTL = 30 * time.Minute

	// CleanupInterval is how often idle stores are evicted
	CleanupInterval = time.Minute

	defaultLoadTimeout = 5 * time.Second
)

// Manager hands out one Store per identity and drops stores that have gone
// idle. Evicted carts are reloaded from storage on the next Open.
type Manager struct {
	storage storage.CartStorage
	logger  *zap.Logger
	sfg     singleflight.Group // one storage load per key

	mu          sync.RWMutex
	stores      map[string]*Store
	idleTTL     time.Duration
	loadTimeout time.Duration
	busy        func(key string) bool

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

type Option func(*Manager)

// WithBusyCheck keeps a store in memory while busy reports true for its key,
// however long it has been idle.
func WithBusyCheck(busy func(key string) bool) Option {
	return func(m *Manager) {
		m.busy = busy
	}
}

func NewManager(st storage.CartStorage, logger *zap.Logger, opts ...Option) *Manager {
	return newManager(st, logger, IdleTTL, CleanupInterval, opts...)
}

func newManager(st storage.CartStorage, logger *zap.Logger, idleTTL, interval time.Duration, opts ...Option) *Manager {
	m := &Manager{
		storage:     st,
		logger:      logger,
		stores:      make(map[string]*Store),
		idleTTL:     idleTTL,
		loadTimeout: defaultLoadTimeout,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.cleanupLoop(interval)

	return m
}

// Open returns the live store for the identity, loading it from storage on
// first use. Opening counts as use, so a store handed out here is not evicted
// before its idle TTL runs out again.
func (m *Manager) Open(ctx context.Context, id Identity) (*Store, error) {
	key, err := id.Key()
	if err != nil {
		return nil, err
	}

	if s, ok := m.cached(key); ok {
		return s, nil
	}

	v, err, _ := m.sfg.Do(key, func() (interface{}, error) {
		if existing, ok := m.cached(key); ok {
			return existing, nil
		}

		// every waiter on this key shares the load
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loadTimeout)
		defer cancel()

		store := NewStore(key, m.storage, m.logger)
		if err := store.Load(loadCtx); err != nil {
			return nil, fmt.Errorf("load cart %s: %w", key, err)
		}

		m.mu.Lock()
		m.stores[key] = store
		m.mu.Unlock()
		return store, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Store), nil
}

// MergeGuest moves the guest session's lines into the user's cart and
// deletes the guest cart. Quantities of products present in both are summed.
func (m *Manager) MergeGuest(ctx context.Context, sessionID, userID string) (*Store, error) {
	user, err := m.Open(ctx, UserIdentity(userID))
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return user, nil
	}

	guest, err := m.Open(ctx, GuestIdentity(sessionID))
	if err != nil {
		return nil, err
	}

	lines := guest.Lines()
	if len(lines) > 0 {
		user.Merge(ctx, lines)
		m.logger.Info("guest cart merged",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Int("lines", len(lines)))
	}
	guest.ClearCart(ctx)
	m.Evict(guest.Key())

	return user, nil
}

// cached touches the store under the read lock so evictIdle, which holds the
// write lock, sees the fresh use.
func (m *Manager) cached(key string) (*Store, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[key]
	if ok {
		s.touch()
	}
	return s, ok
}

func (m *Manager) Evict(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, key)
}

// Len reports how many stores are held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(time.Now())
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.stores {
		if m.busy != nil && m.busy(key) {
			continue
		}
		if now.Sub(s.idleSince()) > m.idleTTL {
			delete(m.stores, key)
		}
	}
}

// Close stops the background cleanup and waits for it to finish
func (m *Manager) Close() error {
	close(m.stopCleanup)
	m.wg.Wait()
	return nil
}
