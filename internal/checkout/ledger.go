package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrCaptureNotFound = errors.New("no capture recorded for cart")

// Capture is a gateway payment taken by this workflow whose order has not
// completed yet. It is the only proof of payment a resubmission can use.
type Capture struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	CartKey       string          `json:"cart_key"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CapturedAt    time.Time       `json:"captured_at"`
}

// CaptureLedger keeps at most one outstanding capture per cart key.
type CaptureLedger interface {
	Record(ctx context.Context, c Capture) error
	Lookup(ctx context.Context, cartKey string) (*Capture, error)
	Forget(ctx context.Context, cartKey string) error
}

// MemoryLedger is a process-local CaptureLedger. Captures are lost on
// restart.
type MemoryLedger struct {
	mu       sync.Mutex
	captures map[string]Capture
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{captures: make(map[string]Capture)}
}

func (l *MemoryLedger) Record(_ context.Context, c Capture) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.captures[c.CartKey] = c
	return nil
}

func (l *MemoryLedger) Lookup(_ context.Context, cartKey string) (*Capture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.captures[cartKey]
	if !ok {
		return nil, ErrCaptureNotFound
	}
	return &c, nil
}

func (l *MemoryLedger) Forget(_ context.Context, cartKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.captures, cartKey)
	return nil
}
