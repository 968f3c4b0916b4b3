package checkout

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/payment"
	"github.com/google/uuid"
)

// fakeCart implements CartSource
type fakeCart struct {
	m       sync.Mutex
	key     string
	lines   []domain.CartLine
	cleared bool
}

func (c *fakeCart) Key() string { return c.key }

func (c *fakeCart) Lines() []domain.CartLine {
	c.m.Lock()
	defer c.m.Unlock()
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *fakeCart) ClearCart(context.Context) {
	c.m.Lock()
	defer c.m.Unlock()
	c.lines = nil
	c.cleared = true
}

// MockOrders implements OrderWriter for testing
type MockOrders struct {
	m           sync.Mutex
	HeaderErr   error
	LinesErr    error
	FindErr     error
	Headers     []*domain.Order
	LineWrites  int
	HeaderCalls int

	// block, when set, is waited on inside CreateHeader
	block chan struct{}
}

func (m *MockOrders) CreateHeader(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.m.Lock()
	defer m.m.Unlock()
	m.HeaderCalls++
	if m.HeaderErr != nil {
		return nil, m.HeaderErr
	}
	created := *o
	created.ID = uuid.NewString()
	m.Headers = append(m.Headers, &created)
	return &created, nil
}

func (m *MockOrders) CreateLines(_ context.Context, orderID string, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.LineWrites++
	if m.LinesErr != nil {
		return nil, m.LinesErr
	}
	for _, h := range m.Headers {
		if h.ID == orderID {
			h.Lines = append(h.Lines, lines...)
		}
	}
	return lines, nil
}

func (m *MockOrders) FindByTransactionID(_ context.Context, txn string) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for _, h := range m.Headers {
		if h.TransactionID != nil && *h.TransactionID == txn {
			found := *h
			return &found, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

// MockGateway implements payment.Gateway for testing
type MockGateway struct {
	m        sync.Mutex
	Err      error
	Status   payment.Status // completed when empty
	Calls    int
	Requests []payment.CaptureRequest
}

func (g *MockGateway) Capture(_ context.Context, req payment.CaptureRequest) (*payment.Result, error) {
	g.m.Lock()
	defer g.m.Unlock()
	g.Calls++
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return nil, g.Err
	}
	status := g.Status
	if status == "" {
		status = payment.StatusCompleted
	}
	return &payment.Result{TransactionID: "TXN-" + uuid.NewString(), Status: status}, nil
}

// MockReporter implements OrphanReporter for testing
type MockReporter struct {
	m       sync.Mutex
	Reports []OrphanReport
}

func (r *MockReporter) ReportOrphan(_ context.Context, report OrphanReport) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.Reports = append(r.Reports, report)
	return nil
}
