// Package reconcile finds orders whose recorded total disagrees with their
// line items and, when allowed, rewrites the total.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Policy string

const (
	// PolicyFlag reports drift and never writes.
	PolicyFlag Policy = "flag"
	// PolicyCorrect rewrites drifted totals. Orphaned headers are still only
	// flagged.
	PolicyCorrect Policy = "correct"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyFlag, PolicyCorrect:
		return p, nil
	case "":
		return PolicyFlag, nil
	default:
		return "", fmt.Errorf("unknown reconcile policy %q", s)
	}
}

type OrderStore interface {
	ListAll(ctx context.Context) ([]*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	UpdateTotal(ctx context.Context, id string, total decimal.Decimal) error
}

// Drift is an order whose header does not match its lines. Orphaned orders
// have a header and no lines at all.
type Drift struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Recorded  decimal.Decimal `json:"recorded"`
	Expected  decimal.Decimal `json:"expected"`
	LineCount int             `json:"line_count"`
	Orphaned  bool            `json:"orphaned"`
	CreatedAt time.Time       `json:"created_at"`
}

type Result struct {
	Corrected []string `json:"corrected"`
	Flagged   []string `json:"flagged"`
}

type Reconciler struct {
	orders OrderStore
	policy Policy
	logger *zap.Logger
}

func NewReconciler(orders OrderStore, policy Policy, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orders: orders,
		policy: policy,
		logger: logger,
	}
}

func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Audit lists every drifted order, newest first.
func (r *Reconciler) Audit(ctx context.Context) ([]Drift, error) {
	all, err := r.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var drifts []Drift
	for _, o := range all {
		if d, ok := detect(o); ok {
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

// Check inspects one order. It returns nil when the order is consistent.
func (r *Reconciler) Check(ctx context.Context, orderID string) (*Drift, error) {
	o, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if d, ok := detect(o); ok {
		return &d, nil
	}
	return nil, nil
}

// Apply acts on drifts according to the policy. Under PolicyFlag nothing is
// written; under PolicyCorrect every non-orphaned drift gets its expected
// total.
func (r *Reconciler) Apply(ctx context.Context, drifts []Drift) (Result, error) {
	res := Result{Corrected: []string{}, Flagged: []string{}}

	for _, d := range drifts {
		if r.policy != PolicyCorrect || d.Orphaned {
			res.Flagged = append(res.Flagged, d.OrderID)
			r.logger.Warn("order drift flagged",
				zap.String("order_id", d.OrderID),
				zap.String("recorded", d.Recorded.String()),
				zap.String("expected", d.Expected.String()),
				zap.Bool("orphaned", d.Orphaned))
			continue
		}

		if err := r.orders.UpdateTotal(ctx, d.OrderID, d.Expected); err != nil {
			return res, fmt.Errorf("correct order %s: %w", d.OrderID, err)
		}
		res.Corrected = append(res.Corrected, d.OrderID)
		r.logger.Info("order total corrected",
			zap.String("order_id", d.OrderID),
			zap.String("from", d.Recorded.String()),
			zap.String("to", d.Expected.String()))
	}
	return res, nil
}

func detect(o *domain.Order) (Drift, bool) {
	d := Drift{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Recorded:  o.TotalAmount,
		Expected:  o.ExpectedTotal(),
		LineCount: len(o.Lines),
		Orphaned:  len(o.Lines) == 0,
		CreatedAt: o.CreatedAt,
	}
	if d.Orphaned {
		return d, true
	}
	return d, !d.Recorded.Equal(d.Expected)
}
