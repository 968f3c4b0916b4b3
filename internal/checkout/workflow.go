package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultStepTimeout = 10 * time.Second

// CartSource is the cart being checked out.
type CartSource interface {
	Key() string
	Lines() []domain.CartLine
	ClearCart(ctx context.Context)
}

type OrderWriter interface {
	CreateHeader(ctx context.Context, o *domain.Order) (*domain.Order, error)
	CreateLines(ctx context.Context, orderID string, lines []domain.OrderLine) ([]domain.OrderLine, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error)
}

// OrphanReport describes an order header persisted without its lines.
type OrphanReport struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	CartKey       string          `json:"cart_key"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Reason        string          `json:"reason"`
	DetectedAt    time.Time       `json:"detected_at"`
}

type OrphanReporter interface {
	ReportOrphan(ctx context.Context, report OrphanReport) error
}

type Request struct {
	UserID        string
	Method        domain.PaymentMethod
	Shipping      domain.ShippingAddress
	PromoCode     string
	ApprovalToken string
	// TransactionID names the capture reported by an earlier failed attempt.
	// It is only honoured when it matches the capture recorded for the cart.
	TransactionID string
}

type Config struct {
	StepTimeout time.Duration
	Currency    string
	// Captures defaults to a MemoryLedger.
	Captures CaptureLedger
}

// Workflow turns a cart snapshot into an order header and its lines.
type Workflow struct {
	calc     pricing.Calculator
	orders   OrderWriter
	gateway  payment.Gateway
	orphans  OrphanReporter
	captures CaptureLedger
	logger   *zap.Logger
	timeout  time.Duration
	currency string

	inFlight sync.Map // cart key -> struct{}
}

func NewWorkflow(
	calc pricing.Calculator,
	orders OrderWriter,
	gateway payment.Gateway,
	orphans OrphanReporter,
	logger *zap.Logger,
	cfg Config,
) *Workflow {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Captures == nil {
		cfg.Captures = NewMemoryLedger()
	}
	return &Workflow{
		calc:     calc,
		orders:   orders,
		gateway:  gateway,
		orphans:  orphans,
		captures: cfg.Captures,
		logger:   logger,
		timeout:  cfg.StepTimeout,
		currency: cfg.Currency,
	}
}

// Submit runs one submission attempt to completion or failure. The returned
// attempt records every state it passed through; on failure its Err equals
// the returned error. Only one attempt per cart runs at a time.
func (w *Workflow) Submit(ctx context.Context, cart CartSource, req Request) (*Attempt, error) {
	key := cart.Key()
	if _, busy := w.inFlight.LoadOrStore(key, struct{}{}); busy {
		return nil, ErrSubmissionInProgress
	}
	defer w.inFlight.Delete(key)

	a := newAttempt(key)
	log := w.logger.With(zap.String("attempt_id", a.ID), zap.String("cart", key))

	// the snapshot is taken once; every total below derives from it
	a.Lines = cart.Lines()
	a.Quote = w.calc.Quote(a.Lines, req.PromoCode)

	if err := w.validate(a, req); err != nil {
		return w.fail(log, a, err)
	}

	if err := w.processPayment(ctx, log, a, req); err != nil {
		return w.fail(log, a, err)
	}

	if err := w.createHeader(ctx, a, req); err != nil {
		return w.failOrphaned(ctx, log, a, err)
	}

	if !a.resumedWithLines {
		if err := w.createLines(ctx, a); err != nil {
			return w.failOrphaned(ctx, log, a, err)
		}
	}

	if err := w.complete(ctx, log, a, cart); err != nil {
		return w.fail(log, a, err)
	}

	log.Info("order submitted",
		zap.String("order_id", a.Order.ID),
		zap.String("total", a.Order.TotalAmount.String()),
		zap.String("payment_method", string(a.Order.PaymentMethod)),
		zap.Bool("resumed", a.Resumed))
	return a, nil
}

// InProgress reports whether a submission for the cart key is running.
func (w *Workflow) InProgress(key string) bool {
	_, busy := w.inFlight.Load(key)
	return busy
}

func (w *Workflow) fail(log *zap.Logger, a *Attempt, err error) (*Attempt, error) {
	a.Err = err
	if terr := a.transition(domain.SubmissionFailed); terr != nil {
		log.Error("cannot mark attempt failed", zap.String("status", a.Status.String()), zap.Error(terr))
	}
	log.Warn("order submission failed", zap.Strings("states", a.historyStrings()), zap.Error(err))
	return a, err
}

func (w *Workflow) failOrphaned(ctx context.Context, log *zap.Logger, a *Attempt, err error) (*Attempt, error) {
	var lineErr *LineWriteError
	if errors.As(err, &lineErr) && lineErr.HeaderOrphaned {
		w.reportOrphan(ctx, log, a, err)
	}
	return w.fail(log, a, err)
}

func (w *Workflow) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.timeout)
}
