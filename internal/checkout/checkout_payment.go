package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"go.uber.org/zap"
)

var errNoApproval = errors.New("gateway payment requires an approval token")

// processPayment captures gateway payments. A capture recorded for this cart
// by an earlier attempt is reused instead of charging again. Cash on delivery
// skips the gateway.
func (w *Workflow) processPayment(ctx context.Context, log *zap.Logger, a *Attempt, req Request) error {
	if req.Method != domain.PaymentMethodGateway {
		return nil
	}

	prior, err := w.priorCapture(ctx, a, req)
	if err != nil {
		return err
	}
	if prior != nil {
		a.Payment = &payment.Result{TransactionID: prior.TransactionID, Status: payment.StatusCompleted}
		log.Info("reusing recorded capture", zap.String("transaction_id", prior.TransactionID))
		return nil
	}

	if err := a.transition(domain.SubmissionCapturingPayment); err != nil {
		return err
	}
	if req.ApprovalToken == "" {
		return &PaymentError{Err: errNoApproval}
	}

	payCtx, cancel := w.stepContext(ctx)
	defer cancel()

	res, err := w.gateway.Capture(payCtx, payment.CaptureRequest{
		Reference:     a.ID,
		Amount:        a.Quote.GrandTotal,
		Currency:      w.currency,
		ApprovalToken: req.ApprovalToken,
	})
	if err != nil {
		return &PaymentError{Err: err}
	}
	if res == nil || res.Status != payment.StatusCompleted || res.TransactionID == "" {
		return &PaymentError{Err: fmt.Errorf("%w: capture not completed", payment.ErrDeclined)}
	}

	a.Payment = res
	w.recordCapture(ctx, log, a, req)
	return nil
}

// priorCapture returns the capture an earlier attempt recorded for this
// cart. A transaction id sent by the client must name that capture.
func (w *Workflow) priorCapture(ctx context.Context, a *Attempt, req Request) (*Capture, error) {
	lookupCtx, cancel := w.stepContext(ctx)
	defer cancel()

	c, err := w.captures.Lookup(lookupCtx, a.CartKey)
	if errors.Is(err, ErrCaptureNotFound) {
		if req.TransactionID != "" {
			return nil, &PaymentError{Err: ErrUnknownCapture}
		}
		return nil, nil
	}
	if err != nil {
		return nil, &PaymentError{Err: fmt.Errorf("%w: capture lookup: %v", payment.ErrUnavailable, err)}
	}

	if c.UserID != req.UserID || (req.TransactionID != "" && req.TransactionID != c.TransactionID) {
		return nil, &PaymentError{Err: ErrUnknownCapture}
	}
	if !c.Amount.Equal(a.Quote.GrandTotal) {
		return nil, &PaymentError{Err: fmt.Errorf("%w: captured %s, cart now %s",
			ErrCaptureMismatch, c.Amount, a.Quote.GrandTotal)}
	}
	return c, nil
}

// recordCapture keeps the capture until the order completes. A failed
// write only costs the ability to resume.
func (w *Workflow) recordCapture(ctx context.Context, log *zap.Logger, a *Attempt, req Request) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	err := w.captures.Record(recordCtx, Capture{
		TransactionID: a.Payment.TransactionID,
		UserID:        req.UserID,
		CartKey:       a.CartKey,
		Reference:     a.ID,
		Amount:        a.Quote.GrandTotal,
		Currency:      w.currency,
		CapturedAt:    time.Now(),
	})
	if err != nil {
		log.Error("capture not recorded", zap.String("transaction_id", a.Payment.TransactionID), zap.Error(err))
	}
}
