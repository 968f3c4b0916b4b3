package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders"
)

// createHeader writes the order header from the attempt's quote. A gateway
// payment whose transaction already has a header resumes that header.
func (w *Workflow) createHeader(ctx context.Context, a *Attempt, req Request) error {
	if err := a.transition(domain.SubmissionCreatingOrderHeader); err != nil {
		return err
	}

	headerCtx, cancel := w.stepContext(ctx)
	defer cancel()

	if a.Payment != nil {
		existing, err := w.orders.FindByTransactionID(headerCtx, a.Payment.TransactionID)
		switch {
		case err == nil:
			return w.resume(a, existing, req)
		case !errors.Is(err, orders.ErrOrderNotFound):
			return &HeaderWriteError{Err: fmt.Errorf("look up transaction: %w", err)}
		}
	}

	order := &domain.Order{
		UserID:          req.UserID,
		Subtotal:        a.Quote.Subtotal,
		DiscountAmount:  a.Quote.DiscountAmount,
		ShippingFee:     a.Quote.ShippingFee,
		TotalAmount:     a.Quote.GrandTotal,
		PaymentMethod:   req.Method,
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		ShippingAddress: req.Shipping,
		CreatedAt:       time.Now(),
	}
	if a.Quote.DiscountApplied {
		order.PromoCode = a.Quote.PromoCode
	}
	if a.Payment != nil {
		txn := a.Payment.TransactionID
		order.TransactionID = &txn
		order.PaymentStatus = domain.PaymentStatusCompleted
	}

	created, err := w.orders.CreateHeader(headerCtx, order)
	if errors.Is(err, orders.ErrDuplicateTransaction) {
		// a concurrent writer got there first
		existing, findErr := w.orders.FindByTransactionID(headerCtx, a.Payment.TransactionID)
		if findErr != nil {
			return &HeaderWriteError{Err: errors.Join(err, findErr)}
		}
		return w.resume(a, existing, req)
	}
	if err != nil {
		return &HeaderWriteError{Err: err}
	}

	a.Order = created
	return nil
}

// resume adopts a header written by an earlier attempt of the same user.
// Lines are only written for it when the current cart still prices to the
// same total.
func (w *Workflow) resume(a *Attempt, existing *domain.Order, req Request) error {
	if existing.UserID != req.UserID {
		return &PaymentError{Err: ErrUnknownCapture}
	}

	a.Order = existing
	a.Resumed = true

	if len(existing.Lines) > 0 {
		a.resumedWithLines = true
		return nil
	}
	if !existing.TotalAmount.Equal(a.Quote.GrandTotal) {
		return &LineWriteError{
			OrderID:        existing.ID,
			HeaderOrphaned: true,
			Err: fmt.Errorf("cart total %s no longer matches order total %s",
				a.Quote.GrandTotal, existing.TotalAmount),
		}
	}
	return nil
}
