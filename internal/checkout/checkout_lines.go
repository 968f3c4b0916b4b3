package checkout

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

func (w *Workflow) createLines(ctx context.Context, a *Attempt) error {
	if err := a.transition(domain.SubmissionCreatingOrderLines); err != nil {
		return err
	}

	lines := make([]domain.OrderLine, 0, len(a.Lines))
	for _, l := range a.Lines {
		lines = append(lines, domain.OrderLine{
			OrderID:             a.Order.ID,
			ProductID:           l.ProductID,
			Quantity:            l.Quantity,
			UnitPriceAtPurchase: l.UnitPrice,
		})
	}

	linesCtx, cancel := w.stepContext(ctx)
	defer cancel()

	written, err := w.orders.CreateLines(linesCtx, a.Order.ID, lines)
	if err != nil {
		return &LineWriteError{OrderID: a.Order.ID, HeaderOrphaned: true, Err: err}
	}

	a.Order.Lines = written
	return nil
}

// reportOrphan hands an orphaned header to reconciliation. Reporting runs
// even when the caller's context is gone.
func (w *Workflow) reportOrphan(ctx context.Context, log *zap.Logger, a *Attempt, cause error) {
	if w.orphans == nil || a.Order == nil {
		return
	}

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	err := w.orphans.ReportOrphan(reportCtx, OrphanReport{
		OrderID:       a.Order.ID,
		UserID:        a.Order.UserID,
		CartKey:       a.CartKey,
		TransactionID: a.Order.TransactionID,
		TotalAmount:   a.Order.TotalAmount,
		Reason:        cause.Error(),
		DetectedAt:    time.Now(),
	})
	if err != nil {
		log.Error("orphan report failed", zap.String("order_id", a.Order.ID), zap.Error(err))
	}
}
