package checkout

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

// complete clears the cart once header and lines are both stored. The
// capture behind the order can no longer be resumed.
func (w *Workflow) complete(ctx context.Context, log *zap.Logger, a *Attempt, cart CartSource) error {
	if err := a.transition(domain.SubmissionCompleted); err != nil {
		return err
	}

	cart.ClearCart(ctx)

	if a.Payment != nil {
		forgetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()
		if err := w.captures.Forget(forgetCtx, a.CartKey); err != nil {
			log.Error("capture not released", zap.String("transaction_id", a.Payment.TransactionID), zap.Error(err))
		}
	}
	return nil
}
