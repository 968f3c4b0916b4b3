package checkout

import (
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/google/uuid"
)

// Attempt is the state of one submission.
type Attempt struct {
	ID        string
	CartKey   string
	Status    domain.SubmissionStatus
	History   []domain.SubmissionStatus
	Lines     []domain.CartLine
	Quote     pricing.Snapshot
	Payment   *payment.Result
	Order     *domain.Order
	Resumed   bool
	StartedAt time.Time
	Err       error

	// an existing header that already has its lines
	resumedWithLines bool
}

func newAttempt(cartKey string) *Attempt {
	a := &Attempt{
		ID:        uuid.NewString(),
		CartKey:   cartKey,
		Status:    domain.SubmissionIdle,
		History:   []domain.SubmissionStatus{domain.SubmissionIdle},
		StartedAt: time.Now(),
	}
	return a
}

func (a *Attempt) transition(to domain.SubmissionStatus) error {
	if !domain.CanTransitionTo(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}
	a.Status = to
	a.History = append(a.History, to)
	return nil
}

func (a *Attempt) historyStrings() []string {
	out := make([]string, len(a.History))
	for i, s := range a.History {
		out[i] = s.String()
	}
	return out
}
