package payment

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

type Refusal int

const (
	RefusalUnknown Refusal = iota
	RefusalInsufficientFunds
	RefusalCardExpired
	RefusalFraudSuspected
	RefusalLimitExceeded
	RefusalIssuerUnavailable
)

func (r Refusal) String() string {
	switch r {
	case RefusalInsufficientFunds:
		return "insufficient funds"
	case RefusalCardExpired:
		return "card expired"
	case RefusalFraudSuspected:
		return "fraud suspected"
	case RefusalLimitExceeded:
		return "limit exceeded"
	case RefusalIssuerUnavailable:
		return "issuer unavailable"
	default:
		return "unknown reason"
	}
}

// Decider picks the outcome of a sandbox capture.
type Decider interface {
	Decide() (approved bool, refusal Refusal)
}

type AlwaysApprove struct{}

func (AlwaysApprove) Decide() (bool, Refusal) {
	return true, RefusalUnknown
}

// RandomDecider approves 95% of captures and spreads the rest over the
// refusal reasons.
type RandomDecider struct{}

func (RandomDecider) Decide() (bool, Refusal) {
	return decide(rand.Intn(101)) // 101 because Intn is exclusive of the upper bound
}

func decide(roll int) (bool, Refusal) {
	if roll < 95 {
		return true, RefusalUnknown
	}
	reason := roll - 95
	if reason == 0 || reason > 5 {
		return false, RefusalUnknown
	}
	return false, Refusal(reason)
}

// Sandbox is an in-process gateway for development. It never moves money.
type Sandbox struct {
	decider Decider
}

func NewSandbox(d Decider) *Sandbox {
	if d == nil {
		d = AlwaysApprove{}
	}
	return &Sandbox{decider: d}
}

func (s *Sandbox) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("capture amount must be positive, got %s", req.Amount)
	}

	txn := "TXN-" + uuid.NewString()
	approved, refusal := s.decider.Decide()
	if !approved {
		return nil, &DeclinedError{TransactionID: txn, Reason: refusal.String()}
	}
	return &Result{TransactionID: txn, Status: StatusCompleted}, nil
}
