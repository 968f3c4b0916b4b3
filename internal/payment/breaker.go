package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker stops calling the gateway after repeated transport failures.
// Declines are answers from a healthy gateway and do not count as failures.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[*Result]
}

func NewBreaker(next Gateway, logger *zap.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*Result](settings),
	}
}

func (b *Breaker) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	res, err := b.cb.Execute(func() (*Result, error) {
		return b.next.Capture(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
