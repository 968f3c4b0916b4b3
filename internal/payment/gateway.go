package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrDeclined    = errors.New("payment declined")
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// DeclinedError carries the refusal reason reported by the gateway.
type DeclinedError struct {
	TransactionID string
	Reason        string
}

func (e *DeclinedError) Error() string {
	if e.Reason == "" {
		return ErrDeclined.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDeclined, e.Reason)
}

func (e *DeclinedError) Unwrap() error {
	return ErrDeclined
}

type CaptureRequest struct {
	// Reference ties the capture to the submitting cart.
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	ApprovalToken string
}

// Result is a successful capture.
type Result struct {
	TransactionID string `json:"transaction_id"`
	Status        Status `json:"status"`
}

// Gateway captures an approved payment. Implementations return a
// *DeclinedError when the payer was refused and any other error when the
// gateway could not be reached.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (*Result, error)
}
