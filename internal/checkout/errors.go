package checkout

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrSubmissionInProgress = errors.New("a submission for this cart is already running")
	ErrIllegalTransition    = errors.New("illegal transition of submission status")
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")

	ErrUnknownCapture  = errors.New("transaction does not match a capture recorded for this cart")
	ErrCaptureMismatch = errors.New("cart total changed since the payment was captured")
)

// ValidationError names the shipping fields (or "cart") that blocked the
// submission. Nothing has been written when it is returned.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Is matches ErrEmptyCart when the cart was one of the missing fields.
func (e *ValidationError) Is(target error) bool {
	return target == ErrEmptyCart && slices.Contains(e.Missing, "cart")
}

// PaymentError means the capture failed or the submission named a capture
// this workflow never recorded for the cart. The attempt wrote no header.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed: %v", e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// HeaderWriteError means the order header insert failed. The cart is intact
// and no lines were written.
type HeaderWriteError struct {
	Err error
}

func (e *HeaderWriteError) Error() string {
	return fmt.Sprintf("order failed, please retry: %v", e.Err)
}

func (e *HeaderWriteError) Unwrap() error {
	return e.Err
}

// LineWriteError means the header was persisted but its lines were not.
// The header is left in place for reconciliation.
type LineWriteError struct {
	OrderID        string
	HeaderOrphaned bool
	Err            error
}

func (e *LineWriteError) Error() string {
	return fmt.Sprintf("order %s lines not written: %v", e.OrderID, e.Err)
}

func (e *LineWriteError) Unwrap() error {
	return e.Err
}
