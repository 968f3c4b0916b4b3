package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"go.uber.org/zap"
)

type Submitter interface {
	Submit(ctx context.Context, cart checkout.CartSource, req checkout.Request) (*checkout.Attempt, error)
}

type CheckoutHandler struct {
	carts    Carts
	workflow Submitter
	logger   *zap.Logger
}

func NewCheckoutHandler(carts Carts, workflow Submitter, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		carts:    carts,
		workflow: workflow,
		logger:   logger,
	}
}

type CheckoutRequestDTO struct {
	PaymentMethod   domain.PaymentMethod   `json:"payment_method"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PromoCode       string                 `json:"promo_code"`
	ApprovalToken   string                 `json:"approval_token"`
	// TransactionID is echoed from a failed attempt's error details. It only
	// selects a capture the server recorded for this cart.
	TransactionID string `json:"transaction_id,omitempty"`
}

type CheckoutResponseDTO struct {
	Order   *domain.Order    `json:"order"`
	Status  string           `json:"status"`
	History []string         `json:"history"`
	Quote   pricing.Snapshot `json:"quote"`
	Resumed bool             `json:"resumed"`
	Payment *payment.Result  `json:"payment,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	store, err := h.carts.Open(r.Context(), identityFor(p))
	if err != nil {
		h.logger.Error("open cart failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	submitReq := checkout.Request{
		UserID:        p.UserID,
		Method:        domain.PaymentMethod(strings.ToLower(string(req.PaymentMethod))),
		Shipping:      req.ShippingAddress,
		PromoCode:     req.PromoCode,
		ApprovalToken: req.ApprovalToken,
		TransactionID: strings.TrimSpace(req.TransactionID),
	}

	attempt, err := h.workflow.Submit(r.Context(), store, submitReq)
	if err != nil {
		h.respondSubmitError(w, attempt, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse(attempt))
}

func checkoutResponse(a *checkout.Attempt) CheckoutResponseDTO {
	history := make([]string, len(a.History))
	for i, s := range a.History {
		history[i] = s.String()
	}
	return CheckoutResponseDTO{
		Order:   a.Order,
		Status:  a.Status.String(),
		History: history,
		Quote:   a.Quote,
		Resumed: a.Resumed,
		Payment: a.Payment,
	}
}

func (h *CheckoutHandler) respondSubmitError(w http.ResponseWriter, a *checkout.Attempt, err error) {
	var (
		validationErr *checkout.ValidationError
		paymentErr    *checkout.PaymentError
		headerErr     *checkout.HeaderWriteError
		lineErr       *checkout.LineWriteError
	)

	switch {
	case errors.Is(err, checkout.ErrSubmissionInProgress):
		respondError(w, http.StatusConflict, "submission_in_progress", "an order for this cart is already being submitted")
	case errors.As(err, &validationErr):
		respondErrorDetails(w, http.StatusUnprocessableEntity, "validation_failed",
			validationErr.Error(), strings.Join(validationErr.Missing, ","))
	case errors.As(err, &paymentErr):
		status := http.StatusPaymentRequired
		if errors.Is(err, payment.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "payment_failed", paymentErr.Error())
	case errors.As(err, &headerErr):
		respondErrorDetails(w, http.StatusInternalServerError, "order_failed",
			"order failed, please retry", capturedDetails(a))
	case errors.As(err, &lineErr):
		details := "order_id=" + lineErr.OrderID
		if captured := capturedDetails(a); captured != "" {
			details += "," + captured
		}
		respondErrorDetails(w, http.StatusInternalServerError, "order_incomplete",
			"order was recorded without its items, please retry", details)
	default:
		h.logger.Error("checkout failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// capturedDetails names the capture a resubmission has to carry.
func capturedDetails(a *checkout.Attempt) string {
	if a == nil || a.Payment == nil {
		return ""
	}
	return "transaction_id=" + a.Payment.TransactionID
}
