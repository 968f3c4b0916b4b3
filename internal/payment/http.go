package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type captureBody struct {
	Reference     string `json:"reference"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ApprovalToken string `json:"approval_token"`
}

type captureResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Refusal       string `json:"refusal,omitempty"`
}

// HTTPGateway captures payments through a REST endpoint:
// POST {baseURL}/v1/captures.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPGateway(baseURL, token string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (g *HTTPGateway) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	body, err := json.Marshal(captureBody{
		Reference:     req.Reference,
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		ApprovalToken: req.ApprovalToken,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal capture request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/captures", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build capture request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out captureResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode capture response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || out.Status != string(StatusCompleted) {
		return nil, &DeclinedError{TransactionID: out.TransactionID, Reason: out.Refusal}
	}
	if out.TransactionID == "" {
		return nil, fmt.Errorf("capture response missing transaction id")
	}

	return &Result{TransactionID: out.TransactionID, Status: StatusCompleted}, nil
}
