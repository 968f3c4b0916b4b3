package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedDecider struct {
	approved bool
	refusal  Refusal
}

func (f fixedDecider) Decide() (bool, Refusal) {
	return f.approved, f.refusal
}

func captureReq() CaptureRequest {
	return CaptureRequest{
		Reference:     "user:u1",
		Amount:        decimal.RequireFromString("1500.00"),
		Currency:      "INR",
		ApprovalToken: "approval-abc",
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		roll     int
		approved bool
		refusal  Refusal
	}{
		{name: "approved low", roll: 10, approved: true},
		{name: "approved edge", roll: 94, approved: true},
		{name: "unknown refusal", roll: 95, approved: false, refusal: RefusalUnknown},
		{name: "insufficient funds", roll: 96, approved: false, refusal: RefusalInsufficientFunds},
		{name: "issuer unavailable", roll: 100, approved: false, refusal: RefusalIssuerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved, refusal := decide(tt.roll)
			assert.Equal(t, tt.approved, approved)
			assert.Equal(t, tt.refusal, refusal)
		})
	}
}

func TestSandbox_Approves(t *testing.T) {
	res, err := NewSandbox(nil).Capture(context.Background(), captureReq())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, strings.HasPrefix(res.TransactionID, "TXN-"))
}

func TestSandbox_Declines(t *testing.T) {
	_, err := NewSandbox(fixedDecider{refusal: RefusalCardExpired}).Capture(context.Background(), captureReq())
	require.ErrorIs(t, err, ErrDeclined)

	var declined *DeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "card expired", declined.Reason)
}

func TestSandbox_RejectsNonPositiveAmount(t *testing.T) {
	req := captureReq()
	req.Amount = decimal.Zero
	_, err := NewSandbox(nil).Capture(context.Background(), req)
	assert.Error(t, err)
}

func TestHTTPGateway_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/captures", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "user:u1", r.Header.Get("Idempotency-Key"))

		var body captureBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1500.00", body.Amount)
		assert.Equal(t, "approval-abc", body.ApprovalToken)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(captureResponse{TransactionID: "PAY-9", Status: "completed"})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, "secret", time.Second)
	res, err := gw.Capture(context.Background(), captureReq())
	require.NoError(t, err)
	assert.Equal(t, "PAY-9", res.TransactionID)
}

func TestHTTPGateway_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(captureResponse{TransactionID: "PAY-10", Status: "failed", Refusal: "insufficient funds"})
	}))
	defer server.Close()

	_, err := NewHTTPGateway(server.URL, "", time.Second).Capture(context.Background(), captureReq())
	require.ErrorIs(t, err, ErrDeclined)

	var declined *DeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "PAY-10", declined.TransactionID)
}

func TestHTTPGateway_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPGateway(server.URL, "", time.Second).Capture(context.Background(), captureReq())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPGateway_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPGateway(server.URL, "", time.Second).Capture(ctx, captureReq())
	assert.ErrorIs(t, err, ErrUnavailable)
}

type countingGateway struct {
	calls atomic.Int32
	err   error
}

func (g *countingGateway) Capture(context.Context, CaptureRequest) (*Result, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return &Result{TransactionID: "TXN-1", Status: StatusCompleted}, nil
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	next := &countingGateway{err: errors.New("connection reset")}
	b := NewBreaker(next, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.Capture(context.Background(), captureReq())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Capture(context.Background(), captureReq())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), next.calls.Load())
}

func TestBreaker_DeclinesDoNotTrip(t *testing.T) {
	next := &countingGateway{err: &DeclinedError{Reason: "card expired"}}
	b := NewBreaker(next, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := b.Capture(context.Background(), captureReq())
		require.ErrorIs(t, err, ErrDeclined)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, int32(10), next.calls.Load())
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := NewBreaker(&countingGateway{}, zap.NewNop())
	res, err := b.Capture(context.Background(), captureReq())
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", res.TransactionID)
}
