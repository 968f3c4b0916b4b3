package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheck_AllHealthy(t *testing.T) {
	c := NewChecker(zap.NewNop())
	c.Register("db", func(context.Context) error { return nil })
	c.Register("redis", func(context.Context) error { return nil })

	report := c.Check(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, map[string]string{"db": StatusOK, "redis": StatusOK}, report.Components)
}

func TestCheck_Degraded(t *testing.T) {
	c := NewChecker(zap.NewNop())
	c.Register("db", func(context.Context) error { return nil })
	c.Register("mongo", func(context.Context) error { return errors.New("connection refused") })

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["mongo"])
	assert.Equal(t, StatusOK, report.Components["db"])
}

func TestCheck_PingTimeout(t *testing.T) {
	c := NewChecker(zap.NewNop())
	c.timeout = 20 * time.Millisecond
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandler(t *testing.T) {
	healthy := true
	c := NewChecker(zap.NewNop())
	c.Register("db", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusOK, report.Status)

	healthy = false
	rec = httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGRPCHealthFollowsPings(t *testing.T) {
	healthy := true
	c := NewChecker(zap.NewNop())
	c.Register("db", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewGRPCServer(c)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	status := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
		require.NoError(t, err)
		return resp.Status
	}

	c.Check(context.Background())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, status())

	healthy = false
	c.Check(context.Background())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, status())
}
