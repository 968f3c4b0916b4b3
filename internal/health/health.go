// Package health runs readiness checks against the backing stores and
// publishes the result over HTTP and the standard gRPC health service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	DefaultPingTimeout = 2 * time.Second
)

// Ping returns nil when the dependency is reachable.
type Ping func(ctx context.Context) error

type Report struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

type Checker struct {
	mu      sync.RWMutex
	pings   map[string]Ping
	timeout time.Duration
	server  *health.Server
	logger  *zap.Logger
}

func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{
		pings:   make(map[string]Ping),
		timeout: DefaultPingTimeout,
		server:  health.NewServer(),
		logger:  logger,
	}
}

func (c *Checker) Register(name string, p Ping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings[name] = p
}

// Check runs every ping concurrently and updates the gRPC serving status.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.pings))
	for name := range c.pings {
		names = append(names, name)
	}
	pings := make([]Ping, len(names))
	sort.Strings(names)
	for i, name := range names {
		pings[i] = c.pings[name]
	}
	c.mu.RUnlock()

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i := range pings {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			results[i] = pings[i](pctx)
		}(i)
	}
	wg.Wait()

	report := Report{
		Status:     StatusOK,
		Components: make(map[string]string, len(names)),
		CheckedAt:  time.Now().UTC(),
	}
	for i, name := range names {
		if err := results[i]; err != nil {
			c.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			report.Components[name] = err.Error()
			report.Status = StatusDegraded
			continue
		}
		report.Components[name] = StatusOK
	}

	if report.Status == StatusOK {
		c.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		c.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return report
}

// Watch re-runs the checks every interval until ctx is done.
func (c *Checker) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks the service as not serving for the rest of its life.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

// Handler serves the report as JSON; 503 when any ping fails.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())

		status := http.StatusOK
		if report.Status != StatusOK {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			c.logger.Error("failed to encode health report", zap.Error(err))
		}
	}
}

// NewGRPCServer returns a traced gRPC server exposing the health service.
func NewGRPCServer(c *Checker) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpc_health_v1.RegisterHealthServer(s, c.server)
	reflection.Register(s)
	return s
}
