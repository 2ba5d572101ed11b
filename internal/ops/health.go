// Package ops runs the operations gRPC port: health checks per dependency and
// server reflection.
package ops

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultInterval = 15 * time.Second
	probeTimeout    = 3 * time.Second
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// Checker probes dependencies on an interval and publishes the results through
// the standard gRPC health service. Each probe is its own service name; the
// empty name is SERVING only while every probe passes.
type Checker struct {
	server   *health.Server
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	probes map[string]Probe
}

func NewChecker(log *zap.Logger) *Checker {
	return &Checker{
		server:   health.NewServer(),
		interval: defaultInterval,
		log:      log,
		probes:   map[string]Probe{},
	}
}

func (c *Checker) Register(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
	c.server.SetServingStatus(name, healthpb.HealthCheckResponse_UNKNOWN)
}

func (c *Checker) Server() *health.Server {
	return c.server
}

// Run probes immediately and then on every tick until ctx is done, when all
// services are marked NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

func (c *Checker) CheckOnce(ctx context.Context) {
	c.mu.Lock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.Unlock()

	healthy := true
	for name, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p(probeCtx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			c.log.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
		}
		c.server.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", overall)
}
