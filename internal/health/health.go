package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "storefront.cart"

const defaultInterval = 10 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker mirrors the storage backend's reachability into a gRPC health server.
type Checker struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	log      logrus.FieldLogger
}

// NewChecker falls back to a 10s interval when interval is not positive.
func NewChecker(pinger Pinger, interval time.Duration, log logrus.FieldLogger) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Checker{
		server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		log:      log,
	}
}

// Server is the health service to register on a gRPC server.
func (c *Checker) Server() *health.Server {
	return c.server
}

// Run checks once immediately and then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.check(ctx)
		case <-ctx.Done():
			c.server.Shutdown()
			return
		}
	}
}

func (c *Checker) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(pingCtx); err != nil {
		c.log.WithError(err).Warn("storage ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus(ServiceName, status)
	c.server.SetServingStatus("", status)
}
