package observability

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard grpc.health.v1 service and keeps its
// status in sync with the readiness checks.
type GRPCHealth struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]HealthCheckFunc
	interval time.Duration
	logger   zerolog.Logger
}

// NewGRPCHealth creates a gRPC health server polling checks every interval
func NewGRPCHealth(checks map[string]HealthCheckFunc, interval time.Duration, logger zerolog.Logger) *GRPCHealth {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
}

// Refresh runs the checks once and publishes the resulting status
func (g *GRPCHealth) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, ok := CheckDependencies(ctx, g.checks)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve accepts connections on lis until ctx is cancelled
func (g *GRPCHealth) Serve(ctx context.Context, lis net.Listener) error {
	go g.poll(ctx)
	go func() {
		<-ctx.Done()
		g.health.Shutdown()
		g.server.GracefulStop()
	}()

	g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	return g.server.Serve(lis)
}

func (g *GRPCHealth) poll(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	last := g.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if status := g.Refresh(ctx); status != last {
				g.logger.Info().Str("status", status.String()).Msg("gRPC health status changed")
				last = status
			}
		}
	}
}
