package httpapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pickly.app/internal/obs"
)

// HealthService is the service name reported next to the overall ("") status.
const HealthService = "pickly.identity.v1.Identity"

// HealthMonitor drives grpc.health.v1 serving status from a readiness probe.
type HealthMonitor struct {
	health   *health.Server
	probe    readinessChecker
	interval time.Duration
	log      *slog.Logger
}

// NewGRPCServer builds a gRPC server exposing grpc.health.v1. Run the
// returned monitor to keep the status current; until then it reports
// NOT_SERVING.
func NewGRPCServer(probe readinessChecker, interval time.Duration, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *HealthMonitor) {
	if probe == nil {
		probe = ReadyProbe{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = obs.Logger()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, &HealthMonitor{
		health:   hs,
		probe:    probe,
		interval: interval,
		log:      logger.With("component", "grpc_health"),
	}
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.CheckOnce(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.health.Shutdown()
			return
		case <-t.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs one probe and publishes the result.
func (m *HealthMonitor) CheckOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := m.probe.Check(pctx); err != nil {
		m.log.WarnContext(ctx, "readiness probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(status == healthpb.HealthCheckResponse_SERVING)
	m.health.SetServingStatus("", status)
	m.health.SetServingStatus(HealthService, status)
}
