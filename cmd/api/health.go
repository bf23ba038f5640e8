package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// healthService is the service name probes can ask about besides "".
const healthService = "chatsync.v1.Chat"

// newHealthServer returns a gRPC server exposing grpc.health.v1 and
// reflection. Both services start NOT_SERVING until watchHealth runs.
func newHealthServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return gs, hs
}

// watchHealth pings storage every interval and reports the result until ctx
// is done, then marks everything NOT_SERVING for draining.
func watchHealth(ctx context.Context, hs *health.Server, ping func(context.Context) error, interval time.Duration, log *zap.Logger) {
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if ping != nil {
			pctx, cancel := context.WithTimeout(ctx, interval/2)
			err := ping(pctx)
			cancel()
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				log.Warn("storage ping failed", zap.Error(err))
			}
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(healthService, status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
