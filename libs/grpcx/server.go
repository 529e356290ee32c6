package grpcx

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with tracing and request-id propagation installed.
func NewServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	opts = append(opts, extra...)
	return grpc.NewServer(opts...)
}

// RegisterHealth installs the standard grpc.health.v1 service. The returned server lets the
// caller flip serving status (e.g. NOT_SERVING during shutdown).
func RegisterHealth(srv *grpc.Server, services ...string) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range services {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(srv, hs)
	return hs
}

// HealthReadyCheck returns a /readyz check that asks a peer's grpc.health.v1 service for
// the given service name ("" means the whole server).
func HealthReadyCheck(addr, service string) func(context.Context) error {
	return func(ctx context.Context) error {
		if addr == "" {
			return errors.New("grpc address not configured")
		}
		conn, err := Dial(ctx, addr, DialOptions{Timeout: 2 * time.Second})
		if err != nil {
			return err
		}
		defer conn.Close()

		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return errors.New("peer reports " + resp.GetStatus().String())
		}
		return nil
	}
}
