package grpcx

import (
	"context"
	"net"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthReadyCheck(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	srv := NewServer()
	hs := RegisterHealth(srv, "reminders")
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	check := HealthReadyCheck(lis.Addr().String(), "reminders")
	if err := check(ctx); err != nil {
		t.Fatalf("expected serving, got %v", err)
	}

	hs.SetServingStatus("reminders", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := check(ctx); err == nil {
		t.Fatal("expected error for NOT_SERVING peer")
	}
}

func TestHealthReadyCheckRequiresAddr(t *testing.T) {
	if err := HealthReadyCheck("", "")(context.Background()); err == nil {
		t.Fatal("expected error without address")
	}
}
