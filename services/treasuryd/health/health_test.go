package health

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthReportsControllers(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New([]string{"maker"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	conn, err := grpc.Dial(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	for _, service := range []string{ServiceName, "maker"} {
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("check %s: %v", service, err)
		}
		if resp.Status != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("%s: expected SERVING, got %s", service, resp.Status)
		}
	}

	srv.SetServing("maker", false)
	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "maker"})
	if err != nil {
		t.Fatalf("check maker: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.Status)
	}

	if _, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "unknown"}); err == nil {
		t.Fatalf("expected NotFound for unknown service")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}
