package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the overall health service name; each controller is also
// registered under its own name.
const ServiceName = "treasury.Controllers"

// Server serves the standard gRPC health protocol for treasuryd.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *slog.Logger
}

// New registers the health service and marks every controller serving.
func New(controllers []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(otelgrpc.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	for _, name := range controllers {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return &Server{grpc: srv, health: hs, logger: logger}
}

// SetServing flips the status of one controller, or of the whole service
// when name is empty.
func (s *Server) SetServing(name string, serving bool) {
	if name == "" {
		name = ServiceName
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(name, status)
}

// Serve accepts connections on listener until ctx is cancelled, then drains
// in-flight calls for up to five seconds.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("treasuryd: grpc health listening", slog.String("addr", listener.Addr().String()))
		serverErr <- s.grpc.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.logger.Warn("treasuryd: forcing grpc stop")
			s.grpc.Stop()
		}
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	}
}
