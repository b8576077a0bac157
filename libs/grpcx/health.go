package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
)

// NewServer builds a gRPC server with tracing and request id propagation.
func NewServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// HealthReporter keeps the standard health service in sync with a set of
// readiness checks. The overall status ("") and the named service share the
// same state.
type HealthReporter struct {
	service string
	checks  []runtime.ReadyCheck
	server  *health.Server
	every   time.Duration
	logger  *slog.Logger
}

func NewHealthReporter(service string, logger *slog.Logger, every time.Duration, checks ...runtime.ReadyCheck) *HealthReporter {
	if every <= 0 {
		every = 5 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{service: service, checks: checks, server: hs, every: every, logger: logger}
}

// Register attaches the health service to srv.
func (h *HealthReporter) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.server)
}

// Refresh runs the checks once and publishes the result.
func (h *HealthReporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if failures := runtime.RunChecks(ctx, h.checks); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("grpc health not serving", "failures", failures)
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
	return status
}

// Run refreshes until ctx is done, then marks everything as shutting down.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// ServeHealth listens on addr and serves the health service (plus reflection)
// until ctx is cancelled.
func ServeHealth(ctx context.Context, addr, service string, logger *slog.Logger, checks ...runtime.ReadyCheck) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveHealthOn(ctx, lis, service, logger, checks...)
}

func serveHealthOn(ctx context.Context, lis net.Listener, service string, logger *slog.Logger, checks ...runtime.ReadyCheck) error {
	srv := NewServer()
	reporter := NewHealthReporter(service, logger, 0, checks...)
	reporter.Register(srv)
	reflection.Register(srv)

	go reporter.Run(ctx)
	go func() {
		<-ctx.Done()
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			srv.Stop()
		}
	}()

	logger.Info("grpc health listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
