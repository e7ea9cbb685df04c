// Package grpcserver hosts the orchestrator's gRPC surface: the standard
// health service and the operations service, behind request-id, metrics,
// tracing and error-mapping interceptors.
package grpcserver

import (
	"context"
	"errors"
	"net"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps a grpc.Server and its health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    logging.Logger
}

// Option configures a Server.
type Option func(*options)

type options struct {
	log     logging.Logger
	metrics *observability.OrchestratorCollector
	tracing bool
}

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records RPC counts and durations.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(o *options) { o.metrics = c }
}

// WithOTel installs the otelgrpc stats handler.
func WithOTel() Option {
	return func(o *options) { o.tracing = true }
}

// New builds a server with health and, when ops is non-nil, the operations
// service registered.
func New(ops OperationsServer, opts ...Option) *Server {
	o := options{log: logging.Noop()}
	for _, opt := range opts {
		opt(&o)
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(o.log),
			TracingUnaryServerInterceptor(),
			o.metrics.UnaryServerInterceptor(),
			statusUnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(RequestIDStreamServerInterceptor(o.log)),
	}
	if o.tracing {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	s := &Server{
		grpc:   grpc.NewServer(serverOpts...),
		health: health.NewServer(),
		log:    o.log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	if ops != nil {
		RegisterOperationsServer(s.grpc, ops)
		s.health.SetServingStatus(OperationsServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// SetServing reports the health of a named subsystem.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// GRPC returns the underlying server for additional registrations.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Serve accepts connections on lis until ctx ends, then marks every service
// not serving and stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()
	s.log.Info(ctx, "gRPC server listening", logging.String("addr", lis.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.log.Info(context.Background(), "gRPC server stopped")
	return nil
}

func statusUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		return resp, ToStatusError(err)
	}
}
