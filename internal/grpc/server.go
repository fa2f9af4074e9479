package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"deliveryFieldOps/internal/auth"
	"deliveryFieldOps/internal/config"
)

// NewServer builds a gRPC server with the dispatch and health services behind
// the bearer token interceptor. Health checks need no token.
func NewServer(secret string, ds *DispatchServer) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.NewUnaryAuthInterceptor(secret, healthService)),
		grpc.StreamInterceptor(auth.NewStreamAuthInterceptor(secret, healthService)),
	)
	RegisterDispatchService(srv, ds)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// StartGRPC starts the dispatch API on cfg.GRPC.Address and returns a shutdown function.
func StartGRPC(cfg *config.Config, ds *DispatchServer) (func(context.Context) error, error) {
	if cfg == nil {
		panic("config is required")
	}

	addr := cfg.GRPC.Address
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := NewServer(cfg.Auth.JWTSecret, ds)
	go func() { _ = srv.Serve(lis) }()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
