package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewServer builds a gRPC server with tracing, request ids, access logging and
// panic recovery. Interceptors passed in extra run inside those.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
			UnaryServerRecoverInterceptor(logger),
		),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// Serve runs srv on lis until ctx is done, then stops it gracefully within grace.
func Serve(ctx context.Context, logger *slog.Logger, srv *grpc.Server, lis net.Listener, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc listening", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("grpc graceful stop timed out; forcing")
		srv.Stop()
	}
	logger.Info("grpc stopped")
	return nil
}
