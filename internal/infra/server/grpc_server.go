package server

import (
	"context"
	"net"
	"time"

	myGrpc "github.com/agile-platform/backend/internal/adapters/transport/grpc"
	"github.com/agile-platform/backend/internal/adapters/transport/grpc/middleware"
	"github.com/agile-platform/backend/internal/adapters/transport/ratelimit"
	"github.com/agile-platform/backend/internal/infra/config"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer builds the health-only gRPC server with the interceptor chain.
// TLS is enabled when both certificate paths are configured.
func NewGRPCServer(cfg *config.Config, health *myGrpc.HealthReporter, chain middleware.ChainDeps) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(chain)),
	}
	if cfg.HTTPSCertFile != "" && cfg.HTTPSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.HTTPSCertFile, cfg.HTTPSKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load grpc tls credentials")
		}
		opts = append(opts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(grpcServer, health.Server())
	grpc_prometheus.Register(grpcServer)
	reflection.Register(grpcServer)
	return grpcServer, nil
}

// GRPCVisitors is the per-IP limiter used for the gRPC listener.
func GRPCVisitors() *ratelimit.Visitors {
	return ratelimit.NewVisitors(rate.Limit(10), 100, 10_000, time.Hour)
}

// StartGRPCServer serves until ctx is done, then stops gracefully within
// timeout.
func StartGRPCServer(ctx context.Context, addr string, grpcServer *grpc.Server, health *myGrpc.HealthReporter, timeout time.Duration, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", addr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "serve grpc")
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("ctx cancelled, stopping gRPC server")
	health.Shutdown()

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-stopCtx.Done():
		grpcServer.Stop()
	case <-done:
	}
	logger.Info("gRPC server stopped")
	return nil
}
