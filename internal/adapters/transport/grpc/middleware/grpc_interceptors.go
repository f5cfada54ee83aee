package middleware

import (
	"github.com/agile-platform/backend/internal/adapters/transport/ratelimit"
	"github.com/agile-platform/backend/internal/app/pool"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ChainDeps collects what the unary chain needs. Pool may be nil, in which
// case the admission step is skipped.
type ChainDeps struct {
	Logger   *zap.Logger
	Visitors *ratelimit.Visitors
	Pool     pool.Snapshotter
	Policy   pool.GuardPolicy
	Observe  func(pool.Decision)
}

// ChainUnaryServer orders the interceptors as recovery, logging, metrics,
// admission, per-IP limit.
func ChainUnaryServer(d ChainDeps) grpc.UnaryServerInterceptor {
	chain := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(),
		grpc_zap.UnaryServerInterceptor(d.Logger),
		grpc_prometheus.UnaryServerInterceptor,
	}
	if d.Pool != nil {
		chain = append(chain, NewAdmission(d.Pool, d.Policy, d.Logger, d.Observe))
	}
	chain = append(chain, NewRateLimitPerIP(d.Visitors))
	return grpc_middleware.ChainUnaryServer(chain...)
}
