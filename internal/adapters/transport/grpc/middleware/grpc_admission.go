package middleware

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agile-platform/backend/internal/app/pool"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// NewAdmission rejects calls while the database pool is exhausted or
// misbehaving. Reject maps to Unavailable and Throttle to ResourceExhausted;
// both carry a retry-after header in seconds.
func NewAdmission(source pool.Snapshotter, policy pool.GuardPolicy, log *zap.Logger, observe func(pool.Decision)) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		v, ok := verdict(source, policy, log)
		if !ok {
			return handler(ctx, req)
		}
		if observe != nil {
			observe(v.Decision)
		}

		var code codes.Code
		var msg string
		switch v.Decision {
		case pool.Reject:
			code, msg = codes.Unavailable, "database connection pool exhausted"
		case pool.Throttle:
			code, msg = codes.ResourceExhausted, "database experiencing high load"
		default:
			return handler(ctx, req)
		}

		_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(int(v.RetryAfter.Seconds()))))
		log.Warn("grpc call rejected by admission guard",
			zap.String("method", info.FullMethod),
			zap.Stringer("decision", v.Decision),
		)
		return nil, status.Error(code, msg)
	}
}

func verdict(source pool.Snapshotter, policy pool.GuardPolicy, log *zap.Logger) (v pool.Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("admission guard failed, passing call through", zap.Error(fmt.Errorf("%v", r)))
			ok = false
		}
	}()
	return policy.Evaluate(source.Snapshot(), source.Now()), true
}
