package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/agile-platform/backend/internal/app/pool"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Admission gates every request on the pool state before any handler runs.
// Failures inside the guard let the request through.
func Admission(source pool.Snapshotter, policy pool.GuardPolicy, log *zap.Logger, observe func(pool.Decision)) gin.HandlerFunc {
	return func(c *gin.Context) {
		verdict, ok := evaluate(source, policy, log)
		if !ok {
			c.Next()
			return
		}
		if observe != nil {
			observe(verdict.Decision)
		}

		switch verdict.Decision {
		case pool.Reject:
			retry := int(verdict.RetryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":      "Service temporarily unavailable",
				"message":    "Database connection pool exhausted",
				"retryAfter": retry,
			})
			return
		case pool.Throttle:
			retry := int(verdict.RetryAfter.Seconds())
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests",
				"message":    "Database experiencing high load",
				"retryAfter": retry,
			})
			return
		}
		c.Next()
	}
}

func evaluate(source pool.Snapshotter, policy pool.GuardPolicy, log *zap.Logger) (v pool.Verdict, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("admission guard failed, passing request through", zap.Error(fmt.Errorf("%v", r)))
			ok = false
		}
	}()

	m := source.Snapshot()
	v = policy.Evaluate(m, source.Now())
	if v.Warn {
		log.Warn("high connection queue detected",
			zap.Int("waiting", m.WaitingRequests),
			zap.Int("total", m.TotalConnections),
			zap.Int("idle", m.IdleConnections),
		)
	}
	if v.Decision == pool.Throttle {
		log.Warn("abnormal connection pattern detected",
			zap.Int("error_count", m.ErrorCount),
			zap.Time("last_error", m.LastErrorAt),
		)
	}
	return v, true
}
