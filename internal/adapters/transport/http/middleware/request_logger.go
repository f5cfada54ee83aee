package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

func scrub(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "authorization") || strings.Contains(lk, "cookie") {
			out[k] = "[redacted]"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

// RequestLogger is the access log. Credentials in headers are never logged.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if ce := log.Check(zap.DebugLevel, "incoming request"); ce != nil {
			ce.Write(
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.String("origin", c.GetHeader("Origin")),
				zap.Any("headers", scrub(c.Request.Header)),
			)
		}

		ts := time.Now()
		c.Next()

		latency := time.Since(ts)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}

		for _, e := range c.Errors {
			log.Error("handler error", append(fields, zap.Error(e.Err))...)
		}

		switch {
		case c.IsAborted() && status >= http.StatusTooManyRequests:
			log.Warn("request rejected", fields...)
		case quietPaths[path]:
			log.Debug("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
