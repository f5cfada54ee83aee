package http

import (
	"net/http"
	"time"

	"github.com/agile-platform/backend/internal/adapters/transport/http/middleware"
	"github.com/agile-platform/backend/internal/adapters/transport/ratelimit"
	"github.com/agile-platform/backend/internal/app/pool"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Auth     *AuthHandler
	Health   *HealthHandler
	Verifier middleware.AccessVerifier
	Pool     pool.Snapshotter
	Policy   pool.GuardPolicy
	Observe  func(pool.Decision)
	Visitors *ratelimit.Visitors
	Metrics  http.Handler

	AllowedOrigins   []string
	AllowCredentials bool
	Log              *zap.Logger
}

// NewRouter wires the middleware chain in order: recovery, access log,
// admission guard, security headers, CORS, per-IP rate limit.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Log))
	router.Use(middleware.Admission(d.Pool, d.Policy, d.Log, d.Observe))
	router.Use(middleware.SecureHeaders())

	corsConfig := cors.Config{
		AllowOrigins: d.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			"Authorization",
			"X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: d.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(middleware.NewHTTPRateLimitPerIP(d.Visitors))

	router.GET("/health", d.Health.Health)
	router.GET("/health/db", d.Health.Database)
	// TODO: restrict to operators once an admin role check exists on this route
	router.GET("/admin/pool-stats", d.Health.PoolStats)
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	api := router.Group("/api/auth")
	api.POST("/register", d.Auth.Register)
	api.POST("/login", d.Auth.Login)

	protected := api.Group("", middleware.Authenticate(d.Verifier))
	protected.GET("/profile", d.Auth.Profile)
	protected.PUT("/change-password", d.Auth.ChangePassword)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
	return router
}
