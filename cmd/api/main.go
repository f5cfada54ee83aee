package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	myPostgresRepo "github.com/agile-platform/backend/internal/adapters/db/postgres"
	myRedisRepo "github.com/agile-platform/backend/internal/adapters/db/redis"
	myGrpc "github.com/agile-platform/backend/internal/adapters/transport/grpc"
	grpcmw "github.com/agile-platform/backend/internal/adapters/transport/grpc/middleware"
	myHttp "github.com/agile-platform/backend/internal/adapters/transport/http"
	"github.com/agile-platform/backend/internal/adapters/transport/http/dto"
	"github.com/agile-platform/backend/internal/adapters/transport/ratelimit"
	"github.com/agile-platform/backend/internal/app/auth/credential"
	"github.com/agile-platform/backend/internal/app/auth/jwt"
	appsvc "github.com/agile-platform/backend/internal/app/auth/service"
	"github.com/agile-platform/backend/internal/app/pool"
	"github.com/agile-platform/backend/internal/domain/auth/repo"
	"github.com/agile-platform/backend/internal/infra/config"
	"github.com/agile-platform/backend/internal/infra/db"
	lg "github.com/agile-platform/backend/internal/infra/log"
	"github.com/agile-platform/backend/internal/infra/metrics"
	"github.com/agile-platform/backend/internal/infra/migrate"
	"github.com/agile-platform/backend/internal/infra/server"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	zapLog := lg.Must(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	defer zapLog.Sync()

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := pool.NewMonitor(zapLog)
	dbPool, err := db.Open(rootCtx, cfg, monitor, zapLog)
	if err != nil {
		zapLog.Fatal("failed to create database pool", zap.Error(err))
	}
	monitor.AttachGauges(dbPool)

	probe := pool.NewProbe(dbPool, monitor, cfg.DBConnectTimeout)
	if h := probe.Check(rootCtx); !h.Healthy {
		zapLog.Fatal("database connection test failed", zap.String("error", h.Error))
	}
	zapLog.Info("database connection established")

	if err := migrate.Up(dbPool.SQL()); err != nil {
		zapLog.Fatal("run migrations", zap.Error(err))
	}

	gormDB, err := dbPool.Gorm()
	if err != nil {
		zapLog.Fatal("gorm handle", zap.Error(err))
	}

	var cache repo.ProfileCache
	if cfg.RedisAddress != "" {
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisCli.Close()
		cache = myRedisRepo.NewRedisProfileCache(redisCli)
	}

	hasher, err := credential.New(credential.Algorithm(cfg.PasswordHashAlgorithm), cfg.BcryptCost)
	if err != nil {
		zapLog.Fatal("failed to init password hasher", zap.Error(err))
	}
	jwtUtil, err := jwt.NewJWTUtil(cfg)
	if err != nil {
		zapLog.Fatal("failed to init JWT util", zap.Error(err))
	}
	userRepo := myPostgresRepo.NewPostgresUserRepo(gormDB)
	svc := appsvc.New(userRepo, cache, hasher, jwtUtil, cfg, dto.NewValidator())

	healthReporter := myGrpc.NewHealthReporter()
	watcher := pool.NewWatcher(probe, monitor, healthReporter, cfg.MonitorInterval, zapLog)
	registry := metrics.NewRegistry(monitor)

	httpVisitors := ratelimit.NewVisitors(
		rate.Every(cfg.RateLimitWindow/time.Duration(cfg.RateLimitMax)),
		cfg.RateLimitMax, 10_000, cfg.RateLimitWindow,
	)
	grpcVisitors := server.GRPCVisitors()

	router := myHttp.NewRouter(myHttp.RouterDeps{
		Auth:             myHttp.NewAuthHandler(svc, zapLog),
		Health:           myHttp.NewHealthHandler(probe, monitor, dbPool.Limits(), zapLog),
		Verifier:         jwtUtil,
		Pool:             monitor,
		Policy:           pool.DefaultGuardPolicy(),
		Observe:          registry.ObserveDecision,
		Visitors:         httpVisitors,
		Metrics:          registry.Handler(),
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: cfg.AllowCredentials,
		Log:              zapLog,
	})

	grpcServer, err := server.NewGRPCServer(cfg, healthReporter, grpcmw.ChainDeps{
		Logger:   zapLog,
		Visitors: grpcVisitors,
		Pool:     monitor,
		Policy:   pool.DefaultGuardPolicy(),
		Observe:  registry.ObserveDecision,
	})
	if err != nil {
		zapLog.Fatal("failed to init gRPC server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error { return monitor.Run(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error { httpVisitors.Run(ctx); return nil })
	g.Go(func() error { grpcVisitors.Run(ctx); return nil })

	g.Go(func() error {
		return server.StartGRPCServer(ctx, cfg.GRPCAddress, grpcServer, healthReporter, cfg.ShutdownTimeout, zapLog)
	})

	g.Go(func() error {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddress))
		var err error
		if cfg.HTTPSCertFile != "" && cfg.HTTPSKeyFile != "" {
			err = srv.ListenAndServeTLS(cfg.HTTPSCertFile, cfg.HTTPSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		zapLog.Info("shutdown signal received")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			zapLog.Error("http shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
	}

	ctxClose, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := dbPool.Close(ctxClose); err != nil {
		zapLog.Error("database pool close error", zap.Error(err))
	}
	zapLog.Info("shutdown complete")
}
