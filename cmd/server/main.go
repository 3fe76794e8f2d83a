package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"social_platform/internal/config"
	"social_platform/internal/handler"
	"social_platform/internal/middleware"
	"social_platform/internal/realtime"
	"social_platform/internal/repository"
	"social_platform/internal/repository/memory"
	"social_platform/internal/service"
	"social_platform/internal/worker"
	"social_platform/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var appLogger logger.Logger
	if cfg.Environment == "production" {
		appLogger = logger.NewJSON(cfg.Log.Level)
	} else {
		appLogger = logger.New(cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Storage.Driver == config.StorageDriverPostgres || cfg.Realtime.RedisFanout {
		rdb = connectRedis(ctx, cfg.Redis, appLogger)
		defer rdb.Close()
	}

	var repos *repository.Repositories
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		repos, _ = memory.NewRepositories()
		appLogger.Warn("Using in-memory storage, state is lost on restart")
	default:
		dbPool := connectPostgres(ctx, cfg.Database, appLogger)
		defer dbPool.Close()
		repos = repository.NewRepositories(dbPool, rdb, appLogger)
	}

	gateway := realtime.NewGateway(appLogger)

	var emitter realtime.Emitter = gateway
	if cfg.Realtime.RedisFanout {
		fanout := realtime.NewRedisFanout(rdb, cfg.Realtime.Channel, gateway, appLogger)
		go func() {
			if err := fanout.Run(ctx); err != nil {
				appLogger.Error("Realtime fanout stopped", "error", err)
			}
		}()
		emitter = fanout
		appLogger.Info("Realtime fanout enabled", "channel", cfg.Realtime.Channel)
	}

	if cfg.Worker.Enabled {
		// Engines enqueue audit entries; the worker writes them to the store.
		redisOpt := worker.RedisOpt(cfg.Redis)
		auditQueue := worker.NewAuditQueue(redisOpt, cfg.Worker.Queue, appLogger)
		defer auditQueue.Close()

		workerServer := worker.NewServer(redisOpt, cfg.Worker, repos.Audit, appLogger)
		go func() {
			if err := workerServer.Run(ctx); err != nil {
				appLogger.Error("Worker stopped", "error", err)
			}
		}()
		repos.Audit = auditQueue
	}

	services := service.NewServices(repos, emitter, gateway, cfg, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	handlers := handler.NewHandlers(services, gateway, cfg, appLogger)
	router := handler.NewRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	gateway.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		log.Fatal("Failed to parse database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database", "error", err)
	}
	log.Info("Database connection established")
	return dbPool
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	log.Info("Redis connection established")
	return rdb
}
