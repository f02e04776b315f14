package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tlab-bridge/internal/cache"
	"tlab-bridge/internal/handlers"
	"tlab-bridge/internal/httpserver"
	"tlab-bridge/internal/metrics"
	"tlab-bridge/internal/tlab"
	"tlab-bridge/pkg/logging/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("bridge exited with error: %v", err)
	}
}

func run(args []string) error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := LoadConfig(args, os.Getenv)
	if err != nil {
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("tlab_host", cfg.Host),
		zap.Bool("disable_fallback", cfg.DisableFallback),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("version_id", cfg.VersionID),
		zap.String("redis_addr", cfg.RedisAddr),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == cache.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	// ----- Response cache -----
	responseCache, err := cache.New(cache.Config{
		Backend: cfg.CacheBackend,
		TTL:     cfg.CacheTTL,
		Prefix:  "tlab-bridge",
	}, redisClient)
	if err != nil {
		return err
	}
	if closer, ok := responseCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	responseCache = cache.NewLoggingCache(responseCache)

	// ----- Transformer Lab client -----
	client, err := tlab.NewClient(tlab.Config{
		Host:            cfg.Host,
		DisableFallback: cfg.DisableFallback,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	// ----- Handlers -----
	datasetHandler := handlers.NewDatasetHandler(client, responseCache, cfg.CacheTTL, cfg.VersionID)
	chatHandler := handlers.NewChatHandler(client)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Options{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}, datasetHandler, chatHandler)

	// ----- HTTP server -----
	// No WriteTimeout: chat streams last as long as the model talks.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting bridge",
		zap.String("addr", srv.Addr),
		zap.String("tlab_host", client.Host()),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			serverErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
