package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gigpay/taskpay/internal/api"
	"github.com/gigpay/taskpay/internal/api/middleware"
	"github.com/gigpay/taskpay/internal/config"
	"github.com/gigpay/taskpay/internal/db"
	"github.com/gigpay/taskpay/internal/gateway"
	"github.com/gigpay/taskpay/internal/idempotency"
	"github.com/gigpay/taskpay/internal/observability"
	"github.com/gigpay/taskpay/internal/repository"
	"github.com/gigpay/taskpay/internal/service"
	"github.com/gigpay/taskpay/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and the expiry worker, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	store := repository.NewStore(pool)

	var gw gateway.Gateway
	if cfg.GatewayMock {
		gw = gateway.NewMockGateway()
		logger.Warn("using mock payment gateway")
	} else {
		gw = gateway.NewClient(gateway.Config{
			APIURL:     cfg.GatewayAPIURL,
			MchNo:      cfg.GatewayMchNo,
			AppID:      cfg.GatewayAppID,
			PrivateKey: cfg.GatewayPrivateKey,
			NotifyURL:  cfg.GatewayNotifyURL,
			ReturnURL:  cfg.GatewayReturnURL,
			Timeout:    cfg.GatewayTimeout,
		})
	}

	expirySvc := service.NewExpiryService(store, cfg.ExpiryBatchSize)
	expiryWorker := worker.NewExpiryWorker(expirySvc).WithPollInterval(cfg.ExpirySweepEvery)
	stopWorker := expiryWorker.Run(ctx)
	logger.Info("expiry worker started", zap.Duration("interval", cfg.ExpirySweepEvery), zap.Int32("batch", cfg.ExpiryBatchSize))

	router := api.NewRouter(cfg, pool, redisClient, store, gw, idemStore, logger)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping expiry worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
