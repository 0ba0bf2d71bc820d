package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"venue-backend/config"
	"venue-backend/internal/api"
	"venue-backend/internal/clock"
	"venue-backend/internal/db"
	"venue-backend/internal/device"
	"venue-backend/internal/inventory"
	"venue-backend/internal/ledger"
	"venue-backend/internal/logging"
	"venue-backend/internal/metrics"
	"venue-backend/internal/notification"
	"venue-backend/internal/order"
	"venue-backend/internal/sampler"
	"venue-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := logging.MustNewLogger("venued", cfg.Log.Env, cfg.Log.Level)
	defer func() { _ = logger.Sync() }()
	logger.Info("configuration loaded", zap.String("path", configPath))
	for _, note := range cfg.Notes {
		logger.Warn(note)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var webpushOptions *webpush.Options
	deviceOpts := []device.Option{device.WithLogger(logger), device.WithMetrics(m)}
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions,
			notification.WithLogger(logger), notification.WithMetrics(m))
		workerPool.Start(ctx)
		deviceOpts = append(deviceOpts, device.WithNotifier(workerPool))
		logger.Info("push notifications enabled", zap.Int("workers", cfg.WorkerPool.Size))
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}

	sessions := ledger.New(appStore)
	devices := device.NewRegistry(appStore, sessions, clock.NewRealClock(), device.Config{
		DefaultSessionKind: cfg.Venue.DefaultSessionKind,
		MaxAttempts:        cfg.Venue.MaxAttempts,
	}, deviceOpts...)
	inv := inventory.New(appStore,
		inventory.WithLogger(logger), inventory.WithMetrics(m), inventory.WithMaxAttempts(cfg.Venue.MaxAttempts))
	orders := order.NewProcessor(appStore, inv, devices,
		order.WithLogger(logger), order.WithMetrics(m), order.WithMaxAttempts(cfg.Venue.MaxAttempts))

	handler := api.NewHandler(api.Services{
		Store:     appStore,
		Devices:   devices,
		Inventory: inv,
		Orders:    orders,
		Ledger:    sessions,
	}, webpushOptions, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Gatherer:        reg,
	}, logger, m)

	if cfg.Sampler.Enabled {
		go sampler.NewService(appStore, cfg.Sampler.Interval, cfg.Sampler.LowStockThreshold, m, logger).Run(ctx)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Info("shutdown signal received, stopping services")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("server gracefully stopped")
}
