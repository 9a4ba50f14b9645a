package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saudelab/agenda/internal/agenda"
	"github.com/saudelab/agenda/internal/api/router"
	"github.com/saudelab/agenda/internal/app/bootstrap"
	"github.com/saudelab/agenda/internal/availability"
	"github.com/saudelab/agenda/internal/booking"
	appconfig "github.com/saudelab/agenda/internal/config"
	"github.com/saudelab/agenda/internal/http/handlers"
	"github.com/saudelab/agenda/internal/observability/metrics"
	"github.com/saudelab/agenda/pkg/logging"
)

func main() {
	// Local development convenience; the file is absent in deployment.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agenda API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Initialize repositories and services
	schedulingMetrics := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	counters := booking.NewPostgresCounterStore(pool)
	repo := agenda.NewPostgresRepository(pool).WithCommittedChecker(counters)
	slotCache := availability.NewSlotCache(redisClient, cfg.SlotCacheTTL, logger)
	availabilitySvc := availability.NewService(repo, counters, slotCache, logger, schedulingMetrics, cfg.QueryRangeMaxDays)
	gate := booking.NewPostgresGate(pool, repo, cfg.ReserveLockTimeout, slotCache, logger, schedulingMetrics)

	// Setup router
	routerCfg := &router.Config{
		Logger:           logger,
		Agendas:          handlers.NewAgendasHandler(handlers.AgendasConfig{Repo: repo, Cache: slotCache, Logger: logger}),
		Slots:            handlers.NewSlotsHandler(handlers.SlotsConfig{Availability: availabilitySvc, Gate: gate, Logger: logger}),
		MetricsHandler:   promhttp.Handler(),
		ReserveRateLimit: cfg.ReserveRateLimit,
		ReserveRateBurst: cfg.ReserveRateBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
