package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/config"
	"github.com/elad014/stockwatch/pkg/database"
	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/quotesource"
	"github.com/elad014/stockwatch/pkg/redisclient"
)

func main() {
	// Initialize logger
	if err := logger.Init(); err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Log.Sync()
	log := logger.Log

	log.Info("starting stockwatch scheduler")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.ValidateScheduler(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.String("collector", cfg.CollectorURL),
		zap.Duration("interval", cfg.RefreshInterval))

	// Initialize database
	dbConfig := database.NewConfig()
	db, err := database.New(dbConfig)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	stockRepo := database.NewStockRepository(db)
	source := quotesource.New(cfg.CollectorURL, cfg.APITimeout)

	// Redis is optional; without it the scheduler still persists to
	// Postgres, it just stops feeding the cache and live stream.
	var cache quoteCache
	if cfg.RedisURL != "" {
		redisClient, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = redisClient
	} else {
		log.Warn("REDIS_URL not set, quote cache and live updates disabled")
	}

	// Expose metrics and health on a side port
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsRoutes(db),
	}
	go func() {
		log.Info("starting metrics server", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(stockRepo, source, cache, cfg.RefreshInterval)
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutdown signal received, exiting")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("refresh run still in flight at shutdown")
	}
}

func metricsRoutes(db *database.DB) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := db.HealthCheck(ctx); err != nil {
			http.Error(w, "Database health check failed", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	return r
}
