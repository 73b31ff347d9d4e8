package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/auth"
	"github.com/elad014/stockwatch/pkg/config"
	"github.com/elad014/stockwatch/pkg/database"
	"github.com/elad014/stockwatch/pkg/logger"
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

	log.Info("starting stockwatch web server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.ValidateWeb(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	log.Info("configuration loaded", zap.String("environment", cfg.Environment))

	// Initialize database
	dbConfig := database.NewConfig()
	db, err := database.New(dbConfig)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run database migrations
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migrateCancel()

	if err := db.RunMigrations(migrateCtx); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	// Initialize repositories
	stockRepo := database.NewStockRepository(db)
	userRepo := database.NewUserRepository(db)

	// Initialize authentication service
	authService, err := auth.NewService(cfg.JWTSecret, "stockwatch", 24*time.Hour)
	if err != nil {
		log.Fatal("failed to initialize authentication service", zap.Error(err))
	}

	probe := quotesource.New(cfg.CollectorURL, cfg.APITimeout)
	hub := NewHub()

	srv := NewServer(stockRepo, userRepo, authService, probe, hub, cfg.VersionFile, cfg.LogFile)
	srv.AddHealthCheck("database", db.HealthCheck)
	srv.SetMigrationSource(db.GetMigrationStatus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis feeds the live quote stream; without it the stream is
	// simply silent.
	if cfg.RedisURL != "" {
		redisClient, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		srv.AddHealthCheck("redis", redisClient.Ping)
		srv.SetQuoteCache(redisClient)
		go hub.RunPubSub(ctx, redisClient)
	} else {
		log.Warn("REDIS_URL not set, live quote stream disabled")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.WebPort),
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
