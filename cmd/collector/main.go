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

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/config"
	"github.com/elad014/stockwatch/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(); err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Log.Sync()
	log := logger.Log

	log.Info("starting stockwatch collector")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.ValidateCollector(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	log.Info("configuration loaded", zap.String("environment", cfg.Environment))

	provider := alphavantage.New(alphavantage.Config{
		APIKey:  cfg.AlphaVantageAPIKey,
		BaseURL: cfg.AlphaVantageBaseURL,
		Timeout: cfg.APITimeout,
	})

	srv := NewServer(provider)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.CollectorHost, cfg.CollectorPort),
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

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
