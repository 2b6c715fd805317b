package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/api"
	"dev/bravebird/login-e2e-go/pkg/config"
	"dev/bravebird/login-e2e-go/pkg/database"
	"dev/bravebird/login-e2e-go/pkg/metrics"
	"dev/bravebird/login-e2e-go/pkg/temporal/tlog"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Login E2E API Server")

	// Initialize database
	db, err := database.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Warn("Failed to connect to database, running without persistence", zap.Error(err))
		db = nil
	}
	if db != nil {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.New(logger.Named("temporal")),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(db, temporalClient, cfg, metrics.NewRecorder(), logger.Named("api"))

	// Create server
	server := &http.Server{
		Addr:        ":" + cfg.API.Port,
		Handler:     api.NewRouter(handlers),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: run streams stay open until the run finishes
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API server listening", zap.String("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
