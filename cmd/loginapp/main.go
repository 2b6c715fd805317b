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

	"dev/bravebird/login-e2e-go/pkg/config"
	"dev/bravebird/login-e2e-go/pkg/database"
	"dev/bravebird/login-e2e-go/pkg/loginapp"
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

	store, closeStore, err := userStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to prepare user store", zap.Error(err))
	}
	defer closeStore()

	backend := loginapp.NewBackend(store, cfg.LoginApp.JWTSecret, logger.Named("backend"))
	frontend := loginapp.NewFrontend(cfg.LoginApp.APIURL, logger.Named("frontend"))

	servers := []*http.Server{
		newServer(cfg.LoginApp.BackendPort, backend.Handler()),
		newServer(cfg.LoginApp.FrontendPort, frontend.Handler()),
	}

	// Start servers in goroutines
	for _, server := range servers {
		server := server
		go func() {
			logger.Info("Listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed", zap.String("addr", server.Addr), zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server forced to shutdown", zap.String("addr", server.Addr), zap.Error(err))
		}
	}

	logger.Info("Servers stopped")
}

// userStore returns the demo accounts, kept in the configured database when
// LoginApp.UseDatabase is set
func userStore(cfg *config.Config, logger *zap.Logger) (loginapp.UserStore, func(), error) {
	if !cfg.LoginApp.UseDatabase {
		store, err := loginapp.NewDemoStore()
		return store, func() {}, err
	}

	db, err := database.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := loginapp.Seed(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to seed demo users: %w", err)
	}

	logger.Info("Serving users from database", zap.String("driver", cfg.Database.Driver))
	return db, func() { db.Close() }, nil
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
