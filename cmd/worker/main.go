package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/config"
	"dev/bravebird/login-e2e-go/pkg/database"
	"dev/bravebird/login-e2e-go/pkg/metrics"
	"dev/bravebird/login-e2e-go/pkg/temporal/activities"
	"dev/bravebird/login-e2e-go/pkg/temporal/tlog"
	"dev/bravebird/login-e2e-go/pkg/temporal/workflows"
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

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.New(logger.Named("temporal")),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// Results are persisted when a database is reachable
	var store activities.RunStore
	db, err := database.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Warn("Failed to connect to database, running without persistence", zap.Error(err))
	} else {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		store = db
	}

	recorder := metrics.NewRecorder()
	metricsServer := serveMetrics(cfg.Worker.MetricsPort, recorder, logger)

	// Create activities
	opener := browser.NewOpener(cfg.Browser, logger.Named("browser"))
	acts := activities.NewActivities(opener, store, recorder, cfg.Suite.ScreenshotDir, logger.Named("activities"))
	defer acts.Pool.Close(logger)

	// Create worker
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     5,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	// Register workflows
	w.RegisterWorkflow(workflows.LoginSuiteWorkflow)
	w.RegisterWorkflow(workflows.ParallelLoginSuiteWorkflow)

	// Register activities
	w.RegisterActivity(acts.OpenSessionActivity)
	w.RegisterActivity(acts.CloseSessionActivity)
	w.RegisterActivity(acts.RunCheckActivity)
	w.RegisterActivity(acts.TakeScreenshotActivity)
	w.RegisterActivity(acts.RecordCheckResultActivity)
	w.RegisterActivity(acts.UpdateRunStatusActivity)

	logger.Info("Starting Temporal worker",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("temporal_host", cfg.Temporal.Host),
		zap.String("driver", string(cfg.Browser.Driver)))

	// Start worker
	err = w.Run(worker.InterruptCh())

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(ctx)
	}
	if err != nil {
		logger.Error("Worker failed", zap.Error(err))
	}
}

func serveMetrics(port string, recorder *metrics.Recorder, logger *zap.Logger) *http.Server {
	if port == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Metrics listening", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return server
}
