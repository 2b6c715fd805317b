package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires the handlers and their metrics endpoint behind CORS
func NewRouter(handlers *Handlers) http.Handler {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", handlers.Health).Methods("GET")
	router.Handle("/metrics", handlers.metrics.Handler()).Methods("GET")

	// API routes
	apiRouter := router.PathPrefix("/api").Subrouter()

	// Catalog
	apiRouter.HandleFunc("/checks", handlers.ListChecks).Methods("GET")
	apiRouter.HandleFunc("/targets", handlers.ListTargets).Methods("GET")

	// Runs
	apiRouter.HandleFunc("/runs", handlers.StartRun).Methods("POST")
	apiRouter.HandleFunc("/runs", handlers.ListRuns).Methods("GET")
	apiRouter.HandleFunc("/runs/parallel", handlers.StartParallelRun).Methods("POST")
	apiRouter.HandleFunc("/runs/{id}", handlers.GetRun).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}/cancel", handlers.CancelRun).Methods("POST")

	// WebSocket for real-time updates
	apiRouter.HandleFunc("/runs/{id}/stream", handlers.StreamRunUpdates).Methods("GET")

	// Screenshots
	apiRouter.HandleFunc("/screenshots/{run}/{filename}", handlers.ServeScreenshot).Methods("GET")

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}
