package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/config"
	"dev/bravebird/login-e2e-go/pkg/database"
	"dev/bravebird/login-e2e-go/pkg/metrics"
	"dev/bravebird/login-e2e-go/pkg/models"
	"dev/bravebird/login-e2e-go/pkg/suite"
	"dev/bravebird/login-e2e-go/pkg/temporal/workflows"
)

// Handlers contains API handlers
type Handlers struct {
	db             *database.DB
	temporalClient client.Client
	cfg            *config.Config
	metrics        *metrics.Recorder
	log            *zap.Logger
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. A nil recorder gets a private one.
func NewHandlers(db *database.DB, temporalClient client.Client, cfg *config.Config, recorder *metrics.Recorder, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Handlers{
		db:             db,
		temporalClient: temporalClient,
		cfg:            cfg,
		metrics:        recorder,
		log:            log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":   "ok",
		"database": h.db != nil,
	})
}

// ==================== Catalog Handlers ====================

// CheckInfo describes one available check
type CheckInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	NeedsBrowser bool   `json:"needs_browser"`
}

// ListChecks lists the checks a run can select
func (h *Handlers) ListChecks(w http.ResponseWriter, r *http.Request) {
	checks := suite.Checks()
	infos := make([]CheckInfo, len(checks))
	for i, c := range checks {
		infos[i] = CheckInfo{Name: c.Name, Description: c.Description, NeedsBrowser: c.NeedsBrowser}
	}
	respondJSON(w, infos)
}

// ListTargets lists the configured targets without their passwords
func (h *Handlers) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets := make([]models.Target, len(h.cfg.Targets))
	for i, t := range h.cfg.Targets {
		t.Password, t.WrongPassword = "", ""
		targets[i] = t
	}
	respondJSON(w, targets)
}

// ==================== Run Handlers ====================

// StartRun creates a run and starts the suite workflow for it
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RunRequest
	if err := decodeBody(r, &req); err != nil {
		h.reject(w, rejectInvalid, "Invalid request body", http.StatusBadRequest)
		return
	}

	if h.db == nil {
		h.reject(w, rejectNoDatabase, "Database not available", http.StatusServiceUnavailable)
		return
	}

	target, err := h.resolveTarget(req.Target, req.TargetName)
	if err != nil {
		h.reject(w, rejectInvalid, err.Error(), http.StatusBadRequest)
		return
	}
	input, err := h.suiteInput(target, req.Checks, req.Scope, req.TimeoutSeconds)
	if err != nil {
		h.reject(w, rejectInvalid, err.Error(), http.StatusBadRequest)
		return
	}

	run := newRun(input)
	if err := h.db.CreateSuiteRun(ctx, run); err != nil {
		http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	input.RunID = run.ID

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflows.SuiteWorkflowID(run.ID),
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.LoginSuiteWorkflow, input)
	if err != nil {
		h.failRun(r, run.ID, err)
		h.reject(w, rejectStartFailed, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.metrics.RunsSubmitted("single", 1)

	// Update run with Temporal IDs
	if err := h.db.SetTemporalIDs(ctx, run.ID, we.GetID(), we.GetRunID()); err != nil {
		h.log.Warn("failed to store temporal ids", zap.String("run_id", run.ID), zap.Error(err))
	}

	h.log.Info("run started", zap.String("run_id", run.ID), zap.String("frontend", target.FrontendURL))
	respondJSONStatus(w, http.StatusAccepted, models.RunStarted{
		RunID:              run.ID,
		TemporalWorkflowID: we.GetID(),
		TemporalRunID:      we.GetRunID(),
		Status:             run.Status,
	})
}

// StartParallelRun starts one run per selected target in a single workflow
func (h *Handlers) StartParallelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ParallelRunRequest
	if err := decodeBody(r, &req); err != nil {
		h.reject(w, rejectInvalid, "Invalid request body", http.StatusBadRequest)
		return
	}

	if h.db == nil {
		h.reject(w, rejectNoDatabase, "Database not available", http.StatusServiceUnavailable)
		return
	}

	targets := h.cfg.Targets
	if len(req.Targets) > 0 {
		targets = make([]models.Target, 0, len(req.Targets))
		for _, name := range req.Targets {
			t, err := h.cfg.Target(name)
			if err != nil {
				h.reject(w, rejectInvalid, err.Error(), http.StatusBadRequest)
				return
			}
			targets = append(targets, t)
		}
	}

	var input workflows.ParallelSuiteInput
	for _, target := range targets {
		in, err := h.suiteInput(target, req.Checks, req.Scope, req.TimeoutSeconds)
		if err != nil {
			h.reject(w, rejectInvalid, err.Error(), http.StatusBadRequest)
			return
		}
		input.Runs = append(input.Runs, in)
	}

	runs := make([]*models.SuiteRun, len(input.Runs))
	for i := range input.Runs {
		runs[i] = newRun(input.Runs[i])
		if err := h.db.CreateSuiteRun(ctx, runs[i]); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
		input.Runs[i].RunID = runs[i].ID
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        "login-suite-parallel-" + uuid.New().String(),
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}

	if _, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.ParallelLoginSuiteWorkflow, input); err != nil {
		for _, run := range runs {
			h.failRun(r, run.ID, err)
		}
		h.reject(w, rejectStartFailed, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.metrics.RunsSubmitted("parallel", len(runs))

	started := make([]models.RunStarted, len(runs))
	for i, run := range runs {
		// children are addressed by workflow ID alone
		workflowID := workflows.SuiteWorkflowID(run.ID)
		if err := h.db.SetTemporalIDs(ctx, run.ID, workflowID, ""); err != nil {
			h.log.Warn("failed to store temporal ids", zap.String("run_id", run.ID), zap.Error(err))
		}
		started[i] = models.RunStarted{RunID: run.ID, TemporalWorkflowID: workflowID, Status: run.Status}
	}

	respondJSONStatus(w, http.StatusAccepted, started)
}

// ListRuns lists the most recent runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.db.ListSuiteRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.SuiteRun{}
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run with its check results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetSuiteRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	results, err := h.db.GetCheckResults(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	run.CheckResults = results

	respondJSON(w, run)
}

// CancelRun cancels a running suite workflow
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetSuiteRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.Terminal() {
		http.Error(w, fmt.Sprintf("Run already %s", run.Status), http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" {
		err = h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID)
		if err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.db.UpdateSuiteRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.metrics.RunCanceled()

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamRunUpdates streams run updates via WebSocket
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the client never sends; a failed read means it went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var (
		lastStatus models.RunStatus
		lastCount  = -1
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update, ok := h.runUpdate(ctx, runID)
			if !ok {
				continue
			}

			// Send update if status or results changed
			if update.Status == lastStatus && len(update.CheckResults) == lastCount {
				continue
			}
			if err := conn.WriteJSON(models.WSMessage{Type: "run_update", Payload: update}); err != nil {
				h.log.Debug("stream closed", zap.String("run_id", runID), zap.Error(err))
				return
			}
			lastStatus, lastCount = update.Status, len(update.CheckResults)

			// Close if completed
			if update.Status.Terminal() {
				return
			}
		}
	}
}

// runUpdate prefers live workflow progress and falls back to the database
func (h *Handlers) runUpdate(ctx context.Context, runID string) (models.RunUpdate, bool) {
	update := models.RunUpdate{RunID: runID}

	var run *models.SuiteRun
	if h.db != nil {
		run, _ = h.db.GetSuiteRun(ctx, runID)
	}

	// a run canceled through the API may still report progress for a moment
	if run != nil && run.Status.Terminal() {
		update.Status = run.Status
		update.CheckResults, _ = h.db.GetCheckResults(ctx, runID)
		return update, true
	}

	if h.temporalClient != nil {
		workflowID := workflows.SuiteWorkflowID(runID)
		var temporalRunID string
		if run != nil && run.TemporalWorkflowID != "" {
			workflowID, temporalRunID = run.TemporalWorkflowID, run.TemporalRunID
		}
		value, err := h.temporalClient.QueryWorkflow(ctx, workflowID, temporalRunID, workflows.ProgressQuery)
		if err == nil {
			var result models.SuiteResult
			if value.Get(&result) == nil {
				update.Status = result.Status
				update.CheckResults = result.CheckResults
				return update, true
			}
		}
	}

	if run == nil {
		return update, false
	}
	update.Status = run.Status
	update.CheckResults, _ = h.db.GetCheckResults(ctx, runID)
	return update, true
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a screenshot file
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	// Only allow files from the screenshots directory
	filePath := filepath.Join(h.cfg.Suite.ScreenshotDir, filepath.Base(vars["run"]), filepath.Base(vars["filename"]))

	// Check file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	// Serve the file
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

func (h *Handlers) resolveTarget(target *models.Target, name string) (models.Target, error) {
	if target == nil {
		return h.cfg.Target(name)
	}
	if target.FrontendURL == "" || target.BackendURL == "" {
		return models.Target{}, errors.New("target needs frontend_url and backend_url")
	}
	return *target, nil
}

func (h *Handlers) suiteInput(target models.Target, checks []string, scope models.SessionScope, timeoutSeconds int) (models.SuiteInput, error) {
	if _, err := suite.Lookup(checks); err != nil {
		return models.SuiteInput{}, err
	}
	if scope == "" {
		scope = h.cfg.Suite.Scope
	}
	if !scope.Valid() {
		return models.SuiteInput{}, fmt.Errorf("unknown scope %q", scope)
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = int(h.cfg.Suite.WaitTimeout / time.Second)
	}
	return models.SuiteInput{
		Target:         target,
		Checks:         checks,
		Scope:          scope,
		TimeoutSeconds: timeoutSeconds,
	}, nil
}

// Reasons a run request is refused
const (
	rejectInvalid     = "invalid_request"
	rejectNoDatabase  = "database_unavailable"
	rejectStartFailed = "workflow_start_failed"
)

func (h *Handlers) reject(w http.ResponseWriter, reason, msg string, status int) {
	h.metrics.RunRejected(reason)
	http.Error(w, msg, status)
}

func (h *Handlers) failRun(r *http.Request, runID string, cause error) {
	if err := h.db.UpdateSuiteRunStatus(r.Context(), runID, models.StatusFailed, cause.Error()); err != nil {
		h.log.Warn("failed to mark run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func newRun(input models.SuiteInput) *models.SuiteRun {
	return &models.SuiteRun{
		TargetName:  input.Target.Name,
		FrontendURL: input.Target.FrontendURL,
		BackendURL:  input.Target.BackendURL,
		Scope:       input.Scope,
		Status:      models.StatusPending,
	}
}

// decodeBody accepts an empty body as the zero request
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
