package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/login-e2e-go/pkg/models"
	"dev/bravebird/login-e2e-go/pkg/suite"
)

// Activity names, matching the methods of activities.Activities
const (
	OpenSessionActivity       = "OpenSessionActivity"
	RunCheckActivity          = "RunCheckActivity"
	TakeScreenshotActivity    = "TakeScreenshotActivity"
	CloseSessionActivity      = "CloseSessionActivity"
	RecordCheckResultActivity = "RecordCheckResultActivity"
	UpdateRunStatusActivity   = "UpdateRunStatusActivity"
)

// Non-retryable application error types
const (
	SessionNotFoundError = "SessionNotFoundError"
	UnknownCheckError    = "UnknownCheckError"
)

// ProgressQuery returns the SuiteResult collected so far
const ProgressQuery = "getProgress"

// SuiteWorkflowID is the workflow ID used for the run with runID
func SuiteWorkflowID(runID string) string {
	return "login-suite-" + runID
}

// LoginSuiteWorkflow runs the login checks against one target
func LoginSuiteWorkflow(ctx workflow.Context, input models.SuiteInput) (models.SuiteResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting login suite workflow", "runID", input.RunID, "frontend", input.Target.FrontendURL, "scope", input.Scope)

	result := models.SuiteResult{
		RunID:        input.RunID,
		Status:       models.StatusRunning,
		CheckResults: make([]models.CheckResult, 0, 8),
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.SuiteResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)
	if input.TimeoutSeconds <= 0 {
		input.TimeoutSeconds = int(suite.DefaultTimeout / time.Second)
	}
	if input.Scope == "" {
		input.Scope = models.ScopeCheck
	}

	ctx = workflow.WithActivityOptions(ctx, activityOptions(input.TimeoutSeconds))
	// bookkeeping must still happen after the run is canceled
	cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)

	finish := func(status models.RunStatus, msg string) (models.SuiteResult, error) {
		result.Status = status
		result.ErrorMessage = msg
		result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()

		err := workflow.ExecuteActivity(cleanupCtx, UpdateRunStatusActivity, RunStatusInput{
			RunID:        input.RunID,
			Status:       status,
			ErrorMessage: msg,
		}).Get(cleanupCtx, nil)
		if err != nil {
			logger.Warn("Failed to record final run status", "error", err)
		}

		logger.Info("Workflow completed", "status", status, "duration", result.TotalDuration)
		return result, nil
	}

	err = workflow.ExecuteActivity(ctx, UpdateRunStatusActivity, RunStatusInput{
		RunID:  input.RunID,
		Status: models.StatusRunning,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("Failed to mark run as running", "error", err)
	}

	checks, err := suite.Lookup(input.Checks)
	if err != nil {
		return finish(models.StatusFailed, err.Error())
	}

	sessions := &sessionScope{scope: input.Scope, cleanupCtx: cleanupCtx}
	defer sessions.closeShared()

	for i, check := range checks {
		if ctx.Err() != nil {
			return finish(models.StatusCanceled, "run canceled")
		}
		logger.Info("Executing check", "sequence", i+1, "check", check.Name)

		cr := executeCheck(ctx, sessions, input, check, i+1)
		if ctx.Err() != nil && cr.Status != models.StatusSuccess {
			return finish(models.StatusCanceled, "run canceled")
		}

		err := workflow.ExecuteActivity(ctx, RecordCheckResultActivity, cr).Get(ctx, nil)
		if err != nil {
			logger.Warn("Failed to record check result", "check", check.Name, "error", err)
		}
		result.CheckResults = append(result.CheckResults, cr)
	}

	if result.Passed() {
		return finish(models.StatusSuccess, "")
	}
	return finish(models.StatusFailed, failureSummary(result.CheckResults))
}

func activityOptions(timeoutSeconds int) workflow.ActivityOptions {
	wait := time.Duration(timeoutSeconds) * time.Second
	return workflow.ActivityOptions{
		// a check performs a handful of bounded waits
		StartToCloseTimeout: 6*wait + 30*time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{SessionNotFoundError, UnknownCheckError},
		},
	}
}

// executeCheck runs one check, opening a session first when it needs one
func executeCheck(ctx workflow.Context, sessions *sessionScope, input models.SuiteInput, check suite.Check, seq int) models.CheckResult {
	var sessionID string
	if check.NeedsBrowser {
		id, err := sessions.acquire(ctx)
		if err != nil {
			return failedCheck(ctx, input.RunID, check.Name, seq, "could not open browser session: "+activityMessage(err))
		}
		sessionID = id
		defer sessions.release(id)
	}

	var cr models.CheckResult
	err := workflow.ExecuteActivity(ctx, RunCheckActivity, CheckInput{
		RunID:          input.RunID,
		SessionID:      sessionID,
		Check:          check.Name,
		Sequence:       seq,
		Target:         input.Target,
		TimeoutSeconds: input.TimeoutSeconds,
	}).Get(ctx, &cr)
	if err != nil {
		return failedCheck(ctx, input.RunID, check.Name, seq, activityMessage(err))
	}

	if cr.Status == models.StatusFailed && sessionID != "" {
		var screenshotPath string
		err := workflow.ExecuteActivity(ctx, TakeScreenshotActivity, ScreenshotInput{
			SessionID: sessionID,
			RunID:     input.RunID,
			Check:     check.Name,
		}).Get(ctx, &screenshotPath)
		if err == nil {
			cr.ScreenshotPath = screenshotPath
		}
	}
	return cr
}

func failedCheck(ctx workflow.Context, runID, check string, seq int, msg string) models.CheckResult {
	now := workflow.Now(ctx)
	return models.CheckResult{
		RunID:      runID,
		Check:      check,
		Sequence:   seq,
		Status:     models.StatusFailed,
		Message:    msg,
		ExecutedAt: &now,
	}
}

// activityMessage strips the activity envelope from err
func activityMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}

func failureSummary(results []models.CheckResult) string {
	failed := 0
	for _, cr := range results {
		if cr.Status == models.StatusFailed {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d checks failed", failed, len(results))
}

// sessionScope hands out browser sessions according to the run's scope.
// Suite scope opens one session on first use and keeps it, check scope
// opens and closes a session around every browser check.
type sessionScope struct {
	scope      models.SessionScope
	cleanupCtx workflow.Context

	shared    string
	sharedErr error
}

func (s *sessionScope) acquire(ctx workflow.Context) (string, error) {
	if s.scope == models.ScopeSuite {
		if s.shared != "" || s.sharedErr != nil {
			return s.shared, s.sharedErr
		}
	}

	var info SessionInfo
	err := workflow.ExecuteActivity(ctx, OpenSessionActivity).Get(ctx, &info)
	if s.scope == models.ScopeSuite {
		s.shared, s.sharedErr = info.SessionID, err
	}
	if err != nil {
		return "", err
	}
	return info.SessionID, nil
}

func (s *sessionScope) release(id string) {
	if s.scope == models.ScopeSuite {
		return
	}
	s.close(id)
}

func (s *sessionScope) closeShared() {
	if s.shared != "" {
		s.close(s.shared)
	}
}

func (s *sessionScope) close(id string) {
	err := workflow.ExecuteActivity(s.cleanupCtx, CloseSessionActivity, id).Get(s.cleanupCtx, nil)
	if err != nil {
		workflow.GetLogger(s.cleanupCtx).Warn("Failed to close browser session", "sessionID", id, "error", err)
	}
}

// SessionInfo identifies a browser session held by a worker
type SessionInfo struct {
	SessionID string `json:"session_id"`
}

// CheckInput is the input for executing a single check
type CheckInput struct {
	RunID          string        `json:"run_id"`
	SessionID      string        `json:"session_id,omitempty"`
	Check          string        `json:"check"`
	Sequence       int           `json:"sequence"`
	Target         models.Target `json:"target"`
	TimeoutSeconds int           `json:"timeout_seconds"`
}

// ScreenshotInput is the input for taking a screenshot
type ScreenshotInput struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	Check     string `json:"check"`
}

// RunStatusInput is the input for updating the stored run status
type RunStatusInput struct {
	RunID        string           `json:"run_id"`
	Status       models.RunStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// ParallelSuiteInput represents input for running the suite against several targets
type ParallelSuiteInput struct {
	Runs []models.SuiteInput `json:"runs"`
}

// ParallelSuiteResult represents the result of parallel execution
type ParallelSuiteResult struct {
	Results []models.SuiteResult `json:"results"`
}

// ParallelLoginSuiteWorkflow runs the suite against every target at once,
// one child workflow per run
func ParallelLoginSuiteWorkflow(ctx workflow.Context, input ParallelSuiteInput) (ParallelSuiteResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting parallel login suite", "runCount", len(input.Runs))

	result := ParallelSuiteResult{
		Results: make([]models.SuiteResult, len(input.Runs)),
	}

	// Execute child workflows in parallel using selectors
	selector := workflow.NewSelector(ctx)

	for i, run := range input.Runs {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: SuiteWorkflowID(run.RunID),
		})
		future := workflow.ExecuteChildWorkflow(childCtx, LoginSuiteWorkflow, run)

		idx, runID := i, run.RunID
		selector.AddFuture(future, func(f workflow.Future) {
			var childResult models.SuiteResult
			if err := f.Get(ctx, &childResult); err != nil {
				childResult = models.SuiteResult{
					RunID:        runID,
					Status:       models.StatusFailed,
					ErrorMessage: err.Error(),
				}
			}
			result.Results[idx] = childResult
		})
	}

	// Wait for all child workflows to complete
	for range input.Runs {
		selector.Select(ctx)
	}

	logger.Info("Parallel workflow completed", "totalRuns", len(input.Runs))
	return result, nil
}
