package activities

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/metrics"
	"dev/bravebird/login-e2e-go/pkg/models"
	"dev/bravebird/login-e2e-go/pkg/suite"
	"dev/bravebird/login-e2e-go/pkg/temporal/workflows"
)

// RunStore persists what the workflow reports
type RunStore interface {
	CreateCheckResult(ctx context.Context, result *models.CheckResult) error
	UpdateSuiteRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
}

// SessionPool manages browser sessions
type SessionPool struct {
	sessions map[string]*SessionData
	mu       sync.RWMutex
}

// SessionData holds data for a browser session
type SessionData struct {
	Session   browser.Session
	CreatedAt time.Time
}

// NewSessionPool creates an empty pool
func NewSessionPool() *SessionPool {
	return &SessionPool{sessions: make(map[string]*SessionData)}
}

func (p *SessionPool) put(session browser.Session) string {
	id := uuid.New().String()
	p.mu.Lock()
	p.sessions[id] = &SessionData{Session: session, CreatedAt: time.Now()}
	p.mu.Unlock()
	return id
}

func (p *SessionPool) get(id string) (browser.Session, error) {
	p.mu.RLock()
	data, ok := p.sessions[id]
	p.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("browser session not found: %s", id)
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), workflows.SessionNotFoundError, err)
	}
	return data.Session, nil
}

func (p *SessionPool) remove(id string) browser.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.sessions[id]
	if !ok {
		return nil
	}
	delete(p.sessions, id)
	return data.Session
}

// Len returns the number of open sessions
func (p *SessionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Activities holds activity implementations
type Activities struct {
	Opener        browser.Opener
	Store         RunStore
	Metrics       *metrics.Recorder
	ScreenshotDir string
	HTTPClient    *http.Client
	Log           *zap.Logger
	Pool          *SessionPool
}

// NewActivities creates new activities. store and recorder may be nil.
func NewActivities(opener browser.Opener, store RunStore, recorder *metrics.Recorder, screenshotDir string, log *zap.Logger) *Activities {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activities{
		Opener:        opener,
		Store:         store,
		Metrics:       recorder,
		ScreenshotDir: screenshotDir,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		Log:           log,
		Pool:          NewSessionPool(),
	}
}

// OpenSessionActivity opens a browser session and keeps it in the pool
func (a *Activities) OpenSessionActivity(ctx context.Context) (workflows.SessionInfo, error) {
	logger := activity.GetLogger(ctx)

	session, err := a.Opener(ctx)
	if err != nil {
		return workflows.SessionInfo{}, fmt.Errorf("failed to open browser session: %w", err)
	}

	sessionID := a.Pool.put(session)
	logger.Info("Browser session created", "sessionID", sessionID)

	return workflows.SessionInfo{SessionID: sessionID}, nil
}

// CloseSessionActivity closes a browser session
func (a *Activities) CloseSessionActivity(ctx context.Context, sessionID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Closing browser session", "sessionID", sessionID)

	session := a.Pool.remove(sessionID)
	if session == nil {
		return nil // Already closed
	}
	if err := session.Close(); err != nil {
		logger.Warn("Failed to close browser session", "sessionID", sessionID, "error", err)
	}
	return nil
}

// RunCheckActivity executes a single check. A failed assertion is reported
// in the result; only infrastructure problems return an error.
func (a *Activities) RunCheckActivity(ctx context.Context, input workflows.CheckInput) (models.CheckResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Executing check", "check", input.Check, "sequence", input.Sequence)

	checks, err := suite.Lookup([]string{input.Check})
	if err != nil {
		return models.CheckResult{}, temporal.NewNonRetryableApplicationError(err.Error(), workflows.UnknownCheckError, err)
	}
	check := checks[0]

	var session browser.Session
	if check.NeedsBrowser {
		session, err = a.Pool.get(input.SessionID)
		if err != nil {
			return models.CheckResult{}, err
		}
	}

	opts := []suite.RunnerOption{suite.WithLogger(a.Log.With(zap.String("run_id", input.RunID)))}
	if input.TimeoutSeconds > 0 {
		opts = append(opts, suite.WithTimeout(time.Duration(input.TimeoutSeconds)*time.Second))
	}
	if a.HTTPClient != nil {
		opts = append(opts, suite.WithHTTPClient(a.HTTPClient))
	}
	runner := suite.NewRunner(a.Opener, input.Target, opts...)

	result := runner.RunCheck(ctx, session, check)
	result.RunID = input.RunID
	result.Sequence = input.Sequence

	// Heartbeat for long-running activities
	activity.RecordHeartbeat(ctx, fmt.Sprintf("Completed check %s", input.Check))

	return result, nil
}

// TakeScreenshotActivity takes a screenshot. Drivers that cannot capture
// one yield an empty path.
func (a *Activities) TakeScreenshotActivity(ctx context.Context, input workflows.ScreenshotInput) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Taking screenshot", "sessionID", input.SessionID, "check", input.Check)

	session, err := a.Pool.get(input.SessionID)
	if err != nil {
		return "", err
	}

	data, err := session.Screenshot(ctx)
	if errors.Is(err, browser.ErrUnsupported) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}

	dir := a.ScreenshotDir
	if input.RunID != "" {
		dir = filepath.Join(dir, input.RunID)
	}
	return suite.WriteScreenshot(dir, input.Check, data)
}

// RecordCheckResultActivity stores a check result and counts it
func (a *Activities) RecordCheckResultActivity(ctx context.Context, result models.CheckResult) error {
	if a.Metrics != nil {
		a.Metrics.ObserveCheck(result)
	}
	if a.Store == nil || result.RunID == "" {
		return nil
	}
	if err := a.Store.CreateCheckResult(ctx, &result); err != nil {
		return fmt.Errorf("failed to record check %s: %w", result.Check, err)
	}
	return nil
}

// UpdateRunStatusActivity stores the run status and counts finished runs
func (a *Activities) UpdateRunStatusActivity(ctx context.Context, input workflows.RunStatusInput) error {
	if a.Store != nil && input.RunID != "" {
		if err := a.Store.UpdateSuiteRunStatus(ctx, input.RunID, input.Status, input.ErrorMessage); err != nil {
			return fmt.Errorf("failed to update run %s: %w", input.RunID, err)
		}
	}

	// counted once the update sticks so retries do not count again
	if a.Metrics != nil {
		if input.Status == models.StatusRunning {
			a.Metrics.RunStarted(input.RunID)
		} else if input.Status.Terminal() {
			a.Metrics.RunFinished(input.RunID, input.Status)
		}
	}
	return nil
}

// Close closes every session still in the pool
func (p *SessionPool) Close(log *zap.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, data := range p.sessions {
		if err := data.Session.Close(); err != nil {
			log.Warn("failed to close session", zap.String("session_id", id), zap.Error(err))
		}
		delete(p.sessions, id)
	}
}
