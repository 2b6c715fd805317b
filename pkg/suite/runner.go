package suite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/models"
)

// Observer receives every check result as soon as it is known
type Observer interface {
	ObserveCheck(result models.CheckResult)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(result models.CheckResult)

func (f ObserverFunc) ObserveCheck(result models.CheckResult) { f(result) }

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithScope sets how long browser sessions live
func WithScope(scope models.SessionScope) RunnerOption {
	return func(r *Runner) { r.scope = scope }
}

// WithTimeout bounds every condition wait
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = timeout }
}

// WithHTTPClient sets the client used by checks that talk to the backend directly
func WithHTTPClient(client *http.Client) RunnerOption {
	return func(r *Runner) { r.http = client }
}

// WithLogger sets the runner's logger
func WithLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// WithObserver adds an observer notified after every check
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithScreenshots saves a screenshot into dir whenever a browser check fails
func WithScreenshots(dir string) RunnerOption {
	return func(r *Runner) { r.screenshotDir = dir }
}

// Runner executes checks sequentially against one target
type Runner struct {
	opener        browser.Opener
	target        models.Target
	scope         models.SessionScope
	timeout       time.Duration
	http          *http.Client
	log           *zap.Logger
	observers     []Observer
	screenshotDir string
}

// NewRunner creates a runner opening browser sessions with opener
func NewRunner(opener browser.Opener, target models.Target, opts ...RunnerOption) *Runner {
	r := &Runner{
		opener:  opener,
		target:  target,
		scope:   models.ScopeCheck,
		timeout: DefaultTimeout,
		http:    http.DefaultClient,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes checks in order. The returned error is non-nil only when ctx
// ends the run early; check failures are reported in the result.
func (r *Runner) Run(ctx context.Context, checks []Check) (models.SuiteResult, error) {
	start := time.Now()
	result := models.SuiteResult{Status: models.StatusRunning}

	r.log.Info("starting suite",
		zap.String("frontend", r.target.FrontendURL),
		zap.String("backend", r.target.BackendURL),
		zap.String("scope", string(r.scope)),
		zap.Int("checks", len(checks)))

	shared := &sharedSession{opener: r.opener}
	defer shared.close(r.log)

	for i, check := range checks {
		if err := ctx.Err(); err != nil {
			result.Status = models.StatusCanceled
			result.ErrorMessage = err.Error()
			result.TotalDuration = time.Since(start).Milliseconds()
			return result, err
		}

		var cr models.CheckResult
		if r.scope == models.ScopeSuite {
			cr = r.runShared(ctx, shared, check)
		} else {
			cr = r.runIsolated(ctx, check)
		}
		cr.Sequence = i + 1

		result.CheckResults = append(result.CheckResults, cr)
		r.observe(cr)
	}

	result.Status = models.StatusSuccess
	if !result.Passed() {
		result.Status = models.StatusFailed
	}
	result.TotalDuration = time.Since(start).Milliseconds()

	r.log.Info("suite finished",
		zap.String("status", string(result.Status)),
		zap.Int64("duration_ms", result.TotalDuration))
	return result, nil
}

// runIsolated gives a browser check its own session
func (r *Runner) runIsolated(ctx context.Context, check Check) models.CheckResult {
	if !check.NeedsBrowser {
		return r.RunCheck(ctx, nil, check)
	}

	session, err := r.opener(ctx)
	if err != nil {
		return r.sessionFailure(check, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			r.log.Warn("failed to close session", zap.String("check", check.Name), zap.Error(err))
		}
	}()

	return r.RunCheck(ctx, session, check)
}

func (r *Runner) runShared(ctx context.Context, shared *sharedSession, check Check) models.CheckResult {
	if !check.NeedsBrowser {
		return r.RunCheck(ctx, nil, check)
	}

	session, err := shared.get(ctx)
	if err != nil {
		return r.sessionFailure(check, err)
	}
	return r.RunCheck(ctx, session, check)
}

// RunCheck executes one check on session, which may be nil for checks that
// do not need a browser.
func (r *Runner) RunCheck(ctx context.Context, session browser.Session, check Check) models.CheckResult {
	log := r.log.With(zap.String("check", check.Name))
	env := &Env{
		Session: session,
		Target:  r.target,
		Timeout: r.timeout,
		HTTP:    r.http,
		Log:     log,
	}

	start := time.Now()
	err := check.Run(ctx, env)
	executed := time.Now()

	cr := models.CheckResult{
		Check:      check.Name,
		Status:     models.StatusSuccess,
		ExecutedAt: &executed,
		Duration:   time.Since(start).Milliseconds(),
	}
	if err == nil {
		log.Info("check passed", zap.Int64("duration_ms", cr.Duration))
		return cr
	}

	var failure *Failure
	if errors.As(err, &failure) && failure.Check == "" {
		failure.Check = check.Name
	}
	cr.Status = models.StatusFailed
	cr.Message = failureMessage(err)
	log.Warn("check failed", zap.String("message", cr.Message), zap.Int64("duration_ms", cr.Duration))

	if session != nil && r.screenshotDir != "" {
		cr.ScreenshotPath = r.saveScreenshot(ctx, session, check.Name)
	}
	return cr
}

func (r *Runner) sessionFailure(check Check, err error) models.CheckResult {
	now := time.Now()
	msg := fmt.Sprintf("could not open browser session: %v", err)
	r.log.Warn("check failed", zap.String("check", check.Name), zap.String("message", msg))
	return models.CheckResult{
		Check:      check.Name,
		Status:     models.StatusFailed,
		Message:    msg,
		ExecutedAt: &now,
	}
}

func (r *Runner) observe(cr models.CheckResult) {
	for _, o := range r.observers {
		o.ObserveCheck(cr)
	}
}

func (r *Runner) saveScreenshot(ctx context.Context, session browser.Session, check string) string {
	data, err := session.Screenshot(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrUnsupported) {
			r.log.Warn("failed to take screenshot", zap.String("check", check), zap.Error(err))
		}
		return ""
	}
	path, err := WriteScreenshot(r.screenshotDir, check, data)
	if err != nil {
		r.log.Warn("failed to save screenshot", zap.String("check", check), zap.Error(err))
		return ""
	}
	return path
}

// WriteScreenshot stores PNG data for check under dir and returns its path
func WriteScreenshot(dir, check string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", check, time.Now().UnixNano()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

func failureMessage(err error) string {
	var failure *Failure
	if errors.As(err, &failure) {
		msg := failure.Message
		if failure.Err != nil {
			msg += ": " + failure.Err.Error()
		}
		return msg
	}
	return err.Error()
}

// sharedSession opens one session on first use and keeps it for the run
type sharedSession struct {
	opener  browser.Opener
	session browser.Session
	err     error
	opened  bool
}

func (s *sharedSession) get(ctx context.Context) (browser.Session, error) {
	if !s.opened {
		s.opened = true
		s.session, s.err = s.opener(ctx)
	}
	return s.session, s.err
}

func (s *sharedSession) close(log *zap.Logger) {
	if s.session == nil {
		return
	}
	if err := s.session.Close(); err != nil {
		log.Warn("failed to close shared session", zap.Error(err))
	}
}
