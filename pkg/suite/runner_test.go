package suite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/loginapp/loginapptest"
	"dev/bravebird/login-e2e-go/pkg/models"
)

// countingOpener opens http sessions and counts them
type countingOpener struct {
	opened atomic.Int32
	closed atomic.Int32
	t      *testing.T
}

type countedSession struct {
	browser.Session
	o *countingOpener
}

func (s *countedSession) Close() error {
	s.o.closed.Add(1)
	return s.Session.Close()
}

func (o *countingOpener) open(ctx context.Context) (browser.Session, error) {
	s, err := browser.Open(ctx, browser.Options{Driver: browser.DriverHTTP}, zaptest.NewLogger(o.t))
	if err != nil {
		return nil, err
	}
	o.opened.Add(1)
	return &countedSession{Session: s, o: o}, nil
}

func TestRunnerAllChecksPass(t *testing.T) {
	for _, scope := range []models.SessionScope{models.ScopeCheck, models.ScopeSuite} {
		t.Run(string(scope), func(t *testing.T) {
			app := loginapptest.Start(t)
			opener := &countingOpener{t: t}

			var observed []string
			runner := NewRunner(opener.open, app.Target(),
				WithScope(scope),
				WithTimeout(2*time.Second),
				WithLogger(zaptest.NewLogger(t)),
				WithObserver(ObserverFunc(func(cr models.CheckResult) {
					observed = append(observed, cr.Check)
				})))

			result, err := runner.Run(context.Background(), Checks())
			require.NoError(t, err)

			for _, cr := range result.CheckResults {
				assert.Equal(t, models.StatusSuccess, cr.Status, "%s: %s", cr.Check, cr.Message)
			}
			assert.Equal(t, models.StatusSuccess, result.Status)
			assert.True(t, result.Passed())
			assert.Equal(t, Names(Checks()), observed)

			for i, cr := range result.CheckResults {
				assert.Equal(t, i+1, cr.Sequence)
				assert.NotNil(t, cr.ExecutedAt)
			}

			if scope == models.ScopeSuite {
				assert.Equal(t, int32(1), opener.opened.Load())
			} else {
				// backend_health runs without a browser
				assert.Equal(t, int32(len(Checks())-1), opener.opened.Load())
			}
			assert.Equal(t, opener.opened.Load(), opener.closed.Load())
		})
	}
}

const brokenPage = `<!DOCTYPE html>
<html><body>
<h1>Sign in</h1>
<form method="post" action="/login" class="login-form">
  <input id="username" name="username" type="email">
  <input id="password" name="password" type="password">
</form>
</body></html>`

func TestRunnerReportsFailures(t *testing.T) {
	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			// every login attempt lands on a page without feedback
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		fmt.Fprint(w, brokenPage)
	}))
	t.Cleanup(frontend.Close)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(backend.Close)

	target := models.Target{
		FrontendURL:   frontend.URL + "/",
		BackendURL:    backend.URL,
		Username:      "admin",
		Password:      "admin123",
		WrongPassword: "nope",
	}
	opener := &countingOpener{t: t}
	runner := NewRunner(opener.open, target, WithTimeout(300*time.Millisecond), WithLogger(zaptest.NewLogger(t)))

	result, err := runner.Run(context.Background(), Checks())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.False(t, result.Passed())

	byName := make(map[string]models.CheckResult)
	for _, cr := range result.CheckResults {
		byName[cr.Check] = cr
	}

	tests := []struct {
		check   string
		status  models.RunStatus
		message string
	}{
		{CheckBackendHealth, models.StatusFailed, "status 503"},
		{CheckLoginPageLoads, models.StatusFailed, `does not contain "Iniciar Sesión"`},
		{CheckFormElementsExist, models.StatusFailed, `attribute type is "email", want "text"`},
		{CheckSuccessfulLogin, models.StatusFailed, "login button not found"},
		{CheckWrongPassword, models.StatusFailed, "login button not found"},
		{CheckEmptyFields, models.StatusFailed, "login button did not appear"},
		{CheckLogout, models.StatusFailed, "login button not found"},
		{CheckUsernameAttributes, models.StatusFailed, `attribute type is "email"`},
	}
	for _, tt := range tests {
		t.Run(tt.check, func(t *testing.T) {
			cr, ok := byName[tt.check]
			require.True(t, ok)
			assert.Equal(t, tt.status, cr.Status)
			assert.Contains(t, cr.Message, tt.message)
		})
	}
	assert.Equal(t, opener.opened.Load(), opener.closed.Load())
}

func TestRunnerOpenerFailure(t *testing.T) {
	app := loginapptest.Start(t)
	boom := errors.New("grid unavailable")

	var attempts int
	opener := func(context.Context) (browser.Session, error) {
		attempts++
		return nil, boom
	}

	checks, err := Lookup([]string{CheckBackendHealth, CheckLoginPageLoads, CheckLogout})
	require.NoError(t, err)

	for _, scope := range []models.SessionScope{models.ScopeCheck, models.ScopeSuite} {
		t.Run(string(scope), func(t *testing.T) {
			attempts = 0
			result, err := NewRunner(opener, app.Target(), WithScope(scope)).Run(context.Background(), checks)
			require.NoError(t, err)

			require.Len(t, result.CheckResults, 3)
			assert.Equal(t, models.StatusSuccess, result.CheckResults[0].Status)
			for _, cr := range result.CheckResults[1:] {
				assert.Equal(t, models.StatusFailed, cr.Status)
				assert.Contains(t, cr.Message, "grid unavailable")
			}
			assert.Equal(t, models.StatusFailed, result.Status)

			if scope == models.ScopeSuite {
				assert.Equal(t, 1, attempts)
			} else {
				assert.Equal(t, 2, attempts)
			}
		})
	}
}

func TestRunnerCanceled(t *testing.T) {
	app := loginapptest.Start(t)
	opener := &countingOpener{t: t}

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(opener.open, app.Target(), WithObserver(ObserverFunc(func(cr models.CheckResult) {
		if cr.Check == CheckLoginPageLoads {
			cancel()
		}
	})))

	result, err := runner.Run(ctx, Checks())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusCanceled, result.Status)
	assert.Len(t, result.CheckResults, 2)
	assert.Equal(t, opener.opened.Load(), opener.closed.Load())
}

func TestLookup(t *testing.T) {
	all, err := Lookup(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"backend_health",
		"login_page_loads",
		"login_form_elements_exist",
		"successful_login",
		"failed_login_wrong_password",
		"failed_login_empty_fields",
		"logout",
		"username_field_attributes",
	}, Names(all))

	subset, err := Lookup([]string{CheckLogout, CheckBackendHealth})
	require.NoError(t, err)
	assert.Equal(t, []string{CheckLogout, CheckBackendHealth}, Names(subset))

	_, err = Lookup([]string{"made_up"})
	assert.ErrorContains(t, err, `unknown check "made_up"`)
}

func TestFailureError(t *testing.T) {
	cause := fmt.Errorf("wrapped: %w", browser.ErrTimeout)
	f := &Failure{Check: "logout", Message: "login form did not appear", Err: cause}

	assert.Equal(t, "logout: login form did not appear: wrapped: condition wait timed out", f.Error())
	assert.ErrorIs(t, f, browser.ErrTimeout)
	assert.Equal(t, "no check", (&Failure{Message: "no check"}).Error())
}

type stubSession struct {
	browser.Session
	shot []byte
}

func (s *stubSession) Screenshot(context.Context) ([]byte, error) { return s.shot, nil }

func TestRunCheckSavesScreenshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(nil, models.Target{}, WithScreenshots(dir))
	session := &stubSession{shot: []byte("png")}

	failing := Check{Name: "always_fails", NeedsBrowser: true, Run: func(context.Context, *Env) error {
		return failf(nil, "nope")
	}}
	cr := runner.RunCheck(context.Background(), session, failing)
	assert.Equal(t, models.StatusFailed, cr.Status)
	assert.Equal(t, "nope", cr.Message)
	require.NotEmpty(t, cr.ScreenshotPath)
	assert.FileExists(t, cr.ScreenshotPath)

	passing := Check{Name: "always_passes", NeedsBrowser: true, Run: func(context.Context, *Env) error { return nil }}
	cr = runner.RunCheck(context.Background(), session, passing)
	assert.Equal(t, models.StatusSuccess, cr.Status)
	assert.Empty(t, cr.ScreenshotPath)
}
