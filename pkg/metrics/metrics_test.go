package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/login-e2e-go/pkg/models"
	"dev/bravebird/login-e2e-go/pkg/suite"
)

// Recorder plugs straight into a suite runner
var _ suite.Observer = (*Recorder)(nil)

func TestObserveCheck(t *testing.T) {
	r := NewRecorder()

	r.ObserveCheck(models.CheckResult{Check: "logout", Status: models.StatusSuccess, Duration: 250})
	r.ObserveCheck(models.CheckResult{Check: "logout", Status: models.StatusSuccess, Duration: 120})
	r.ObserveCheck(models.CheckResult{Check: "logout", Status: models.StatusFailed, Duration: 10000})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.checks.WithLabelValues("logout", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checks.WithLabelValues("logout", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.checkDuration))
}

func TestRunLifecycle(t *testing.T) {
	r := NewRecorder()

	r.RunStarted("a")
	r.RunStarted("b")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.activeRuns))

	r.RunFinished("a", models.StatusSuccess)
	r.RunFinished("b", models.StatusFailed)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suiteRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suiteRuns.WithLabelValues("failed")))
}

func TestRunStartedTwice(t *testing.T) {
	r := NewRecorder()

	// a retried status update replays the start
	r.RunStarted("a")
	r.RunStarted("a")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeRuns))

	r.RunFinished("a", models.StatusSuccess)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeRuns))

	// a run started elsewhere never drives the gauge negative
	r.RunFinished("b", models.StatusFailed)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suiteRuns.WithLabelValues("failed")))
}

func TestControlPlaneCounters(t *testing.T) {
	r := NewRecorder()

	r.RunsSubmitted("single", 1)
	r.RunsSubmitted("parallel", 3)
	r.RunCanceled()
	r.RunRejected("invalid_request")
	r.RunRejected("invalid_request")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.submitted.WithLabelValues("single")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.submitted.WithLabelValues("parallel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.canceled))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.rejected.WithLabelValues("invalid_request")))
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.ObserveCheck(models.CheckResult{Check: "backend_health", Status: models.StatusSuccess, Duration: 5})

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `login_e2e_checks_total{check="backend_health",status="success"} 1`)
	assert.Contains(t, body, "login_e2e_check_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")
}
