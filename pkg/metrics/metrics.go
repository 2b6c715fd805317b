// Package metrics exposes suite outcomes in the Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dev/bravebird/login-e2e-go/pkg/models"
)

const namespace = "login_e2e"

// Recorder counts check and suite outcomes on its own registry
type Recorder struct {
	registry      *prometheus.Registry
	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	suiteRuns     *prometheus.CounterVec
	activeRuns    prometheus.Gauge

	// control plane
	submitted *prometheus.CounterVec
	canceled  prometheus.Counter
	rejected  *prometheus.CounterVec

	mu     sync.Mutex
	active map[string]bool
}

// NewRecorder creates a Recorder. Process and Go runtime collectors are
// registered alongside the suite metrics.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		active:   make(map[string]bool),
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Login suite checks executed, by check and outcome.",
		}, []string{"check", "status"}),
		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Time spent executing a single check.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"check"}),
		suiteRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suite_runs_total",
			Help:      "Completed suite runs, by final status.",
		}, []string{"status"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suite_runs_active",
			Help:      "Suite runs currently executing.",
		}),
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_submitted_total",
			Help:      "Suite runs handed to Temporal by the API, by kind.",
		}, []string{"kind"}),
		canceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_canceled_total",
			Help:      "Suite runs canceled through the API.",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_requests_rejected_total",
			Help:      "Run requests the API refused, by reason.",
		}, []string{"reason"}),
	}
}

// ObserveCheck records one check result
func (r *Recorder) ObserveCheck(result models.CheckResult) {
	r.checks.WithLabelValues(result.Check, string(result.Status)).Inc()
	r.checkDuration.WithLabelValues(result.Check).Observe(float64(result.Duration) / 1000)
}

// RunStarted marks runID as executing. Repeated calls for one run count once.
func (r *Recorder) RunStarted(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[runID] {
		return
	}
	r.active[runID] = true
	r.activeRuns.Inc()
}

// RunFinished records the final status of runID. The active gauge only
// drops for runs this recorder saw start.
func (r *Recorder) RunFinished(runID string, status models.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[runID] {
		delete(r.active, runID)
		r.activeRuns.Dec()
	}
	r.suiteRuns.WithLabelValues(string(status)).Inc()
}

// RunsSubmitted counts n runs started through the API. kind is "single" or
// "parallel".
func (r *Recorder) RunsSubmitted(kind string, n int) {
	r.submitted.WithLabelValues(kind).Add(float64(n))
}

// RunCanceled counts a run canceled through the API
func (r *Recorder) RunCanceled() {
	r.canceled.Inc()
}

// RunRejected counts a run request the API refused
func (r *Recorder) RunRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

// Registry returns the registry holding the recorder's collectors
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
