package models

import (
	"time"
)

// ==================== Target Types ====================

// Target describes the frontend/backend pair a suite runs against
type Target struct {
	Name          string `json:"name,omitempty" yaml:"name"`
	FrontendURL   string `json:"frontend_url" yaml:"frontend_url"`
	BackendURL    string `json:"backend_url" yaml:"backend_url"`
	Username      string `json:"username" yaml:"username"`
	Password      string `json:"password,omitempty" yaml:"password"`
	WrongPassword string `json:"wrong_password,omitempty" yaml:"wrong_password"`
}

// SessionScope controls how long a browser session lives during a run
type SessionScope string

const (
	ScopeCheck SessionScope = "check" // New session for every check
	ScopeSuite SessionScope = "suite" // One session shared by the whole run
)

// Valid reports whether the scope is one of the known values
func (s SessionScope) Valid() bool {
	return s == ScopeCheck || s == ScopeSuite
}

// ==================== User Types ====================

// User is an account of the demo login application
type User struct {
	ID           int64  `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
}

// ==================== Run Types ====================

// RunStatus represents the status of a suite run or a single check
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusSkipped  RunStatus = "skipped"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further updates are expected for this status
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// SuiteRun represents a single execution of the login suite
type SuiteRun struct {
	ID                 string       `json:"id" db:"id"`
	TemporalWorkflowID string       `json:"temporal_workflow_id,omitempty" db:"temporal_workflow_id"`
	TemporalRunID      string       `json:"temporal_run_id,omitempty" db:"temporal_run_id"`
	TargetName         string       `json:"target_name,omitempty" db:"target_name"`
	FrontendURL        string       `json:"frontend_url" db:"frontend_url"`
	BackendURL         string       `json:"backend_url" db:"backend_url"`
	Scope              SessionScope `json:"scope" db:"scope"`
	Status             RunStatus    `json:"status" db:"status"`
	StartedAt          *time.Time   `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time   `json:"completed_at" db:"completed_at"`
	ErrorMessage       string       `json:"error_message,omitempty" db:"error_message"`

	// Computed fields
	CheckResults []CheckResult `json:"check_results,omitempty"`
}

// CheckResult represents the outcome of a single check
type CheckResult struct {
	ID             string     `json:"id" db:"id"`
	RunID          string     `json:"run_id" db:"run_id"`
	Check          string     `json:"check" db:"check_name"`
	Sequence       int        `json:"sequence" db:"sequence"`
	Status         RunStatus  `json:"status" db:"status"`
	Message        string     `json:"message,omitempty" db:"message"`
	ScreenshotPath string     `json:"screenshot_path,omitempty" db:"screenshot_path"`
	ExecutedAt     *time.Time `json:"executed_at" db:"executed_at"`
	Duration       int64      `json:"duration_ms" db:"duration_ms"`
}

// ==================== Workflow Types ====================

// SuiteInput represents input for executing the suite as a workflow
type SuiteInput struct {
	RunID          string       `json:"run_id"`
	Target         Target       `json:"target"`
	Checks         []string     `json:"checks,omitempty"`
	Scope          SessionScope `json:"scope"`
	TimeoutSeconds int          `json:"timeout_seconds"`
}

// SuiteResult represents the result of a suite execution
type SuiteResult struct {
	RunID         string        `json:"run_id"`
	Status        RunStatus     `json:"status"`
	CheckResults  []CheckResult `json:"check_results"`
	TotalDuration int64         `json:"total_duration_ms"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// Passed reports whether every executed check succeeded
func (r SuiteResult) Passed() bool {
	if len(r.CheckResults) == 0 {
		return false
	}
	for _, cr := range r.CheckResults {
		if cr.Status != StatusSuccess && cr.Status != StatusSkipped {
			return false
		}
	}
	return true
}

// ==================== API Request/Response Types ====================

// RunRequest represents a request to start a suite run
type RunRequest struct {
	// Target overrides TargetName when set
	Target         *Target      `json:"target,omitempty"`
	TargetName     string       `json:"target_name,omitempty"`
	Checks         []string     `json:"checks,omitempty"`
	Scope          SessionScope `json:"scope,omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`
}

// ParallelRunRequest starts one run per configured target
type ParallelRunRequest struct {
	// Targets names configured targets; empty selects all of them
	Targets        []string     `json:"targets,omitempty"`
	Checks         []string     `json:"checks,omitempty"`
	Scope          SessionScope `json:"scope,omitempty"`
	TimeoutSeconds int          `json:"timeout_seconds,omitempty"`
}

// RunStarted is returned when a run has been handed to Temporal
type RunStarted struct {
	RunID              string    `json:"run_id"`
	TemporalWorkflowID string    `json:"temporal_workflow_id"`
	TemporalRunID      string    `json:"temporal_run_id"`
	Status             RunStatus `json:"status"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// RunUpdate is the payload of a run_update message
type RunUpdate struct {
	RunID        string        `json:"run_id"`
	Status       RunStatus     `json:"status"`
	CheckResults []CheckResult `json:"check_results"`
}
