package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/login-e2e-go/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DB represents the database connection
type DB struct {
	conn   *sql.DB
	driver string
}

// New creates a new database connection
func New(driver, dsn string) (*DB, error) {
	if driver != DriverMySQL && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// one writer at a time, and in-memory databases live per connection
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}

	return &DB{conn: conn, driver: driver}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the tables when they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	statements := sqliteSchema
	if db.driver == DriverMySQL {
		statements = mysqlSchema
	}
	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// ==================== Suite Runs ====================

// CreateSuiteRun creates a new suite run
func (db *DB) CreateSuiteRun(ctx context.Context, run *models.SuiteRun) error {
	query := `
		INSERT INTO suite_runs (id, temporal_workflow_id, temporal_run_id, target_name, frontend_url,
		                        backend_url, scope, status, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.StatusPending
	}
	if run.StartedAt == nil {
		now := time.Now()
		run.StartedAt = &now
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.TargetName,
		run.FrontendURL,
		run.BackendURL,
		run.Scope,
		run.Status,
		toMillis(run.StartedAt),
		toMillis(run.CompletedAt),
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetSuiteRun retrieves a suite run by ID
func (db *DB) GetSuiteRun(ctx context.Context, id string) (*models.SuiteRun, error) {
	query := `
		SELECT id, temporal_workflow_id, temporal_run_id, target_name, frontend_url,
		       backend_url, scope, status, started_at, completed_at, error_message
		FROM suite_runs
		WHERE id = ?
	`

	run, err := scanSuiteRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListSuiteRuns retrieves the most recent runs, newest first
func (db *DB) ListSuiteRuns(ctx context.Context, limit int) ([]models.SuiteRun, error) {
	query := `
		SELECT id, temporal_workflow_id, temporal_run_id, target_name, frontend_url,
		       backend_url, scope, status, started_at, completed_at, error_message
		FROM suite_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SuiteRun
	for rows.Next() {
		run, err := scanSuiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// UpdateSuiteRunStatus updates the status of a suite run. Terminal statuses
// also stamp the completion time.
func (db *DB) UpdateSuiteRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	var (
		res sql.Result
		err error
	)
	if status.Terminal() {
		query := `UPDATE suite_runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`
		res, err = db.conn.ExecContext(ctx, query, status, errorMsg, time.Now().UnixMilli(), id)
	} else {
		query := `UPDATE suite_runs SET status = ?, error_message = ? WHERE id = ?`
		res, err = db.conn.ExecContext(ctx, query, status, errorMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return db.expectRun(ctx, res, id)
}

// SetTemporalIDs records the workflow execution backing a run
func (db *DB) SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error {
	query := `UPDATE suite_runs SET temporal_workflow_id = ?, temporal_run_id = ? WHERE id = ?`

	res, err := db.conn.ExecContext(ctx, query, workflowID, runID, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return db.expectRun(ctx, res, id)
}

// ==================== Check Results ====================

// CreateCheckResult stores the outcome of one check
func (db *DB) CreateCheckResult(ctx context.Context, result *models.CheckResult) error {
	query := `
		INSERT INTO check_results (id, run_id, check_name, seq, status, message,
		                           screenshot_path, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if result.ID == "" {
		result.ID = uuid.New().String()
	}

	_, err := db.conn.ExecContext(ctx, query,
		result.ID,
		result.RunID,
		result.Check,
		result.Sequence,
		result.Status,
		result.Message,
		result.ScreenshotPath,
		toMillis(result.ExecutedAt),
		result.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// GetCheckResults retrieves check results for a run in execution order
func (db *DB) GetCheckResults(ctx context.Context, runID string) ([]models.CheckResult, error) {
	query := `
		SELECT id, run_id, check_name, seq, status, message, screenshot_path, executed_at, duration_ms
		FROM check_results
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []models.CheckResult
	for rows.Next() {
		var (
			result     models.CheckResult
			executedAt sql.NullInt64
		)
		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.Check,
			&result.Sequence,
			&result.Status,
			&result.Message,
			&result.ScreenshotPath,
			&executedAt,
			&result.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		result.ExecutedAt = fromMillis(executedAt)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	return results, nil
}

// ==================== Users ====================

// CreateUser stores an account of the demo application
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`

	res, err := db.conn.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return nil
}

// UserByName retrieves an account by username
func (db *DB) UserByName(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash FROM users WHERE username = ?`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ==================== Helpers ====================

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSuiteRun(row scanner) (*models.SuiteRun, error) {
	var (
		run         models.SuiteRun
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)
	err := row.Scan(
		&run.ID,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.TargetName,
		&run.FrontendURL,
		&run.BackendURL,
		&run.Scope,
		&run.Status,
		&startedAt,
		&completedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = fromMillis(startedAt)
	run.CompletedAt = fromMillis(completedAt)
	return &run, nil
}

// expectRun turns an update that touched no rows into a not found error.
// MySQL reports changed rows, so an update writing the stored values counts
// zero and the run's existence is checked before failing.
func (db *DB) expectRun(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = db.conn.QueryRowContext(ctx, `SELECT 1 FROM suite_runs WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	return nil
}

// Timestamps are stored as unix milliseconds so both drivers share a schema.
func toMillis(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
