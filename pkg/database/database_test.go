package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/login-e2e-go/pkg/loginapp"
	"dev/bravebird/login-e2e-go/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New("postgres", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestSuiteRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &models.SuiteRun{
		TargetName:  "local",
		FrontendURL: "http://localhost:3000",
		BackendURL:  "http://localhost:5000",
		Scope:       models.ScopeCheck,
	}
	require.NoError(t, db.CreateSuiteRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.StatusPending, run.Status)
	require.NotNil(t, run.StartedAt)

	got, err := db.GetSuiteRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.FrontendURL, got.FrontendURL)
	assert.Equal(t, models.ScopeCheck, got.Scope)
	assert.Equal(t, run.StartedAt.UnixMilli(), got.StartedAt.UnixMilli())
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, db.SetTemporalIDs(ctx, run.ID, "login-suite-"+run.ID, "temporal-run"))
	require.NoError(t, db.UpdateSuiteRunStatus(ctx, run.ID, models.StatusRunning, ""))

	got, err = db.GetSuiteRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, "temporal-run", got.TemporalRunID)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, db.UpdateSuiteRunStatus(ctx, run.ID, models.StatusFailed, "1 of 8 checks failed"))

	got, err = db.GetSuiteRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "1 of 8 checks failed", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestGetSuiteRunNotFound(t *testing.T) {
	db := newTestDB(t)

	run, err := db.GetSuiteRun(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, run)
}

func TestUpdateMissingRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assert.Error(t, db.UpdateSuiteRunStatus(ctx, "missing", models.StatusSuccess, ""))
	assert.Error(t, db.SetTemporalIDs(ctx, "missing", "wf", "run"))
}

func TestListSuiteRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.CreateSuiteRun(ctx, &models.SuiteRun{
			ID:          string(rune('a' + i)),
			FrontendURL: "http://localhost:3000",
			BackendURL:  "http://localhost:5000",
			Scope:       models.ScopeSuite,
			StartedAt:   &started,
		}))
	}

	runs, err := db.ListSuiteRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = db.ListSuiteRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestCheckResults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &models.SuiteRun{FrontendURL: "http://f", BackendURL: "http://b", Scope: models.ScopeCheck}
	require.NoError(t, db.CreateSuiteRun(ctx, run))

	now := time.Now()
	for i, name := range []string{"logout", "backend_health"} {
		require.NoError(t, db.CreateCheckResult(ctx, &models.CheckResult{
			RunID:      run.ID,
			Check:      name,
			Sequence:   2 - i,
			Status:     models.StatusSuccess,
			ExecutedAt: &now,
			Duration:   int64(10 * (i + 1)),
		}))
	}

	results, err := db.GetCheckResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "backend_health", results[0].Check)
	assert.Equal(t, 1, results[0].Sequence)
	assert.Equal(t, int64(20), results[0].Duration)
	assert.NotEmpty(t, results[0].ID)
	assert.Equal(t, now.UnixMilli(), results[1].ExecutedAt.UnixMilli())

	results, err = db.GetCheckResults(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCheckResultRequiresRun(t *testing.T) {
	db := newTestDB(t)

	err := db.CreateCheckResult(context.Background(), &models.CheckResult{
		RunID:  "missing",
		Check:  "logout",
		Status: models.StatusFailed,
	})
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &models.User{Username: "admin", Email: "admin@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)

	got, err := db.UserByName(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, user.ID, got.ID)

	got, err = db.UserByName(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, db.CreateUser(ctx, &models.User{Username: "admin", PasswordHash: "x"}))
}

func TestSeedDemoUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, loginapp.Seed(ctx, db))
	// a second seed leaves existing accounts alone
	require.NoError(t, loginapp.Seed(ctx, db))

	user, err := db.UserByName(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, loginapp.CheckPassword(user.PasswordHash, "admin123"))
}

// rowsResult reports a fixed number of affected rows
type rowsResult struct {
	n   int64
	err error
}

func (r rowsResult) LastInsertId() (int64, error) { return 0, nil }
func (r rowsResult) RowsAffected() (int64, error) { return r.n, r.err }

var _ sql.Result = rowsResult{}

func TestExpectRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &models.SuiteRun{FrontendURL: "http://f", BackendURL: "http://b", Scope: models.ScopeCheck}
	require.NoError(t, db.CreateSuiteRun(ctx, run))

	tests := []struct {
		name    string
		id      string
		res     rowsResult
		wantErr string
	}{
		{name: "updated", id: run.ID, res: rowsResult{n: 1}},
		{name: "unchanged values", id: run.ID, res: rowsResult{n: 0}},
		{name: "missing run", id: "missing", res: rowsResult{n: 0}, wantErr: "run missing not found"},
		{name: "driver error", id: run.ID, res: rowsResult{err: errors.New("not supported")}, wantErr: "failed to read affected rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.expectRun(ctx, tt.res, tt.id)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReplayedStatusUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &models.SuiteRun{FrontendURL: "http://f", BackendURL: "http://b", Scope: models.ScopeCheck}
	require.NoError(t, db.CreateSuiteRun(ctx, run))

	require.NoError(t, db.UpdateSuiteRunStatus(ctx, run.ID, models.StatusRunning, ""))
	require.NoError(t, db.UpdateSuiteRunStatus(ctx, run.ID, models.StatusRunning, ""))
	require.NoError(t, db.SetTemporalIDs(ctx, run.ID, "wf", "r"))
	require.NoError(t, db.SetTemporalIDs(ctx, run.ID, "wf", "r"))

	got, err := db.GetSuiteRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
}
