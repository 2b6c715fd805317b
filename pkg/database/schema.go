package database

// Times are BIGINT unix milliseconds and ids are uuid strings in both dialects.
// Only the auto-increment syntax and index placement differ.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS suite_runs (
		id VARCHAR(36) PRIMARY KEY,
		temporal_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
		temporal_run_id VARCHAR(255) NOT NULL DEFAULT '',
		target_name VARCHAR(255) NOT NULL DEFAULT '',
		frontend_url TEXT NOT NULL,
		backend_url TEXT NOT NULL,
		scope VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		started_at BIGINT NULL,
		completed_at BIGINT NULL,
		error_message TEXT NOT NULL,
		INDEX idx_suite_runs_started (started_at)
	)`,
	`CREATE TABLE IF NOT EXISTS check_results (
		id VARCHAR(36) PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		check_name VARCHAR(64) NOT NULL,
		seq INT NOT NULL,
		status VARCHAR(16) NOT NULL,
		message TEXT NOT NULL,
		screenshot_path TEXT NOT NULL,
		executed_at BIGINT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		INDEX idx_check_results_run (run_id),
		FOREIGN KEY (run_id) REFERENCES suite_runs(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS suite_runs (
		id TEXT PRIMARY KEY,
		temporal_workflow_id TEXT NOT NULL DEFAULT '',
		temporal_run_id TEXT NOT NULL DEFAULT '',
		target_name TEXT NOT NULL DEFAULT '',
		frontend_url TEXT NOT NULL,
		backend_url TEXT NOT NULL,
		scope TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suite_runs_started ON suite_runs(started_at)`,
	`CREATE TABLE IF NOT EXISTS check_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES suite_runs(id) ON DELETE CASCADE,
		check_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		screenshot_path TEXT NOT NULL DEFAULT '',
		executed_at INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_check_results_run ON check_results(run_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL
	)`,
}
