package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dev/bravebird/page-verifier/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewWithConn wraps an already opened connection
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS verification_runs (
		id VARCHAR(36) PRIMARY KEY,
		plan_name VARCHAR(255) NOT NULL,
		base_url VARCHAR(2048) NOT NULL,
		temporal_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
		temporal_run_id VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(32) NOT NULL,
		started_at DATETIME NULL,
		completed_at DATETIME NULL,
		error_message TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS step_results (
		id VARCHAR(36) PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		sequence_id INT NOT NULL,
		step_type VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		screenshot_path VARCHAR(1024) NOT NULL DEFAULT '',
		message TEXT,
		error_message TEXT,
		executed_at DATETIME NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		INDEX idx_step_results_run (run_id, sequence_id)
	)`,
}

// Migrate creates the ledger tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// ==================== Verification Runs ====================

// CreateRun creates a new verification run, or updates its Temporal ids
// and status if it already exists
func (db *DB) CreateRun(ctx context.Context, run *models.VerificationRun) error {
	query := `
		INSERT INTO verification_runs (id, plan_name, base_url, temporal_workflow_id, temporal_run_id, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			temporal_workflow_id = VALUES(temporal_workflow_id),
			temporal_run_id = VALUES(temporal_run_id),
			status = VALUES(status),
			started_at = VALUES(started_at)
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.PlanName,
		run.BaseURL,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.Status,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a verification run by ID
func (db *DB) GetRun(ctx context.Context, id string) (*models.VerificationRun, error) {
	query := `
		SELECT id, plan_name, base_url, temporal_workflow_id, temporal_run_id, status,
		       started_at, completed_at, COALESCE(error_message, '')
		FROM verification_runs
		WHERE id = ?
	`

	var run models.VerificationRun
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.PlanName,
		&run.BaseURL,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves the most recent verification runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.VerificationRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, plan_name, base_url, temporal_workflow_id, temporal_run_id, status,
		       started_at, completed_at, COALESCE(error_message, '')
		FROM verification_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.VerificationRun{}
	for rows.Next() {
		var run models.VerificationRun
		err := rows.Scan(
			&run.ID,
			&run.PlanName,
			&run.BaseURL,
			&run.TemporalWorkflowID,
			&run.TemporalRunID,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// UpdateRunStatus updates the status of a verification run
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE verification_runs
		SET status = ?, error_message = ?
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, status, errorMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// CompleteRun stores the final status of a run
func (db *DB) CompleteRun(ctx context.Context, result models.RunResult) error {
	query := `
		UPDATE verification_runs
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query, result.Status, result.ErrorMessage, time.Now(), result.RunID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// ==================== Step Results ====================

// SaveStepResult stores the outcome of one step
func (db *DB) SaveStepResult(ctx context.Context, result *models.StepResult) error {
	query := `
		INSERT INTO step_results (id, run_id, sequence_id, step_type, status, screenshot_path,
		                          message, error_message, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		result.ID,
		result.RunID,
		result.SequenceID,
		result.StepType,
		result.Status,
		result.ScreenshotPath,
		result.Message,
		result.ErrorMessage,
		result.ExecutedAt,
		result.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to save step result: %w", err)
	}
	return nil
}

// GetStepResults retrieves the step results of a run in execution order
func (db *DB) GetStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	query := `
		SELECT id, run_id, sequence_id, step_type, status, screenshot_path,
		       COALESCE(message, ''), COALESCE(error_message, ''), executed_at, duration_ms
		FROM step_results
		WHERE run_id = ?
		ORDER BY sequence_id
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get step results: %w", err)
	}
	defer rows.Close()

	results := []models.StepResult{}
	for rows.Next() {
		var r models.StepResult
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.SequenceID,
			&r.StepType,
			&r.Status,
			&r.ScreenshotPath,
			&r.Message,
			&r.ErrorMessage,
			&r.ExecutedAt,
			&r.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
