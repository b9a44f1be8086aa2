package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a pipeline run is not found.
var ErrRunNotFound = errors.New("pipeline run not found")

const errRunIDRequired = "run_id is required"

// CreateRun creates a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *PipelineRun) error {
	if run == nil {
		return errors.New("pipeline run cannot be nil")
	}
	if run.RunID == "" {
		return errors.New(errRunIDRequired)
	}
	if run.Mode == "" {
		return errors.New("mode is required")
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			run_id, mode, status, batch_dir, started_at, ended_at, duration_ms, clusters, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.Mode,
		run.Status,
		run.BatchDir,
		run.StartedAt,
		run.EndedAt,
		run.DurationMs,
		run.Clusters,
		run.Error,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("pipeline run with id %s already exists", run.RunID)
		}
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return nil
}

// FinishRun records a run's final status. The duration is derived from
// the stored start time.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, endedAt int64, clusters int, runErr string) error {
	if runID == "" {
		return errors.New(errRunIDRequired)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, ended_at = ?, duration_ms = MAX(? - started_at, 0), clusters = ?, error = ?
		WHERE run_id = ?
	`, status, endedAt, endedAt, clusters, runErr, runID)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `run_id, mode, status, batch_dir, started_at, ended_at, duration_ms, clusters, error`

func scanRun(row interface{ Scan(...any) error }) (*PipelineRun, error) {
	var run PipelineRun
	err := row.Scan(
		&run.RunID,
		&run.Mode,
		&run.Status,
		&run.BatchDir,
		&run.StartedAt,
		&run.EndedAt,
		&run.DurationMs,
		&run.Clusters,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*PipelineRun, error) {
	if runID == "" {
		return nil, errors.New(errRunIDRequired)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}
	return run, nil
}

// QueryRuns returns runs newest first.
func (s *SQLiteStore) QueryRuns(ctx context.Context, q RunQuery) ([]PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE 1=1`
	var args []any

	if q.Mode != "" {
		query += " AND mode = ?"
		args = append(args, q.Mode)
	}
	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, q.Status)
	}

	query += " ORDER BY started_at DESC, run_id"

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	if q.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RecordFileValidations stores the validation outcome of every intake
// file of a run, replacing earlier records for the same file.
func (s *SQLiteStore) RecordFileValidations(ctx context.Context, runID string, files []FileValidation) error {
	if runID == "" {
		return errors.New(errRunIDRequired)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO file_validations (run_id, file_name, state, reason, detail, rows_loaded)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, runID, f.FileName, f.State, f.Reason, f.Detail, f.RowsLoaded); err != nil {
			return fmt.Errorf("failed to record validation of %s: %w", f.FileName, err)
		}
	}
	return tx.Commit()
}

// GetFileValidations returns the outcomes of a run ordered by file name.
func (s *SQLiteStore) GetFileValidations(ctx context.Context, runID string) ([]FileValidation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, file_name, state, reason, detail, rows_loaded
		FROM file_validations WHERE run_id = ? ORDER BY file_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file validations: %w", err)
	}
	defer rows.Close()

	var out []FileValidation
	for rows.Next() {
		var f FileValidation
		if err := rows.Scan(&f.RunID, &f.FileName, &f.State, &f.Reason, &f.Detail, &f.RowsLoaded); err != nil {
			return nil, fmt.Errorf("failed to scan file validation: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
