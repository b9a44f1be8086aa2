// Package storage provides the SQLite store of a pipeline mode: the table
// of accepted rows, its flat CSV export, and the audit trail of runs and
// per-file validation outcomes.
package storage

import (
	"context"
)

// Store defines the interface for all storage operations.
type Store interface {
	// Accepted rows
	ResetTable(ctx context.Context, table string, columns []string, identifier string) error
	InsertFile(ctx context.Context, table, path string) (int, error)
	LoadDirectory(ctx context.Context, table, dir, quarantineDir string) (*LoadResult, error)
	ExportCSV(ctx context.Context, table, path string) (int, error)

	// Runs
	CreateRun(ctx context.Context, run *PipelineRun) error
	FinishRun(ctx context.Context, runID, status string, endedAt int64, clusters int, runErr string) error
	GetRun(ctx context.Context, runID string) (*PipelineRun, error)
	QueryRuns(ctx context.Context, q RunQuery) ([]PipelineRun, error)

	// Validation outcomes
	RecordFileValidations(ctx context.Context, runID string, files []FileValidation) error
	GetFileValidations(ctx context.Context, runID string) ([]FileValidation, error)

	// Lifecycle
	Close() error
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusPassed  = "passed"
	RunStatusFailed  = "failed"
)

// PipelineRun represents one training or prediction run.
type PipelineRun struct {
	RunID      string
	Mode       string // "training" or "prediction"
	Status     string // "running", "passed", "failed"
	BatchDir   string
	StartedAt  int64 // unix ms
	EndedAt    int64 // unix ms
	DurationMs int64
	Clusters   int
	Error      string
}

// RunQuery defines parameters for querying runs.
type RunQuery struct {
	Mode   string
	Status string
	Limit  int
	Offset int
}

// FileValidation is the stored outcome of one intake file.
type FileValidation struct {
	RunID      string
	FileName   string
	State      string
	Reason     string
	Detail     string
	RowsLoaded int
}

// LoadResult summarizes LoadDirectory.
type LoadResult struct {
	Loaded      map[string]int // file name -> rows inserted
	Quarantined []string       // files whose insert was rolled back
	Rows        int
}
