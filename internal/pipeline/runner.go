// Package pipeline runs the training and prediction flows: raw file
// validation, the relational round trip, feature engineering, clustering,
// per-cluster model selection, and prediction output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/runger/claimguard/internal/applog"
	"github.com/runger/claimguard/internal/artifact"
	"github.com/runger/claimguard/internal/config"
	"github.com/runger/claimguard/internal/storage"
)

// Stage and run statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// EncoderKey is the artifact key of the fitted feature encoder.
const EncoderKey = "Encoder"

// ErrNoData is returned when no accepted rows reach the feature stages.
var ErrNoData = errors.New("no accepted rows to process")

// StageError reports the stage a run failed in. It unwraps to the cause
// so callers can still match the typed errors of each package.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options configures a training or prediction run.
type Options struct {
	Config *config.Config
	Paths  *config.Paths

	// BatchDir overrides the intake directory of the mode.
	BatchDir string

	// Logger receives topic-routed records. Defaults to slog.Default().
	Logger *slog.Logger

	// Display renders progress. Nil disables terminal output.
	Display *Display

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) batchDir(m config.Mode) string {
	if o.BatchDir != "" {
		return o.BatchDir
	}
	return o.Paths.BatchDir(m)
}

func (o Options) validate() error {
	if o.Config == nil {
		return errors.New("pipeline: config is required")
	}
	if o.Paths == nil {
		return errors.New("pipeline: paths are required")
	}
	return nil
}

// run holds the per-invocation state shared by the training and
// prediction flows.
type run struct {
	id      string
	mode    config.Mode
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	started time.Time

	db        *storage.SQLiteStore
	artifacts *artifact.Store
	events    *RunLog
	stages    []StageSummary
}

// startRun prepares directories, opens the run's stores and records the
// run as started.
func startRun(ctx context.Context, mode config.Mode, schemaPath string, opts Options) (*run, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := &run{
		id:      uuid.New().String(),
		mode:    mode,
		opts:    opts,
		logger:  logger,
		now:     now,
		started: now(),
	}

	if err := opts.Paths.EnsureDirectories(mode); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	db, err := storage.NewSQLiteStore(opts.Paths.DatabaseFile(mode))
	if err != nil {
		return nil, err
	}
	r.db = db

	store, err := artifact.Open(opts.Paths.ModelsDir(), logger)
	if err != nil {
		r.close()
		return nil, err
	}
	r.artifacts = store

	// The record is written even for an already cancelled context so the
	// run shows up as failed.
	err = db.CreateRun(context.WithoutCancel(ctx), &storage.PipelineRun{
		RunID:     r.id,
		Mode:      string(mode),
		Status:    storage.RunStatusRunning,
		BatchDir:  opts.batchDir(mode),
		StartedAt: r.started.UnixMilli(),
	})
	if err != nil {
		r.close()
		return nil, err
	}

	events, err := OpenRunLog(opts.Paths.RunLogDir(), r.id)
	if err != nil {
		logger.Warn("run event log disabled", applog.Topic(applog.TopicGeneral), "error", err)
	}
	r.events = events

	applog.LogRunStarted(logger, applog.RunInfo{
		RunID:      r.id,
		Mode:       string(mode),
		Root:       opts.Paths.Root,
		ConfigPath: opts.Paths.ConfigFile(),
		SchemaPath: schemaPath,
		BatchDir:   opts.batchDir(mode),
	})
	r.events.Write(EventRunStart, RunStartData{
		RunID:    r.id,
		Mode:     string(mode),
		BatchDir: opts.batchDir(mode),
		Schema:   schemaPath,
	})
	opts.Display.RunStart(string(mode), r.id)

	return r, nil
}

// stage runs fn as a named stage, recording its outcome in the event log
// and on the display. A failure is wrapped in a StageError.
func (r *run) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}

	start := r.now()
	r.events.Write(EventStageStart, StageStartData{RunID: r.id, Stage: name})
	r.opts.Display.StageStart(name)
	r.logger.Debug("stage started", applog.Topic(applog.TopicGeneral), "run_id", r.id, "stage", name)

	err := fn()

	dur := r.now().Sub(start)
	status := StatusPassed
	data := StageEndData{RunID: r.id, Stage: name, DurationMs: dur.Milliseconds()}
	if err != nil {
		status = StatusFailed
		data.Error = err.Error()
	}
	data.Status = status
	r.events.Write(EventStageEnd, data)
	r.opts.Display.StageEnd(name, status, dur)
	r.stages = append(r.stages, StageSummary{Name: name, Status: status, Duration: dur})

	if err != nil {
		applog.LogRunFailed(r.logger, r.id, name, err)
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// finish records the final status of the run and releases its stores.
// The stored run record uses a fresh context so a cancelled run is still
// marked failed.
func (r *run) finish(runErr error, clusters int) {
	status := StatusPassed
	errText := ""
	if runErr != nil {
		status = StatusFailed
		errText = runErr.Error()
	}
	ended := r.now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.db.FinishRun(ctx, r.id, status, ended.UnixMilli(), clusters, errText); err != nil {
		r.logger.Warn("failed to record run status", applog.Topic(applog.TopicGeneral), "run_id", r.id, "error", err)
	}

	total := ended.Sub(r.started)
	r.events.Write(EventRunEnd, RunEndData{
		RunID:      r.id,
		Status:     status,
		DurationMs: total.Milliseconds(),
		Error:      errText,
	})
	r.opts.Display.RunEnd(status, total, r.stages)
	if runErr == nil {
		applog.LogRunFinished(r.logger, r.id, status)
	}

	r.close()
}

func (r *run) close() {
	if r.events != nil {
		_ = r.events.Close()
	}
	if r.artifacts != nil {
		if err := r.artifacts.Close(); err != nil {
			r.logger.Warn("failed to close artifact store", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
	}
}

// eventsPath returns the event log path, or "" when it is disabled.
func (r *run) eventsPath() string {
	if r.events == nil {
		return ""
	}
	return r.events.Path()
}
