// Package applog provides structured logging for claimguard runs.
//
// Records carry a "topic" attribute naming the log file they belong to.
// The file handler appends each record to <dir>/<topic>.log, opening and
// closing the file on the same call.
package applog

import (
	"io"
	"log/slog"
	"os"
)

// Config configures the run logger.
type Config struct {
	// Dir is the per-topic log directory. Empty disables file logging.
	Dir string

	// Output mirrors records to a writer (default: none). Typically os.Stderr.
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level: slog.LevelInfo,
		Debug: false,
	}
}

// ParseLevel maps a config level name to a slog level. Unknown names
// map to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger that writes text records to the topic files in
// cfg.Dir and, when cfg.Output is set, to that writer as well.
//
// Log levels:
//   - debug: per-row and per-fold detail
//   - info: stage progress and per-file outcomes
//   - warn: non-fatal issues (quarantined files, schema warnings)
//   - error: failures that end the run
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if cfg.Dir != "" {
		handlers = append(handlers, NewFileHandler(cfg.Dir, opts))
	}
	if cfg.Output != nil {
		handlers = append(handlers, slog.NewTextHandler(cfg.Output, opts))
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, opts))
	case 1:
		return slog.New(handlers[0])
	default:
		return slog.New(Tee(handlers...))
	}
}

// NewFromEnv creates a stderr logger configured from environment variables.
// CLAIMGUARD_DEBUG=1 enables debug logging.
func NewFromEnv() *slog.Logger {
	cfg := DefaultConfig()
	cfg.Output = os.Stderr
	if os.Getenv("CLAIMGUARD_DEBUG") == "1" {
		cfg.Debug = true
	}
	return New(cfg)
}

// RunInfo holds information to log at the start of a run.
type RunInfo struct {
	RunID      string
	Mode       string
	Root       string
	ConfigPath string
	SchemaPath string
	BatchDir   string
}

// LogRunStarted logs the start of a training or prediction run.
func LogRunStarted(logger *slog.Logger, info RunInfo) {
	logger.Info("run started",
		Topic(TopicGeneral),
		"run_id", info.RunID,
		"mode", info.Mode,
		"root", info.Root,
		"config_path", info.ConfigPath,
		"schema_path", info.SchemaPath,
		"batch_dir", info.BatchDir,
	)
}

// LogRunFinished logs a completed run.
func LogRunFinished(logger *slog.Logger, runID string, status string) {
	logger.Info("run finished", Topic(TopicGeneral), "run_id", runID, "status", status)
}

// LogRunFailed logs a run that ended with an error.
func LogRunFailed(logger *slog.Logger, runID string, stage string, err error) {
	logger.Error("run failed",
		Topic(TopicGeneral),
		"run_id", runID,
		"stage", stage,
		"error", err,
	)
}

// LogSchemaWarning logs a non-fatal schema inconsistency.
func LogSchemaWarning(logger *slog.Logger, schemaPath string, warning string) {
	logger.Warn("schema warning", Topic(TopicSchema), "schema_path", schemaPath, "warning", warning)
}
