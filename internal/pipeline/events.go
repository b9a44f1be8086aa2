package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Event is a single line of the JSONL run log.
type Event struct {
	Data      any    `json:"data"`      // event-specific payload
	Type      string `json:"type"`      // event type
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// Event types.
const (
	EventRunStart   = "run_start"
	EventStageStart = "stage_start"
	EventStageEnd   = "stage_end"
	EventValidation = "file_validation"
	EventCluster    = "cluster_model"
	EventRunEnd     = "run_end"
)

// RunStartData is the payload for run_start events.
type RunStartData struct {
	RunID    string `json:"run_id"`
	Mode     string `json:"mode"`
	BatchDir string `json:"batch_dir"`
	Schema   string `json:"schema"`
}

// StageStartData is the payload for stage_start events.
type StageStartData struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
}

// StageEndData is the payload for stage_end events.
type StageEndData struct {
	RunID      string `json:"run_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"` // "passed", "failed"
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ValidationData is the payload for file_validation events.
type ValidationData struct {
	RunID  string `json:"run_id"`
	File   string `json:"file"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ClusterData is the payload for cluster_model events.
type ClusterData struct {
	RunID     string  `json:"run_id"`
	Cluster   int     `json:"cluster"`
	Rows      int     `json:"rows"`
	Key       string  `json:"key"`
	Algorithm string  `json:"algorithm"`
	Params    string  `json:"params"`
	Metric    string  `json:"metric"`
	Score     float64 `json:"score"`
}

// RunEndData is the payload for run_end events.
type RunEndData struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"` // "passed", "failed"
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunLog appends events to <dir>/<run-id>.jsonl.
type RunLog struct {
	file *os.File
	now  func() time.Time
}

// OpenRunLog creates the event log of a run.
func OpenRunLog(dir, runID string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create run log dir: %w", err)
	}

	path := filepath.Join(dir, sanitizeName(runID)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: name is sanitized
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &RunLog{file: f, now: time.Now}, nil
}

// Write appends an event. Failures are logged and never end the run.
func (l *RunLog) Write(eventType string, data any) {
	if l == nil {
		return
	}

	line, err := json.Marshal(Event{Type: eventType, Timestamp: l.now().UnixMilli(), Data: data})
	if err != nil {
		slog.Warn("run log: marshal event", "error", err, "type", eventType)
		return
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		slog.Warn("run log: write event", "error", err, "type", eventType)
	}
}

// Path returns the path of the JSONL file.
func (l *RunLog) Path() string {
	return l.file.Name()
}

// Close closes the underlying file.
func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// sanitizeName keeps run ids usable as file names.
func sanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "run"
	}
	return s
}
