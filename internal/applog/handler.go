package applog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// TopicKey is the attribute key that selects a record's log file.
const TopicKey = "topic"

// Log topics. Each one becomes <dir>/<topic>.log.
const (
	TopicGeneral       = "general"
	TopicSchema        = "schemaValidation"
	TopicNameCheck     = "nameValidation"
	TopicColumnCheck   = "columnValidation"
	TopicNullCheck     = "missingValuesInColumn"
	TopicArchive       = "archive"
	TopicDBInsert      = "dbInsert"
	TopicDBExport      = "dbExport"
	TopicPreprocessing = "preprocessing"
	TopicClustering    = "clustering"
	TopicTraining      = "modelTraining"
	TopicPrediction    = "prediction"
)

// Topic returns the attribute routing a record to the named log file.
func Topic(name string) slog.Attr {
	return slog.String(TopicKey, name)
}

// FileHandler appends records to per-topic files in a directory. The
// file is opened for every record and closed before Handle returns, so
// no descriptor is held between records.
type FileHandler struct {
	dir   string
	opts  slog.HandlerOptions
	topic string
	steps []func(slog.Handler) slog.Handler
	mu    *sync.Mutex
}

// NewFileHandler returns a handler writing into dir.
func NewFileHandler(dir string, opts *slog.HandlerOptions) *FileHandler {
	h := &FileHandler{dir: dir, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled implements slog.Handler.
func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle implements slog.Handler.
func (h *FileHandler) Handle(ctx context.Context, r slog.Record) error {
	topic := h.topic
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == TopicKey {
			topic = a.Value.String()
			return false
		}
		return true
	})
	if topic == "" {
		topic = TopicGeneral
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(h.dir, topic+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	var th slog.Handler = slog.NewTextHandler(f, &h.opts)
	for _, step := range h.steps {
		th = step(th)
	}
	herr := th.Handle(ctx, r)
	return errors.Join(herr, f.Close())
}

// WithAttrs implements slog.Handler.
func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, a := range attrs {
		if a.Key == TopicKey {
			clone.topic = a.Value.String()
		}
	}
	clone.steps = append(clone.steps, func(th slog.Handler) slog.Handler { return th.WithAttrs(attrs) })
	return clone
}

// WithGroup implements slog.Handler.
func (h *FileHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.steps = append(clone.steps, func(th slog.Handler) slog.Handler { return th.WithGroup(name) })
	return clone
}

func (h *FileHandler) clone() *FileHandler {
	return &FileHandler{
		dir:   h.dir,
		opts:  h.opts,
		topic: h.topic,
		steps: append([]func(slog.Handler) slog.Handler(nil), h.steps...),
		mu:    h.mu,
	}
}

type teeHandler struct {
	handlers []slog.Handler
}

// Tee returns a handler that forwards every record to all handlers.
func Tee(handlers ...slog.Handler) slog.Handler {
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: out}
}
