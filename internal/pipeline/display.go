package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// DisplayMode controls how progress is rendered.
type DisplayMode int

const (
	// DisplayTTY uses styled output with status icons.
	DisplayTTY DisplayMode = iota
	// DisplayPlain uses one line per event.
	DisplayPlain
)

// Status icons for TTY mode.
const (
	iconRunning = "\u25D0" // ◐
	iconPassed  = "\u2713" // ✓
	iconFailed  = "\u2717" // ✗
	iconWarn    = "!"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Display renders run progress to the terminal.
type Display struct {
	writer      io.Writer
	mode        DisplayMode
	activeStage bool // TTY only: a stage-start line awaits replacement
}

// StageSummary is a finished stage for the run summary.
type StageSummary struct {
	Name     string
	Status   string
	Duration time.Duration
}

// NewDisplay creates a display writer.
func NewDisplay(writer io.Writer, mode DisplayMode) *Display {
	return &Display{writer: writer, mode: mode}
}

// DetectMode returns DisplayTTY if stdout is a terminal, TERM is not
// "dumb" and NO_COLOR is unset; otherwise DisplayPlain.
func DetectMode() DisplayMode {
	if os.Getenv("TERM") == "dumb" {
		return DisplayPlain
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return DisplayPlain
	}
	fi, err := os.Stdout.Stat()
	if err == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		return DisplayTTY
	}
	return DisplayPlain
}

// RunStart prints the run header.
func (d *Display) RunStart(mode, runID string) {
	if d == nil {
		return
	}
	if d.mode == DisplayTTY {
		fmt.Fprintln(d.writer, headerStyle.Render(fmt.Sprintf("\u2550\u2550\u2550 %s run (%s) \u2550\u2550\u2550", mode, runID)))
	} else {
		fmt.Fprintf(d.writer, "[run_start] %s (%s)\n", mode, runID)
	}
}

// StageStart prints a stage start indicator. In TTY mode the line has no
// newline so StageEnd can replace it.
func (d *Display) StageStart(name string) {
	if d == nil {
		return
	}
	d.clearActiveLine()
	if d.mode == DisplayTTY {
		fmt.Fprintf(d.writer, "%s %s", iconRunning, name)
		d.activeStage = true
	} else {
		fmt.Fprintf(d.writer, "[stage_start] %s\n", name)
	}
}

// StageEnd prints a stage result with its duration.
func (d *Display) StageEnd(name, status string, duration time.Duration) {
	if d == nil {
		return
	}
	dur := formatDuration(duration)
	if d.mode != DisplayTTY {
		fmt.Fprintf(d.writer, "[stage_end] %s %s %s\n", name, status, dur)
		return
	}

	if d.activeStage {
		fmt.Fprint(d.writer, "\r\x1b[K")
		d.activeStage = false
	}
	if status == StatusPassed {
		fmt.Fprintf(d.writer, "%s %s %s\n", passStyle.Render(iconPassed), name, dimStyle.Render("("+dur+")"))
	} else {
		fmt.Fprintf(d.writer, "%s %s %s %s\n", failStyle.Render(iconFailed), name, failStyle.Render("FAILED"), dimStyle.Render("("+dur+")"))
	}
}

// Quarantined lists files moved to quarantine.
func (d *Display) Quarantined(file, reason string) {
	if d == nil {
		return
	}
	d.clearActiveLine()
	if d.mode == DisplayTTY {
		fmt.Fprintf(d.writer, "  %s %s %s\n", warnStyle.Render(iconWarn), file, dimStyle.Render(reason))
	} else {
		fmt.Fprintf(d.writer, "[quarantined] %s %s\n", file, reason)
	}
}

// ClusterModel prints the classifier chosen for a cluster.
func (d *Display) ClusterModel(data ClusterData) {
	if d == nil {
		return
	}
	d.clearActiveLine()
	if d.mode == DisplayTTY {
		fmt.Fprintf(d.writer, "  cluster %d: %s %s %s\n", data.Cluster, data.Algorithm,
			dimStyle.Render(data.Params), dimStyle.Render(fmt.Sprintf("%s=%.4f", data.Metric, data.Score)))
	} else {
		fmt.Fprintf(d.writer, "[cluster] %d %s %s=%.4f\n", data.Cluster, data.Algorithm, data.Metric, data.Score)
	}
}

// RunEnd prints the final run summary.
func (d *Display) RunEnd(status string, total time.Duration, stages []StageSummary) {
	if d == nil {
		return
	}
	d.clearActiveLine()
	summary := formatSummary(stages)
	dur := formatDuration(total)

	if d.mode == DisplayTTY {
		style := passStyle
		if status != StatusPassed {
			style = failStyle
		}
		fmt.Fprintf(d.writer, "\n%s\n", style.Render(fmt.Sprintf("\u2550\u2550\u2550 Run %s: %s (%s) \u2550\u2550\u2550", strings.ToUpper(status), summary, dur)))
	} else {
		fmt.Fprintf(d.writer, "[run_end] %s %s (%s)\n", status, dur, summary)
	}
}

func (d *Display) clearActiveLine() {
	if d.activeStage {
		fmt.Fprint(d.writer, "\n")
		d.activeStage = false
	}
}

// formatDuration formats a duration as seconds with two decimal places.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatSummary(stages []StageSummary) string {
	passed, failed := 0, 0
	for _, s := range stages {
		if s.Status == StatusPassed {
			passed++
		} else {
			failed++
		}
	}
	if failed == 0 {
		return fmt.Sprintf("%d stages passed", passed)
	}
	return fmt.Sprintf("%d passed, %d failed", passed, failed)
}
