package cmd

import (
	"github.com/fatih/color"

	"github.com/runger/claimguard/internal/pipeline"
	"github.com/runger/claimguard/internal/storage"
)

// Listing colors. fatih/color turns them off when NO_COLOR is set,
// TERM is "dumb" or stdout is not a terminal.
var (
	colorGreen  = color.New(color.FgGreen)
	colorRed    = color.New(color.FgRed)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
	colorDim    = color.New(color.Faint)
	colorBold   = color.New(color.Bold)
)

// statusText colors a run or stage status.
func statusText(status string) string {
	switch status {
	case pipeline.StatusPassed:
		return colorGreen.Sprint(status)
	case pipeline.StatusFailed:
		return colorRed.Sprint(status)
	case storage.RunStatusRunning:
		return colorYellow.Sprint(status)
	default:
		return status
	}
}
