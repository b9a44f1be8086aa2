// Package main is the entry point for the claimguard CLI.
package main

import (
	"os"

	"github.com/runger/claimguard/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
