package cmd

import (
	"context"
	"errors"

	"github.com/runger/claimguard/internal/artifact"
	"github.com/runger/claimguard/internal/cluster"
	"github.com/runger/claimguard/internal/model"
	"github.com/runger/claimguard/internal/rawvalidation"
	"github.com/runger/claimguard/internal/schema"
	"github.com/runger/claimguard/internal/storage"
)

// Process exit codes.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitConfigError   = 2
	ExitStorageError  = 3
	ExitTrainingError = 4
	ExitNotFound      = 5
	ExitCancelled     = 130
)

// ExitError is an error that carries a specific exit code.
// cobra.RunE returns this so the caller can set the process exit code.
type ExitError struct {
	Message string
	Code    int
}

func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		exitErr    *ExitError
		storageErr *rawvalidation.StorageError
		trainErr   *model.TrainingError
	)
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case schema.IsConfigError(err):
		return ExitConfigError
	case errors.As(err, &storageErr):
		return ExitStorageError
	case errors.As(err, &trainErr), errors.Is(err, cluster.ErrNoKnee):
		return ExitTrainingError
	case artifact.IsNotFound(err), errors.Is(err, storage.ErrRunNotFound):
		return ExitNotFound
	default:
		return ExitFailure
	}
}
