package rawvalidation

import "fmt"

// StorageError reports a filesystem operation that failed while managing
// the partitions. It is fatal to the run.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
