package runner

import (
	"fmt"
)

// ValidationError rejects a malformed run request. Raised before the
// execution lock is acquired; never enters the critical section.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConfigWriteError is a failed read or write of the shared snapshot
// resource during the backup or override step. Fatal to the current
// execution; the pipeline body does not run after an override failure.
type ConfigWriteError struct {
	Op  string
	Err error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("snapshot %s failed: %v", e.Op, e.Err)
}

func (e *ConfigWriteError) Unwrap() error {
	return e.Err
}

// RestoreError means the baseline snapshot could not be written back after
// a run. It leaves shared state inconsistent for all future runs, so it
// outranks whatever the pipeline body returned.
type RestoreError struct {
	Err error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("snapshot restore failed: %v", e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
