package syncconsumer

import "fmt"

// FatalSyncError aborts the Manager's outer loop unconditionally: only
// environment validation failures raise it — anything else is recorded
// against the path and the loop continues.
type FatalSyncError struct {
	Reason string
}

func (e *FatalSyncError) Error() string {
	return fmt.Sprintf("fatal sync error: %s", e.Reason)
}

func fatal(reason string) error {
	return &FatalSyncError{Reason: reason}
}
