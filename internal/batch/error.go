package batch

import "fmt"

// Error is the single typed failure a batch submission can produce.
// Index is the 0-based position of the failing upload, or -1 when the
// whole batch was rejected before any per-file work started.
type Error struct {
	Index    int
	Filename string
	Err      error
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("batch rejected: %s", e.Err)
	}

	return fmt.Sprintf("file %d ('%s') failed: %s", e.Index, e.Filename, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
