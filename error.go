package filtz

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error provides rich context about a pipeline execution failure. It wraps
// the underlying error with where and when the failure occurred, which
// reference was running, and the arguments that stage received.
//
// Error is produced only for hard failures: a suppressed step never
// surfaces one, a *Halt is returned unwrapped, and a malformed
// configuration surfaces as *ShapeError instead. The accumulated arguments
// of the failed run are discarded; InputArgs is debugging context, not
// partial state the caller should act on.
type Error struct {
	InputArgs  Kwargs
	Timestamp  time.Time
	Err        error
	FilterType FilterType
	Reference  string
	Duration   time.Duration
	StageIndex int
	Timeout    bool
	Canceled   bool
}

// Error implements the error interface, providing a detailed error message.
func (e *Error) Error() string {
	location := fmt.Sprintf("step %q (stage %d) of %q", e.Reference, e.StageIndex, e.FilterType)

	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the failure was caused by a deadline.
func (e *Error) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the failure was caused by cancellation.
func (e *Error) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}
