package filtz

import (
	"errors"
	"fmt"
)

// ErrStop ends a pipeline early without an error. A step returns it
// (usually wrapped, matched with errors.Is) when it has decided the
// remaining steps should not run but the caller should still receive the
// arguments accumulated so far. Unlike *Halt, ErrStop is invisible to the
// caller: Run returns the accumulated Kwargs and a nil error.
var ErrStop = errors.New("stop pipeline")

// Halt is the control signal a step raises to abort its pipeline and
// report a decision to the caller. It is scoped to one extension point and
// is never suppressed, wrapped, or altered by the runner: the exact value
// the step returned is what the caller observes, regardless of the
// fail-silently policy.
//
// The fields mirror the decisions steps commonly report - a message for
// the user, a redirect target, a status code - plus an open Extra set for
// anything point-specific:
//
//	return nil, &filtz.Halt{
//	    Message:    "enrollment closed",
//	    RedirectTo: "/courses",
//	    StatusCode: 403,
//	}
type Halt struct {
	// FilterType is the extension point whose pipeline raised the halt.
	// The runner fills it in when empty, so steps reused across points
	// report the point that actually invoked them.
	FilterType FilterType

	// Message describes why the pipeline was halted.
	Message string

	// RedirectTo optionally names a location the caller should send the
	// user to.
	RedirectTo string

	// StatusCode optionally carries an HTTP status for callers serving
	// requests.
	StatusCode int

	// Extra holds any additional point-specific decision data.
	Extra Kwargs
}

// Error implements the error interface so steps can return a *Halt through
// the ordinary error channel.
func (h *Halt) Error() string {
	if h.FilterType != "" {
		return fmt.Sprintf("pipeline halted [%s]: %s", h.FilterType, h.Message)
	}
	return fmt.Sprintf("pipeline halted: %s", h.Message)
}
