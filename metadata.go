package filtz

import "github.com/google/uuid"

// Metadata describes one pipeline execution to the step factories it
// invokes. It carries the extension point being run, the full reference
// list of the running pipeline, and any extra configuration keys the
// engine itself ignores.
//
// Steps that adapt their behavior to configuration (log verbosity, feature
// toggles, tenant overrides) read it from here; steps built with the
// Apply, Transform, and Effect adapters never see it.
type Metadata struct {
	// FilterType is the extension point this execution belongs to.
	FilterType FilterType

	// RunID uniquely identifies this execution. The same value appears in
	// every StepEvent the run emits, correlating events with spans.
	RunID uuid.UUID

	// Pipeline is the ordered reference list being executed, as configured.
	Pipeline []string

	// Extra holds configuration keys beyond pipeline and fail_silently.
	Extra Kwargs
}
