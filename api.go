// Package filtz provides a lightweight extension-point pipeline engine for Go.
//
// # Overview
//
// filtz lets a host application declare named extension points ("filter
// types") whose behavior is supplied externally: an ordered list of pipeline
// steps, configured at deploy time, runs over a shared set of named
// arguments. Each step receives the full accumulated argument set, returns
// zero or more arguments to merge back in, and may halt the pipeline with a
// decision the caller observes directly.
//
// The model follows the accumulative pipeline pattern: given initial
// arguments and steps S1..Sn, Sn receives exactly the merged output of
// S1..Sn-1 applied to the initial arguments. Steps are interchangeable and
// composable because every step sees the same argument shape and must
// tolerate arguments it does not use.
//
// # Core Concepts
//
// Key components:
//   - Kwargs: the accumulated named-argument set threaded through one run
//   - Step: one unit of externally supplied pipeline logic
//   - Registry: maps step references to factories; unknown references
//     resolve to a typed, recoverable ResolutionError
//   - Filter: the per-extension-point runner driving resolve, invoke, merge
//   - Lookup: the configuration collaborator, normalized to (fail_silently,
//     ordered references) before any step runs
//
// Design philosophy:
//   - Steps are registered, never loaded: resolution is a map lookup with a
//     typed miss, so a missing step is a recoverable condition, not a crash
//   - Halt is a value, not a convention: the control signal that stops a
//     pipeline is a distinct type the runner can never mistake for an
//     incidental failure
//   - Broken steps are policy, not fate: the per-point fail-silently flag
//     decides whether a misconfigured or failing step skips or aborts
//
// # Defining Steps
//
// Adapters wrap plain functions as steps:
//
//	double := filtz.Apply("double", func(_ context.Context, args filtz.Kwargs) (filtz.Kwargs, error) {
//	    n, _ := args["count"].(int)
//	    return filtz.Kwargs{"count": n * 2}, nil
//	})
//
// Steps that need their extension point's configuration implement Step
// directly and register a StepFactory that receives Metadata.
//
// # Running a Pipeline
//
//	registry := filtz.NewRegistry()
//	registry.Register("billing.ApplyDiscount", applyDiscount)
//	registry.Register("billing.ChargeCard", chargeCard)
//
//	lookup := filtz.StaticLookup{
//	    "org.example.billing.checkout.v1": {
//	        Pipeline:     []string{"billing.ApplyDiscount", "billing.ChargeCard"},
//	        FailSilently: false,
//	    },
//	}
//
//	checkout := filtz.New("org.example.billing.checkout.v1", registry, lookup)
//	result, err := checkout.Run(ctx, filtz.Kwargs{"order": order})
//
// A step halts the pipeline by returning *Halt; the caller receives exactly
// that value:
//
//	var halt *filtz.Halt
//	if errors.As(err, &halt) {
//	    http.Redirect(w, r, halt.RedirectTo, http.StatusFound)
//	}
//
// # Error Handling
//
// Four outcomes are distinguished:
//   - *Halt: deliberate, step-raised, always propagated unmodified
//   - *ResolutionError: the reference names a missing namespace (KindNotFound)
//     or a missing symbol (KindNotImplemented); skipped under fail-silently
//   - *ShapeError: malformed configuration; always fatal, raised before any
//     step runs
//   - *Error: anything else that failed during a run, wrapped with the
//     extension point, reference, stage index and input arguments
//
// # Observability
//
// Each Filter carries its own metricz registry, tracez tracer, and hookz
// event hooks. Skipped steps are visible through events and counters rather
// than log lines, so a fail-silently pipeline stays quiet without going dark.
package filtz

import "context"

// Step is one unit of externally supplied pipeline logic. It receives the
// full accumulated argument set and returns the arguments it wants merged
// back in. Returning nil leaves the accumulated arguments unchanged.
//
// A step must accept arguments it does not use: extension-point signatures
// evolve additively, and steps written against an older signature keep
// working when new arguments appear.
//
// To stop the pipeline a step returns either *Halt (abort and report a
// decision to the caller) or ErrStop (end early, keeping what accumulated
// so far). Any other error is incidental and subject to the extension
// point's fail-silently policy.
type Step interface {
	Run(ctx context.Context, args Kwargs) (Kwargs, error)
	Name() Name
}

// Name identifies a step for debugging, events, and error reporting.
// Store names as constants rather than inline strings.
type Name = string

// FilterType is the opaque, globally unique identifier of one extension
// point, e.g. "org.example.learning.enrollment.started.v1". The engine
// uses it purely as a configuration lookup key.
type FilterType = string

// StepFactory builds a Step for one pipeline execution. The factory
// receives the execution's Metadata, mirroring how configuration travels
// to steps that want it. Factories for steps that ignore configuration are
// produced by the Apply, Transform, and Effect adapters.
//
// A factory that panics or otherwise cannot construct its step is treated
// as an invocation failure of that stage, not a resolution failure.
type StepFactory func(Metadata) Step
