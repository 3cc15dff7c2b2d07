package filtz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys for Filter observability.
const (
	FilterRunsTotal         = metricz.Key("filter.runs.total")
	FilterSuccessesTotal    = metricz.Key("filter.successes.total")
	FilterFailuresTotal     = metricz.Key("filter.failures.total")
	FilterHaltsTotal        = metricz.Key("filter.halts.total")
	FilterStepsSkippedTotal = metricz.Key("filter.steps.skipped.total")
	FilterStagesCompleted   = metricz.Key("filter.stages.completed")
	FilterStagesTotal       = metricz.Key("filter.stages.total")
	FilterDurationMs        = metricz.Key("filter.duration.ms")
)

// Span names for Filter.
const (
	FilterRunSpan   = tracez.Key("filter.run")
	FilterStageSpan = tracez.Key("filter.stage")
)

// Span tags for Filter.
const (
	FilterTagType        = tracez.Tag("filter.type")
	FilterTagStageCount  = tracez.Tag("filter.stage_count")
	FilterTagStageNumber = tracez.Tag("filter.stage_number")
	FilterTagReference   = tracez.Tag("filter.reference")
	FilterTagSuccess     = tracez.Tag("filter.success")
	FilterTagSkipped     = tracez.Tag("filter.skipped")
	FilterTagHalted      = tracez.Tag("filter.halted")
	FilterTagError       = tracez.Tag("filter.error")
)

// Hook event keys.
const (
	FilterEventStepComplete = hookz.Key("filter.step_complete")
	FilterEventStepSkipped  = hookz.Key("filter.step_skipped")
	FilterEventHalted       = hookz.Key("filter.halted")
	FilterEventRunComplete  = hookz.Key("filter.run_complete")
)

// StepEvent represents one pipeline execution event. It is emitted via
// hookz as steps complete, skip, or halt, and once more when the whole run
// finishes. RunID ties together every event belonging to one execution.
type StepEvent struct {
	FilterType      FilterType    // Extension point being run
	RunID           uuid.UUID     // Execution this event belongs to
	Reference       string        // Configured reference for this stage
	StageNumber     int           // Current stage number (1-based)
	TotalStages     int           // Total configured stages
	Success         bool          // Whether the stage succeeded
	Skipped         bool          // Whether the stage was skipped under fail-silently
	Halted          bool          // Whether the stage halted the pipeline
	Error           error         // Failure that caused a skip or halt
	Duration        time.Duration // How long this stage took
	CompletedStages int           // Stages completed (run_complete only)
	TotalDuration   time.Duration // Total run time (run_complete only)
	Timestamp       time.Time     // When the event occurred
}

// Filter is the pipeline runner for one extension point. It reads the
// point's configuration once per execution, resolves each configured
// reference through its Registry, invokes the resolved steps in order over
// the accumulated arguments, and applies the fail-silently policy to
// anything that breaks along the way.
//
// A Filter holds no mutable per-run state: concurrent Run calls are
// independent, and replacing configuration or registrations mid-run never
// affects an execution already in flight.
//
// # Observability
//
// Metrics:
//   - filter.runs.total: Counter of executions
//   - filter.successes.total: Counter of runs that completed normally
//   - filter.failures.total: Counter of runs aborted by a hard failure
//   - filter.halts.total: Counter of runs ended by a control signal
//   - filter.steps.skipped.total: Counter of steps skipped under fail-silently
//   - filter.stages.completed / filter.stages.total: Gauges of run progress
//   - filter.duration.ms: Gauge of total run duration
//
// Traces:
//   - filter.run: Parent span for the whole execution
//   - filter.stage: Child span per configured reference
//
// Events (via hooks):
//   - filter.step_complete: Fired as each step finishes
//   - filter.step_skipped: Fired when fail-silently swallows a step
//   - filter.halted: Fired when a step raises *Halt
//   - filter.run_complete: Fired when a run returns to the caller normally
//
// Skip events are the fail-silently audit trail: with the policy on, a
// broken step is invisible to the caller except through these hooks and
// the skip counter.
//
// Example:
//
//	enrollment := filtz.New("org.example.enrollment.started.v1", registry, lookup)
//	enrollment.OnStepSkipped(func(_ context.Context, event filtz.StepEvent) error {
//	    log.Warn("step %s skipped: %v", event.Reference, event.Error)
//	    return nil
//	})
type Filter struct {
	filterType FilterType
	registry   *Registry
	lookup     Lookup
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	hooks      *hookz.Hooks[StepEvent]
	clock      clockz.Clock
}

// New creates a Filter for one extension point, resolving references
// through registry and configuration through lookup.
func New(filterType FilterType, registry *Registry, lookup Lookup) *Filter {
	metrics := metricz.New()
	metrics.Counter(FilterRunsTotal)
	metrics.Counter(FilterSuccessesTotal)
	metrics.Counter(FilterFailuresTotal)
	metrics.Counter(FilterHaltsTotal)
	metrics.Counter(FilterStepsSkippedTotal)
	metrics.Gauge(FilterStagesCompleted)
	metrics.Gauge(FilterStagesTotal)
	metrics.Gauge(FilterDurationMs)

	return &Filter{
		filterType: filterType,
		registry:   registry,
		lookup:     lookup,
		metrics:    metrics,
		tracer:     tracez.New(),
		hooks:      hookz.New[StepEvent](),
	}
}

// WithClock sets a custom clock for testing.
func (f *Filter) WithClock(clock clockz.Clock) *Filter {
	f.clock = clock
	return f
}

func (f *Filter) getClock() clockz.Clock {
	if f.clock == nil {
		return clockz.RealClock
	}
	return f.clock
}

// Run executes the extension point's configured pipeline over the initial
// arguments and returns the final accumulated arguments.
//
// Configuration is read once at the start of the call; concurrent updates
// to the lookup or registry apply to later runs only. When no pipeline is
// configured, Run returns args unchanged. The caller's map is never
// mutated: the accumulated set starts as a clone, and each step receives
// its own clone of the current state.
//
// Outcomes:
//   - normal termination: the accumulated Kwargs after the last step, nil error
//   - *Halt from a step: nil Kwargs and exactly that *Halt, regardless of
//     the fail-silently policy
//   - ErrStop from a step: the Kwargs accumulated so far, nil error
//   - configuration shape error: nil Kwargs and the Lookup's error, before
//     any step runs
//   - hard step failure (fail-silently off): nil Kwargs and a *Error
//     locating the failed stage; accumulated state is discarded
//
// With fail-silently on, a reference that does not resolve or a step that
// fails or panics is skipped: the run continues as if that reference were
// absent, and the skip is recorded in events and counters.
func (f *Filter) Run(ctx context.Context, args Kwargs) (result Kwargs, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := f.lookup.Config(f.filterType)
	if err != nil {
		return nil, err
	}
	if len(cfg.Pipeline) == 0 {
		return args, nil
	}

	clock := f.getClock()
	f.metrics.Counter(FilterRunsTotal).Inc()
	f.metrics.Gauge(FilterStagesTotal).Set(float64(len(cfg.Pipeline)))
	start := clock.Now()

	ctx, span := f.tracer.StartSpan(ctx, FilterRunSpan)
	span.SetTag(FilterTagType, f.filterType)
	span.SetTag(FilterTagStageCount, strconv.Itoa(len(cfg.Pipeline)))
	defer func() {
		f.metrics.Gauge(FilterDurationMs).Set(float64(clock.Now().Sub(start).Milliseconds()))

		var halt *Halt
		switch {
		case err == nil:
			span.SetTag(FilterTagSuccess, "true")
			f.metrics.Counter(FilterSuccessesTotal).Inc()
		case errors.As(err, &halt):
			span.SetTag(FilterTagSuccess, "false")
			span.SetTag(FilterTagHalted, "true")
			f.metrics.Counter(FilterHaltsTotal).Inc()
		default:
			span.SetTag(FilterTagSuccess, "false")
			span.SetTag(FilterTagError, err.Error())
			f.metrics.Counter(FilterFailuresTotal).Inc()
		}
		span.Finish()
	}()

	meta := Metadata{
		FilterType: f.filterType,
		RunID:      uuid.New(),
		Pipeline:   append([]string(nil), cfg.Pipeline...),
		Extra:      cfg.Extra,
	}

	acc := args.Clone()
	completed := 0

	for i, ref := range cfg.Pipeline {
		select {
		case <-ctx.Done():
			return nil, &Error{
				Err:        ctx.Err(),
				FilterType: f.filterType,
				Reference:  ref,
				StageIndex: i,
				InputArgs:  acc,
				Timeout:    errors.Is(ctx.Err(), context.DeadlineExceeded),
				Canceled:   errors.Is(ctx.Err(), context.Canceled),
				Timestamp:  clock.Now(),
				Duration:   clock.Now().Sub(start),
			}
		default:
		}

		factory, resolveErr := f.registry.Resolve(ref)
		if resolveErr != nil {
			if cfg.FailSilently {
				f.recordSkip(ctx, meta, ref, i, len(cfg.Pipeline), resolveErr, 0, clock)
				continue
			}
			return nil, &Error{
				Err:        resolveErr,
				FilterType: f.filterType,
				Reference:  ref,
				StageIndex: i,
				InputArgs:  acc,
				Timestamp:  clock.Now(),
			}
		}

		stageCtx, stageSpan := f.tracer.StartSpan(ctx, FilterStageSpan)
		stageSpan.SetTag(FilterTagStageNumber, strconv.Itoa(i+1))
		stageSpan.SetTag(FilterTagReference, ref)

		stageStart := clock.Now()
		out, stepErr := runStep(stageCtx, factory, meta, acc.Clone())
		stageDuration := clock.Now().Sub(stageStart)

		var halt *Halt
		switch {
		case stepErr == nil:
			stageSpan.SetTag(FilterTagSuccess, "true")
			stageSpan.Finish()
			completed++
			f.metrics.Gauge(FilterStagesCompleted).Set(float64(completed))
			acc.Merge(out)
			_ = f.hooks.Emit(ctx, FilterEventStepComplete, StepEvent{ //nolint:errcheck
				FilterType:  f.filterType,
				RunID:       meta.RunID,
				Reference:   ref,
				StageNumber: i + 1,
				TotalStages: len(cfg.Pipeline),
				Success:     true,
				Duration:    stageDuration,
				Timestamp:   clock.Now(),
			})

		case errors.As(stepErr, &halt):
			// The control signal always wins: the caller gets the exact
			// value the step returned.
			stageSpan.SetTag(FilterTagHalted, "true")
			stageSpan.Finish()
			if halt.FilterType == "" {
				halt.FilterType = f.filterType
			}
			_ = f.hooks.Emit(ctx, FilterEventHalted, StepEvent{ //nolint:errcheck
				FilterType:  f.filterType,
				RunID:       meta.RunID,
				Reference:   ref,
				StageNumber: i + 1,
				TotalStages: len(cfg.Pipeline),
				Halted:      true,
				Error:       halt,
				Duration:    stageDuration,
				Timestamp:   clock.Now(),
			})
			return nil, halt

		case errors.Is(stepErr, ErrStop):
			stageSpan.SetTag(FilterTagSuccess, "true")
			stageSpan.Finish()
			completed++
			f.metrics.Gauge(FilterStagesCompleted).Set(float64(completed))
			_ = f.hooks.Emit(ctx, FilterEventStepComplete, StepEvent{ //nolint:errcheck
				FilterType:  f.filterType,
				RunID:       meta.RunID,
				Reference:   ref,
				StageNumber: i + 1,
				TotalStages: len(cfg.Pipeline),
				Success:     true,
				Duration:    stageDuration,
				Timestamp:   clock.Now(),
			})
			f.emitRunComplete(ctx, meta, len(cfg.Pipeline), completed, clock.Now().Sub(start), clock)
			return acc, nil

		default:
			stageSpan.SetTag(FilterTagSuccess, "false")
			stageSpan.SetTag(FilterTagError, stepErr.Error())
			stageSpan.Finish()
			if cfg.FailSilently {
				f.recordSkip(ctx, meta, ref, i, len(cfg.Pipeline), stepErr, stageDuration, clock)
				continue
			}
			return nil, &Error{
				Err:        stepErr,
				FilterType: f.filterType,
				Reference:  ref,
				StageIndex: i,
				InputArgs:  acc,
				Timeout:    errors.Is(stepErr, context.DeadlineExceeded),
				Canceled:   errors.Is(stepErr, context.Canceled),
				Timestamp:  clock.Now(),
				Duration:   stageDuration,
			}
		}
	}

	f.emitRunComplete(ctx, meta, len(cfg.Pipeline), completed, clock.Now().Sub(start), clock)
	return acc, nil
}

func (f *Filter) recordSkip(ctx context.Context, meta Metadata, ref string, index, total int, cause error, duration time.Duration, clock clockz.Clock) {
	f.metrics.Counter(FilterStepsSkippedTotal).Inc()
	_ = f.hooks.Emit(ctx, FilterEventStepSkipped, StepEvent{ //nolint:errcheck
		FilterType:  f.filterType,
		RunID:       meta.RunID,
		Reference:   ref,
		StageNumber: index + 1,
		TotalStages: total,
		Skipped:     true,
		Error:       cause,
		Duration:    duration,
		Timestamp:   clock.Now(),
	})
}

func (f *Filter) emitRunComplete(ctx context.Context, meta Metadata, total, completed int, totalDuration time.Duration, clock clockz.Clock) {
	_ = f.hooks.Emit(ctx, FilterEventRunComplete, StepEvent{ //nolint:errcheck
		FilterType:      f.filterType,
		RunID:           meta.RunID,
		TotalStages:     total,
		CompletedStages: completed,
		Success:         true,
		TotalDuration:   totalDuration,
		Timestamp:       clock.Now(),
	})
}

// runStep constructs and invokes one stage, containing panics from either
// the factory or the step itself.
func runStep(ctx context.Context, factory StepFactory, meta Metadata, args Kwargs) (out Kwargs, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	step := factory(meta)
	if step == nil {
		return nil, errors.New("factory returned nil step")
	}
	return step.Run(ctx, args)
}

// FilterType returns the extension point this Filter runs.
func (f *Filter) FilterType() FilterType {
	return f.filterType
}

// Metrics returns the metrics registry for this Filter.
func (f *Filter) Metrics() *metricz.Registry {
	return f.metrics
}

// Tracer returns the tracer for this Filter.
func (f *Filter) Tracer() *tracez.Tracer {
	return f.tracer
}

// Close gracefully shuts down observability components.
func (f *Filter) Close() error {
	if f.tracer != nil {
		f.tracer.Close()
	}
	f.hooks.Close()
	return nil
}

// OnStepComplete registers a handler for each step that finishes
// successfully. Handlers are called asynchronously.
func (f *Filter) OnStepComplete(handler func(context.Context, StepEvent) error) error {
	_, err := f.hooks.Hook(FilterEventStepComplete, handler)
	return err
}

// OnStepSkipped registers a handler for steps swallowed by the
// fail-silently policy. This is the audit trail for silent failures.
func (f *Filter) OnStepSkipped(handler func(context.Context, StepEvent) error) error {
	_, err := f.hooks.Hook(FilterEventStepSkipped, handler)
	return err
}

// OnHalted registers a handler for runs ended by a control signal.
func (f *Filter) OnHalted(handler func(context.Context, StepEvent) error) error {
	_, err := f.hooks.Hook(FilterEventHalted, handler)
	return err
}

// OnRunComplete registers a handler for runs that return to the caller
// normally, including early stops via ErrStop.
func (f *Filter) OnRunComplete(handler func(context.Context, StepEvent) error) error {
	_, err := f.hooks.Hook(FilterEventRunComplete, handler)
	return err
}
