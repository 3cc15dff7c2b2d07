package filtz

import "context"

// Effect creates a StepFactory from a function that observes the
// accumulated arguments without modifying them: auditing, notifications,
// counters. The accumulated arguments continue to the next step unchanged.
//
// An error from the function still counts as a step failure and is subject
// to the fail-silently policy, so a broken audit step can be configured to
// either skip or abort like any other.
//
// Example:
//
//	recordAudit := filtz.Effect("record_audit", func(ctx context.Context, args filtz.Kwargs) error {
//	    return audit.Record(ctx, args.String("user_id"), args.String("course_key"))
//	})
func Effect(name Name, fn func(context.Context, Kwargs) error) StepFactory {
	return func(Metadata) Step {
		return stepFunc{
			name: name,
			fn: func(ctx context.Context, args Kwargs) (Kwargs, error) {
				return nil, fn(ctx, args)
			},
		}
	}
}
