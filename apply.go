package filtz

import "context"

// stepFunc is the Step produced by the Apply, Transform, and Effect
// adapters. The factories they return ignore Metadata.
type stepFunc struct {
	fn   func(context.Context, Kwargs) (Kwargs, error)
	name Name
}

func (s stepFunc) Run(ctx context.Context, args Kwargs) (Kwargs, error) {
	return s.fn(ctx, args)
}

func (s stepFunc) Name() Name {
	return s.name
}

// Apply creates a StepFactory from a function that inspects the
// accumulated arguments and may fail. Apply is the workhorse adapter - use
// it when the step's decision depends on work that can go wrong:
// validation, lookups, external calls.
//
// The returned Kwargs are merged into the accumulated arguments by key
// overwrite; return nil to leave them unchanged. Return *Halt to abort the
// pipeline with a decision, ErrStop to end it early and keep what
// accumulated, or any other error to invoke the fail-silently policy.
//
// Example:
//
//	checkCapacity := filtz.Apply("check_capacity", func(ctx context.Context, args filtz.Kwargs) (filtz.Kwargs, error) {
//	    course := args.String("course_key")
//	    seats, err := seatsLeft(ctx, course)
//	    if err != nil {
//	        return nil, err
//	    }
//	    if seats == 0 {
//	        return nil, &filtz.Halt{Message: "course is full"}
//	    }
//	    return filtz.Kwargs{"seats_left": seats}, nil
//	})
func Apply(name Name, fn func(context.Context, Kwargs) (Kwargs, error)) StepFactory {
	return func(Metadata) Step {
		return stepFunc{name: name, fn: fn}
	}
}
