package filtz

import "context"

// Transform creates a StepFactory from a pure function that always
// succeeds. Use it for steps that reshape arguments predictably:
// formatting, defaulting, computed fields.
//
// If the step might fail, use Apply. If it only observes, use Effect.
//
// Example:
//
//	lowercaseEmail := filtz.Transform("lowercase_email", func(_ context.Context, args filtz.Kwargs) filtz.Kwargs {
//	    return filtz.Kwargs{"email": strings.ToLower(args.String("email"))}
//	})
func Transform(name Name, fn func(context.Context, Kwargs) Kwargs) StepFactory {
	return func(Metadata) Step {
		return stepFunc{
			name: name,
			fn: func(ctx context.Context, args Kwargs) (Kwargs, error) {
				return fn(ctx, args), nil
			},
		}
	}
}
