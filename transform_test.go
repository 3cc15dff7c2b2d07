package filtz

import (
	"context"
	"strings"
	"testing"
)

func TestTransform(t *testing.T) {
	factory := Transform("lowercase_email", func(_ context.Context, args Kwargs) Kwargs {
		return Kwargs{"email": strings.ToLower(args.String("email"))}
	})

	step := factory(Metadata{})
	out, err := step.Run(context.Background(), Kwargs{"email": "User@Example.COM"})
	if err != nil {
		t.Fatalf("transform steps cannot fail: %v", err)
	}
	if out.String("email") != "user@example.com" {
		t.Errorf("expected lowercased email, got %q", out.String("email"))
	}
	if step.Name() != "lowercase_email" {
		t.Errorf("unexpected name %q", step.Name())
	}
}
