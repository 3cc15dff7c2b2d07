package filtz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func noopFactory(name Name) StepFactory {
	return Apply(name, func(_ context.Context, _ Kwargs) (Kwargs, error) {
		return nil, nil
	})
}

func TestRegistryRegister(t *testing.T) {
	t.Run("Register And Resolve", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register("auth.CheckDomain", noopFactory("check_domain")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		factory, err := registry.Resolve("auth.CheckDomain")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if factory == nil {
			t.Fatal("expected a factory")
		}
	})

	t.Run("Empty Reference Rejected", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register("", noopFactory("x")); !errors.Is(err, ErrEmptyReference) {
			t.Errorf("expected ErrEmptyReference, got %v", err)
		}
	})

	t.Run("Nil Factory Rejected", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Register("auth.CheckDomain", nil); !errors.Is(err, ErrNilFactory) {
			t.Errorf("expected ErrNilFactory, got %v", err)
		}
	})

	t.Run("Re-Register Replaces", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register("mod.Step", Apply("first", func(_ context.Context, _ Kwargs) (Kwargs, error) {
			return Kwargs{"version": 1}, nil
		}))
		registry.Register("mod.Step", Apply("second", func(_ context.Context, _ Kwargs) (Kwargs, error) {
			return Kwargs{"version": 2}, nil
		}))

		factory, err := registry.Resolve("mod.Step")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, _ := factory(Metadata{}).Run(context.Background(), Kwargs{})
		if out.Int("version") != 2 {
			t.Errorf("expected replacement factory, got version %d", out.Int("version"))
		}
	})
}

func TestRegistryResolveClassification(t *testing.T) {
	registry := NewRegistry()
	registry.Register("enrollment.CheckCapacity", noopFactory("check_capacity"))

	tests := []struct {
		name string
		ref  string
		kind ResolutionKind
	}{
		{"Unknown Namespace Is NotFound", "missing.Step", KindNotFound},
		{"Known Namespace Missing Symbol Is NotImplemented", "enrollment.RecordAudit", KindNotImplemented},
		{"Reference Without Namespace Is NotFound", "bare", KindNotFound},
		{"Empty Reference Is NotFound", "", KindNotFound},
		{"Namespace Prefix Must Match Whole Segments", "enroll.Step", KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Resolve(tt.ref)
			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("expected *ResolutionError, got %v", err)
			}
			if resErr.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, resErr.Kind)
			}
			if resErr.Reference != tt.ref {
				t.Errorf("expected reference %q, got %q", tt.ref, resErr.Reference)
			}
		})
	}
}

func TestRegistryDeregister(t *testing.T) {
	registry := NewRegistry()
	registry.Register("mod.Step1", noopFactory("step1"))
	registry.Register("mod.Step2", noopFactory("step2"))

	registry.Deregister("mod.Step1")

	// Namespace still has registrations, so the removed symbol reports
	// NotImplemented rather than NotFound.
	_, err := registry.Resolve("mod.Step1")
	var resErr *ResolutionError
	if !errors.As(err, &resErr) || resErr.Kind != KindNotImplemented {
		t.Errorf("expected NotImplemented after deregister, got %v", err)
	}

	registry.Deregister("mod.Step2")
	_, err = registry.Resolve("mod.Step1")
	if !errors.As(err, &resErr) || resErr.Kind != KindNotFound {
		t.Errorf("expected NotFound once namespace is empty, got %v", err)
	}

	// Removing an unknown reference is a no-op.
	registry.Deregister("never.Registered")
}

func TestRegistryRefs(t *testing.T) {
	registry := NewRegistry()
	registry.Register("b.Step", noopFactory("b"))
	registry.Register("a.Step", noopFactory("a"))
	registry.Register("c.Step", noopFactory("c"))

	refs := registry.Refs()
	expected := []string{"a.Step", "b.Step", "c.Step"}
	if !reflect.DeepEqual(refs, expected) {
		t.Errorf("expected sorted refs %v, got %v", expected, refs)
	}
	if registry.Len() != 3 {
		t.Errorf("expected 3 registrations, got %d", registry.Len())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	registry.Register("mod.Step0", noopFactory("step0"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			registry.Register(fmt.Sprintf("mod.Step%d", n), noopFactory("step"))
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := registry.Resolve("mod.Step0"); err != nil {
					t.Errorf("resolve of a registered ref should never fail: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestResolutionKindString(t *testing.T) {
	if KindNotFound.String() != "not_found" {
		t.Errorf("unexpected name %q", KindNotFound.String())
	}
	if KindNotImplemented.String() != "not_implemented" {
		t.Errorf("unexpected name %q", KindNotImplemented.String())
	}
}
