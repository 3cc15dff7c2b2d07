package filtz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registration errors.
var (
	ErrEmptyReference = errors.New("reference must not be empty")
	ErrNilFactory     = errors.New("factory must not be nil")
)

// ResolutionKind classifies why a reference failed to resolve.
type ResolutionKind int

const (
	// KindNotFound means nothing is registered under the reference's
	// namespace: the package that should provide the step is absent.
	KindNotFound ResolutionKind = iota

	// KindNotImplemented means the namespace has registrations but not
	// this symbol: the package exists, the step does not.
	KindNotImplemented
)

// String returns the kind's wire name.
func (k ResolutionKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return fmt.Sprintf("resolution_kind(%d)", int(k))
	}
}

// ResolutionError reports that a configured reference does not resolve to
// a registered step. Its two kinds are exactly the misconfigurations a
// fail-silently pipeline skips over; everything else that can go wrong in
// a run is an invocation failure.
type ResolutionError struct {
	Reference string
	Kind      ResolutionKind
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	switch e.Kind {
	case KindNotImplemented:
		return fmt.Sprintf("step %q not implemented: namespace is registered but the symbol is missing", e.Reference)
	default:
		return fmt.Sprintf("step %q not found: no registrations under its namespace", e.Reference)
	}
}

// Registry maps step references to factories. It is the resolution
// boundary of the engine: configuration names steps by opaque reference
// strings, and Resolve turns a reference into the factory that builds the
// step, or a classified ResolutionError.
//
// References follow the "namespace.Symbol" convention, split at the last
// dot. The namespace stands in for the package that provides the step, so
// a miss can distinguish "package absent" from "package present, step
// missing" - the distinction fail-silently policies care about.
//
// Reads are lock-free: the registration table is an immutable map swapped
// atomically on every write. Registration is expected at startup; Resolve
// runs once per reference per execution and never blocks on writers. A
// Resolve racing a Register sees either the old or the new table, never a
// partial one, so an in-flight execution is unaffected by concurrent
// reconfiguration.
type Registry struct {
	steps atomic.Pointer[map[string]StepFactory]
	mu    sync.Mutex
}

// NewRegistry creates an empty Registry ready for concurrent use.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]StepFactory{}
	r.steps.Store(&empty)
	return r
}

// Register binds a factory to a reference. Registering an existing
// reference replaces its factory; executions already in flight keep the
// table they resolved against.
func (r *Registry) Register(ref string, factory StepFactory) error {
	if ref == "" {
		return ErrEmptyReference
	}
	if factory == nil {
		return ErrNilFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.steps.Load()
	next := make(map[string]StepFactory, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[ref] = factory
	r.steps.Store(&next)
	return nil
}

// Deregister removes a reference. Removing an unknown reference is a no-op.
func (r *Registry) Deregister(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.steps.Load()
	if _, ok := current[ref]; !ok {
		return
	}
	next := make(map[string]StepFactory, len(current)-1)
	for k, v := range current {
		if k != ref {
			next[k] = v
		}
	}
	r.steps.Store(&next)
}

// Resolve maps a reference to its registered factory. A miss is classified
// as *ResolutionError with KindNotFound or KindNotImplemented; resolution
// itself executes no step code, so these are the only failures it can
// produce.
func (r *Registry) Resolve(ref string) (StepFactory, error) {
	if ref == "" {
		return nil, &ResolutionError{Reference: ref, Kind: KindNotFound}
	}

	table := *r.steps.Load()
	if factory, ok := table[ref]; ok {
		return factory, nil
	}

	ns := namespaceOf(ref)
	if ns != "" {
		prefix := ns + "."
		for registered := range table {
			if strings.HasPrefix(registered, prefix) {
				return nil, &ResolutionError{Reference: ref, Kind: KindNotImplemented}
			}
		}
	}
	return nil, &ResolutionError{Reference: ref, Kind: KindNotFound}
}

// Refs returns all registered references in sorted order.
func (r *Registry) Refs() []string {
	table := *r.steps.Load()
	refs := make([]string, 0, len(table))
	for ref := range table {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Len returns the number of registered references.
func (r *Registry) Len() int {
	return len(*r.steps.Load())
}

// namespaceOf returns everything before the last dot, or "" when the
// reference has no namespace.
func namespaceOf(ref string) string {
	idx := strings.LastIndexByte(ref, '.')
	if idx <= 0 {
		return ""
	}
	return ref[:idx]
}
