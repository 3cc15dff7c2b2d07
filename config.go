package filtz

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the normalized pipeline configuration for one extension point:
// the ordered reference list plus the fail-silently policy. Hosts rarely
// build it directly; Normalize and the YAML decoder accept the three
// shorthand shapes configuration sources use and produce a Config.
//
// A zero Config means "no pipeline configured": Run degrades to a no-op
// and returns the initial arguments unchanged.
type Config struct {
	// Pipeline is the ordered list of step references to execute.
	Pipeline []string `yaml:"pipeline"`

	// FailSilently controls what a broken step does to the run. True skips
	// misconfigured or failing steps and continues; false aborts the run
	// at the failing stage. Shorthand configuration shapes default to true.
	FailSilently bool `yaml:"fail_silently"`

	// Extra holds configuration keys the engine ignores but forwards to
	// step factories via Metadata.
	Extra Kwargs `yaml:"-"`
}

// ShapeError reports malformed configuration: a value that is none of the
// accepted shapes. It is always fatal - Run surfaces it before resolving
// or invoking any step, regardless of the fail-silently policy, because a
// pipeline whose configuration cannot be read has no meaningful partial
// behavior.
type ShapeError struct {
	FilterType FilterType
	Value      any
	Reason     string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.FilterType != "" {
		return fmt.Sprintf("malformed configuration for %q: %s (got %T)", e.FilterType, e.Reason, e.Value)
	}
	return fmt.Sprintf("malformed configuration: %s (got %T)", e.Reason, e.Value)
}

// Normalize converts any accepted configuration shape into a Config:
//
//   - nil: no configuration, empty pipeline
//   - string: a single reference, fail-silently defaults to true
//   - []string or []any of strings: an ordered reference list,
//     fail-silently defaults to true
//   - map[string]any: full record with "pipeline" (string or list),
//     "fail_silently" (default true), and arbitrary extra keys
//   - Config or *Config: passed through
//
// Anything else is a *ShapeError.
func Normalize(raw any) (Config, error) {
	switch v := raw.(type) {
	case nil:
		return Config{FailSilently: true}, nil
	case Config:
		return v, nil
	case *Config:
		if v == nil {
			return Config{FailSilently: true}, nil
		}
		return *v, nil
	case string:
		return Config{Pipeline: []string{v}, FailSilently: true}, nil
	case []string:
		pipeline := make([]string, len(v))
		copy(pipeline, v)
		return Config{Pipeline: pipeline, FailSilently: true}, nil
	case []any:
		pipeline := make([]string, 0, len(v))
		for _, item := range v {
			ref, ok := item.(string)
			if !ok {
				return Config{}, &ShapeError{Value: item, Reason: "pipeline entries must be reference strings"}
			}
			pipeline = append(pipeline, ref)
		}
		return Config{Pipeline: pipeline, FailSilently: true}, nil
	case map[string]any:
		return normalizeRecord(v)
	default:
		return Config{}, &ShapeError{Value: raw, Reason: "expected a reference string, a reference list, or a configuration record"}
	}
}

func normalizeRecord(record map[string]any) (Config, error) {
	cfg := Config{FailSilently: true}

	for key, value := range record {
		switch key {
		case "pipeline":
			switch p := value.(type) {
			case string:
				cfg.Pipeline = []string{p}
			case []string:
				cfg.Pipeline = append([]string(nil), p...)
			case []any:
				for _, item := range p {
					ref, ok := item.(string)
					if !ok {
						return Config{}, &ShapeError{Value: item, Reason: "pipeline entries must be reference strings"}
					}
					cfg.Pipeline = append(cfg.Pipeline, ref)
				}
			case nil:
			default:
				return Config{}, &ShapeError{Value: value, Reason: "pipeline must be a reference string or a reference list"}
			}
		case "fail_silently":
			b, ok := value.(bool)
			if !ok {
				return Config{}, &ShapeError{Value: value, Reason: "fail_silently must be a boolean"}
			}
			cfg.FailSilently = b
		default:
			if cfg.Extra == nil {
				cfg.Extra = Kwargs{}
			}
			cfg.Extra[key] = value
		}
	}
	return cfg, nil
}

// UnmarshalYAML decodes any of the accepted configuration shapes from
// YAML, so a configuration file can write whichever shorthand fits:
//
//	org.example.auth.login.v1: "auth.CheckDomain"
//
//	org.example.enrollment.started.v1:
//	  - "enrollment.CheckCapacity"
//	  - "enrollment.RecordAudit"
//
//	org.example.billing.checkout.v1:
//	  pipeline:
//	    - "billing.ApplyDiscount"
//	  fail_silently: false
//	  log_level: debug
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	cfg, err := Normalize(raw)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// Lookup is the configuration collaborator consumed by a Filter. Config
// returns the normalized configuration for an extension point; unknown
// points return a zero Config, which runs as a no-op. A non-nil error
// means the configuration exists but is unreadable and is always fatal to
// the run.
//
// Implementations must provide snapshot semantics: the Config returned for
// one execution must not change under that execution's feet when the
// source is updated concurrently.
type Lookup interface {
	Config(filterType FilterType) (Config, error)
}

// StaticLookup is a fixed, already-normalized configuration table. The map
// must not be mutated while Filters read from it.
type StaticLookup map[FilterType]Config

// Config implements Lookup.
func (s StaticLookup) Config(filterType FilterType) (Config, error) {
	cfg := s[filterType]
	cfg.Pipeline = append([]string(nil), cfg.Pipeline...)
	return cfg, nil
}

// RawLookup is a configuration table in any of the accepted shapes,
// normalized on every read. Useful when configuration arrives as decoded
// JSON or framework settings rather than typed Config values.
type RawLookup map[FilterType]any

// Config implements Lookup.
func (r RawLookup) Config(filterType FilterType) (Config, error) {
	raw, ok := r[filterType]
	if !ok {
		return Config{}, nil
	}
	cfg, err := Normalize(raw)
	if err != nil {
		var shapeErr *ShapeError
		if errors.As(err, &shapeErr) {
			shapeErr.FilterType = filterType
		}
		return Config{}, err
	}
	return cfg, nil
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(filterType FilterType) (Config, error)

// Config implements Lookup.
func (f LookupFunc) Config(filterType FilterType) (Config, error) {
	return f(filterType)
}
