package filtz

import "maps"

// Kwargs is the accumulated named-argument set threaded through one
// pipeline execution. It is seeded from the caller's initial arguments and
// updated after every step by key overwrite: keys a step returns take
// precedence, keys it does not mention keep their previous values.
//
// Kwargs exist only for the duration of one Run call. The runner clones the
// caller's map before the first step, so neither steps nor the engine
// mutate the caller's copy.
//
// Values are untyped by design: the argument shape of an extension point is
// an agreement between the host application and step authors, not something
// the engine inspects.
type Kwargs map[string]any

// Clone returns a shallow copy of the argument set. Key ownership is
// isolated; values are shared.
func (k Kwargs) Clone() Kwargs {
	if k == nil {
		return Kwargs{}
	}
	return maps.Clone(k)
}

// Merge applies other on top of k by key overwrite and returns k.
// A nil other is a no-op.
func (k Kwargs) Merge(other Kwargs) Kwargs {
	for key, value := range other {
		k[key] = value
	}
	return k
}

// String returns the string value stored under key, or "" when the key is
// absent or holds a non-string.
func (k Kwargs) String(key string) string {
	s, _ := k[key].(string)
	return s
}

// Int returns the int value stored under key, or 0 when the key is absent
// or holds a non-int.
func (k Kwargs) Int(key string) int {
	n, _ := k[key].(int)
	return n
}

// Bool returns the bool value stored under key, or false when the key is
// absent or holds a non-bool.
func (k Kwargs) Bool(key string) bool {
	b, _ := k[key].(bool)
	return b
}
