package config

import "dario.cat/mergo"

// mergeSection merges a user-supplied YAML section onto a copy of the
// built-in defaults, with non-zero user fields overriding the defaults.
// dst is mutated in place.
func mergeSection[T any](dst *T, src *T) error {
	if src == nil {
		return nil
	}
	return mergo.Merge(dst, src, mergo.WithOverride)
}
