package jwa

import (
	"golang.org/x/exp/slices"
)

// AllowedAlgorithms is a set of algorithms a reader accepts.
type AllowedAlgorithms map[Algorithm]struct{}

// NewAllowedAlgorithms returns a set containing the given algorithms.
func NewAllowedAlgorithms(algs ...Algorithm) AllowedAlgorithms {
	allowed := make(AllowedAlgorithms, len(algs))
	for _, alg := range algs {
		allowed[alg] = struct{}{}
	}
	return allowed
}

// DefaultAllowedAlgorithms returns the signature algorithms allowed when
// a caller does not choose.
func DefaultAllowedAlgorithms() AllowedAlgorithms {
	return NewAllowedAlgorithms(RS256, ES256)
}

// List returns the algorithms in the set, sorted.
func (a AllowedAlgorithms) List() []Algorithm {
	return sortedKeys(a)
}

// Allowed reports whether every given algorithm is in the set.
func (a AllowedAlgorithms) Allowed(algs ...Algorithm) bool {
	if len(algs) == 0 {
		return false
	}
	for _, alg := range algs {
		if _, ok := a[alg]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[Algorithm]V) []Algorithm {
	keys := make([]Algorithm, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
