package keyutil

import (
	"fmt"
	"sync"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk"
)

// Set holds the candidate keys of a reader, indexed by key ID. It is safe
// for concurrent use.
type Set struct {
	mutex sync.RWMutex

	ids  []string
	keys map[string]any
}

// NewSet returns an empty key set.
func NewSet() *Set {
	return &Set{keys: make(map[string]any)}
}

// SingleKeySet returns a set holding one key with no key ID. Such a key
// is selected for any object, with or without a "kid".
func SingleKeySet(key any) *Set {
	s := NewSet()
	s.ids = []string{""}
	s.keys[""] = key
	return s
}

// Add inserts a key under the given key ID. An empty key ID is replaced
// by the thumbprint of the key.
func (s *Set) Add(kid string, key any) error {
	if _, err := Describe(key); err != nil {
		return err
	}

	if kid == "" {
		var err error
		kid, err = Thumbprint(key)
		if err != nil {
			return fmt.Errorf("failed to derive key ID: %w", err)
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.keys[kid]; ok {
		return fmt.Errorf("%w: duplicate key ID %q", jose.ErrInvalidKey, kid)
	}

	s.ids = append(s.ids, kid)
	s.keys[kid] = key

	return nil
}

// Len returns the number of keys in the set.
func (s *Set) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.ids)
}

// IDs returns the key IDs in insertion order.
func (s *Set) IDs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return append([]string(nil), s.ids...)
}

// Select returns the key for an object carrying the given "kid".
//
// With more than one candidate key, an object without a "kid" is
// malformed: the caller must not guess. A "kid" that matches no key is
// an invalid key error. A set built with SingleKeySet matches any "kid".
func (s *Set) Select(kid string) (any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	switch {
	case len(s.ids) == 0:
		return nil, jose.InvalidKey("no keys available")
	case kid == "" && len(s.ids) > 1:
		return nil, jose.Malformedf("missing %q with %d candidate keys", "kid", len(s.ids))
	case kid == "":
		return s.keys[s.ids[0]], nil
	}

	if key, ok := s.keys[kid]; ok {
		return key, nil
	}

	if len(s.ids) == 1 && s.ids[0] == "" {
		return s.keys[""], nil
	}

	return nil, jose.InvalidKey("no key with ID %q", kid)
}

// SetFromJWK converts a JWK set. Keys without a "kid" are indexed by
// their thumbprint.
func SetFromJWK(set *jwk.Set) (*Set, error) {
	if err := set.Validate(); err != nil {
		return nil, &jose.Error{Kind: jose.ErrInvalidKey, Reason: "invalid JWK set", Err: err}
	}

	s := NewSet()

	for i, value := range set.Keys {
		key, err := jwk.Key(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert key %d: %w", i, err)
		}

		kid, _ := value[jwk.KeyID].(string)

		if err := s.Add(kid, key); err != nil {
			return nil, fmt.Errorf("failed to add key %d: %w", i, err)
		}
	}

	return s, nil
}
