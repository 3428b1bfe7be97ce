package header

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// ErrCritical is returned when a "crit" header parameter cannot be honoured.
var ErrCritical = errors.New("critical header parameter rejected")

// ValidateCritical enforces the "crit" rules of RFC 7515 Section 4.1.11
// against a protected header and any unprotected headers of the same
// object. The understood names are the extensions the caller processes.
//
// Every failure is fatal: an extension that is listed but not understood
// makes the whole object invalid.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func ValidateCritical(protected Parameters, understood []string, unprotected ...Parameters) error {
	for _, h := range unprotected {
		if h.Has(Critical) {
			return fmt.Errorf("%w: %q must be integrity protected", ErrCritical, Critical)
		}
	}

	if !protected.Has(Critical) {
		return nil
	}

	names, err := protected.Critical()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCritical, err)
	}

	if len(names) == 0 {
		return fmt.Errorf("%w: %q must not be empty", ErrCritical, Critical)
	}

	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		if _, ok := registered[name]; ok {
			return fmt.Errorf("%w: registered parameter %q listed", ErrCritical, name)
		}

		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q listed more than once", ErrCritical, name)
		}
		seen[name] = struct{}{}

		if !slices.Contains(understood, name) {
			return fmt.Errorf("%w: %q is not understood", ErrCritical, name)
		}

		if !protected.Has(name) {
			return fmt.Errorf("%w: %q is listed but not present", ErrCritical, name)
		}
	}

	return nil
}
