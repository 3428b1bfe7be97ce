package jose

import (
	"errors"
	"fmt"
)

// Error kinds returned by every package in this module. Callers match them
// with errors.Is, regardless of any additional reason attached.
//
// ErrInvalidSignature and ErrDecryptionFailure are always returned bare,
// so a failed verification or decryption never reveals which check failed.
var (
	// ErrMalformedInput is returned for structural problems: a wrong number
	// of segments, invalid base64url or JSON, a missing mandatory header
	// parameter, or a "crit" violation.
	ErrMalformedInput = errors.New("jose: malformed input")

	// ErrUnsupportedAlgorithm is returned for an unknown, unimplemented,
	// or disallowed "alg", "enc" or "zip" value.
	ErrUnsupportedAlgorithm = errors.New("jose: unsupported algorithm")

	// ErrUnsupportedKeyLength is returned when a symmetric key length does
	// not map to any algorithm.
	ErrUnsupportedKeyLength = errors.New("jose: unsupported key length")

	// ErrInvalidKey is returned when the key does not fit the algorithm,
	// or when no key can be selected for an object.
	ErrInvalidKey = errors.New("jose: invalid key")

	// ErrInvalidSignature is returned when a signature or MAC does not verify.
	ErrInvalidSignature = errors.New("jose: invalid signature")

	// ErrDecryptionFailure is returned when a JWE cannot be decrypted.
	ErrDecryptionFailure = errors.New("jose: decryption failed")

	// ErrSerialization is returned when an object cannot be written in
	// the requested form.
	ErrSerialization = errors.New("jose: serialization error")
)

// Error is a structural error with a reason that is safe to disclose.
type Error struct {
	// Kind is one of the package level sentinel errors.
	Kind error

	// Reason describes what was wrong with the input.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Malformed returns an ErrMalformedInput error with the given reason.
func Malformed(reason string, err error) error {
	return &Error{Kind: ErrMalformedInput, Reason: reason, Err: err}
}

// Malformedf returns an ErrMalformedInput error with a formatted reason.
func Malformedf(format string, args ...any) error {
	return &Error{Kind: ErrMalformedInput, Reason: fmt.Sprintf(format, args...)}
}

// Unsupported returns an ErrUnsupportedAlgorithm error naming the algorithm.
func Unsupported(kind, name string) error {
	return &Error{Kind: ErrUnsupportedAlgorithm, Reason: fmt.Sprintf("%s %q", kind, name)}
}

// InvalidKey returns an ErrInvalidKey error with a formatted reason.
func InvalidKey(format string, args ...any) error {
	return &Error{Kind: ErrInvalidKey, Reason: fmt.Sprintf(format, args...)}
}

// SerializationError returns an ErrSerialization error with the given reason.
func SerializationError(reason string, err error) error {
	return &Error{Kind: ErrSerialization, Reason: reason, Err: err}
}
