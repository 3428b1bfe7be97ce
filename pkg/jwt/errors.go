package jwt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is wrapped by every verification failure.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNoClaimSet is returned when creating a token without claims.
	ErrNoClaimSet = errors.New("no claim set")

	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenNotYetValid = errors.New("token is not valid yet")
)

// SigningError is returned by New when the token cannot be signed.
type SigningError struct {
	Inner error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing failed: %v", e.Inner)
}

func (e *SigningError) Unwrap() error {
	return e.Inner
}

// ClaimTypeError is returned when a registered claim has a value of the
// wrong type, such as a string "exp".
type ClaimTypeError struct {
	Name  ClaimName
	Value ClaimValue
}

func (e *ClaimTypeError) Error() string {
	return fmt.Sprintf("invalid type %T used for %q", e.Value, e.Name)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidToken, err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidToken, fmt.Sprintf(format, args...))
}
