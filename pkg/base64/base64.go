package base64

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEncoding is returned for input that is not canonical,
// unpadded base64url.
var ErrInvalidEncoding = errors.New("base64: invalid base64url input")

var encoding = base64.RawURLEncoding.Strict()

// Decode returns the base64url decoded bytes from the given input.
// This function implements base64url decoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE specifications (RFC 7515, RFC 7516).
//
// Padding, line breaks and non-zero trailing bits are rejected, so every
// byte string has exactly one accepted encoding. Empty input decodes to an
// empty slice, since empty payloads and empty encrypted keys are valid.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	// The standard library silently skips CR and LF characters.
	if strings.ContainsAny(input, "\r\n") {
		return nil, fmt.Errorf("%w: contains line break", ErrInvalidEncoding)
	}

	result, err := encoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return result, nil
}

// Encode returns the base64url encoded string from the given input.
// This function implements base64url encoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE specifications (RFC 7515, RFC 7516).
//
// It omits padding characters as required by the JOSE specifications.
func Encode(input []byte) string {
	return encoding.EncodeToString(input)
}
