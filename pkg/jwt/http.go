package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FromHTTPAuthorizationHeader extracts a JWT string from the Authorization header of an HTTP request.
// If the Authorization header is not set, then an error is returned.
//
// # Warning
//
// This value needs to be parsed and verified before it can be used safely.
func FromHTTPAuthorizationHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || token == "" || strings.Contains(token, " ") {
		return "", errors.New("invalid authorization header format")
	}

	if !strings.EqualFold(scheme, "bearer") {
		return "", errors.New("invalid authorization header format")
	}

	return token, nil
}

// HTTPHeaderValue is a type that can be used as a value when setting
// an HTTP request header.
type HTTPHeaderValue interface {
	string | *Token
}

// SetHTTPAuthorizationHeader sets the Authorization header of an HTTP request
// to the given JWT. The JWT is prefixed with "Bearer ", as required by the
// HTTP Authorization header specification.
//
// https://tools.ietf.org/html/rfc6750#section-2.1
func SetHTTPAuthorizationHeader[T HTTPHeaderValue](r *http.Request, jwt T) {
	r.Header.Set("Authorization", fmt.Sprintf("Bearer %s", jwt))
}
