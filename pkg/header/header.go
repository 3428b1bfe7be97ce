package header

import (
	"bytes"
	"crypto/x509"
	stdbase64 "encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"

	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk"
)

// There are three classes of Header Parameter names: Registered Header
// Parameter names, Public Header Parameter names, and Private Header
// Parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type (
	ParameterName = string

	Registered = ParameterName
	Public     = ParameterName
	Private    = ParameterName
)

// Registered Header Parameter Names
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1
const (
	Type                            Registered = "typ"
	Algorithm                       Registered = "alg"
	JWKSetURL                       Registered = "jku"
	JSONWebKey                      Registered = "jwk"
	X509URL                         Registered = "x5u"
	X509CertificateChain            Registered = "x5c"
	X509CertificateSHA1Thumbprint   Registered = "x5t"
	X509CertificateSHA256Thumbprint Registered = "x5t#S256"
	ContentType                     Registered = "cty"
	Critical                        Registered = "crit"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.2
	Encryption Registered = "enc"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.3
	Compression Registered = "zip"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.6
	KeyID Registered = "kid"

	// https://www.rfc-editor.org/rfc/rfc7518.html#section-4.8.1
	PBES2SaltInput Registered = "p2s"
	PBES2Count     Registered = "p2c"
)

// registered is every name defined by RFC 7515, RFC 7516 and RFC 7518,
// none of which may appear in a "crit" list.
var registered = map[ParameterName]struct{}{
	Type: {}, Algorithm: {}, JWKSetURL: {}, JSONWebKey: {}, X509URL: {},
	X509CertificateChain: {}, X509CertificateSHA1Thumbprint: {},
	X509CertificateSHA256Thumbprint: {}, ContentType: {}, Critical: {},
	Encryption: {}, Compression: {}, KeyID: {}, PBES2SaltInput: {}, PBES2Count: {},
	"epk": {}, "apu": {}, "apv": {}, "iv": {}, "tag": {},
}

// TypeJWT is the "typ" value for JSON Web Tokens.
const TypeJWT = "JWT"

var (
	// ErrParameterNotFound is returned when a header does not contain
	// the requested parameter.
	ErrParameterNotFound = errors.New("header parameter not found")

	// ErrInvalidParameterType is returned when a header parameter has
	// a value of the wrong JSON type.
	ErrInvalidParameterType = errors.New("header parameter has invalid type")

	// ErrDuplicateParameter is returned when a parameter name appears twice,
	// either within one JSON object or across the headers of one object.
	ErrDuplicateParameter = errors.New("duplicate header parameter")
)

// Parameters is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) Header is comprised
// of a set of Header Parameters.
type Parameters map[ParameterName]any

// Marshal returns the canonical JSON encoding of the header: members
// sorted by name, no HTML escaping, no insignificant whitespace.
//
// Once these bytes feed a signing input or AAD they are the header as far
// as the wire is concerned; parsed objects keep the bytes they arrived
// with instead of calling Marshal again.
func (h Parameters) Marshal() ([]byte, error) {
	buff := bytes.NewBuffer(nil)

	enc := json.NewEncoder(buff)
	enc.SetEscapeHTML(false)

	err := enc.Encode(map[ParameterName]any(h))
	if err != nil {
		return nil, fmt.Errorf("failed to encode JOSE header: %w", err)
	}

	return bytes.TrimSuffix(buff.Bytes(), []byte("\n")), nil
}

// Base64URLString returns the base64url encoding of the canonical JSON
// form of the header.
func (h Parameters) Base64URLString() (string, error) {
	b, err := h.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to encode JOSE header base64 URL string: %w", err)
	}
	return base64.Encode(b), nil
}

// Parse decodes a base64url encoded protected header segment.
func Parse(segment string) (Parameters, error) {
	b, err := base64.Decode(segment)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	h, err := ParseJSON(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	return h, nil
}

// ParseJSON decodes a JSON header object. Member names must be unique.
func ParseJSON(b []byte) (Parameters, error) {
	h := Parameters{}

	err := decodeObject(b, func(name string, dec *json.Decoder) error {
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode header parameter %q: %w", name, err)
		}
		h[name] = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	return h, nil
}

// UniqueMembers checks that b is a single JSON object whose member names
// are unique. Member values are not inspected.
func UniqueMembers(b []byte) error {
	return decodeObject(b, func(name string, dec *json.Decoder) error {
		var value json.RawMessage
		return dec.Decode(&value)
	})
}

// decodeObject walks the members of a JSON object, calling member once
// per name to consume its value. A repeated name is an error.
func decodeObject(b []byte, member func(name string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("not a JSON object")
	}

	seen := map[string]struct{}{}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}

		if _, exists := seen[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateParameter, name)
		}
		seen[name] = struct{}{}

		if err := member(name, dec); err != nil {
			return err
		}
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}

	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON object")
	}

	return nil
}

// Merge returns the union of the given headers. The same parameter name
// appearing in more than one of them is an error.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
func Merge(headers ...Parameters) (Parameters, error) {
	merged := Parameters{}

	for _, h := range headers {
		for name, value := range h {
			if _, exists := merged[name]; exists {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateParameter, name)
			}
			merged[name] = value
		}
	}

	return merged, nil
}

// Clone returns a shallow copy of the header.
func (h Parameters) Clone() Parameters {
	if h == nil {
		return nil
	}

	c := make(Parameters, len(h))
	for name, value := range h {
		c[name] = value
	}
	return c
}

// Get returns the value of the named parameter.
func (h Parameters) Get(param ParameterName) (any, error) {
	value, ok := h[param]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, param)
	}
	return value, nil
}

// Set sets the named parameter.
func (h Parameters) Set(param ParameterName, value any) {
	h[param] = value
}

// Has reports whether the named parameter is present.
func (h Parameters) Has(param ParameterName) bool {
	_, ok := h[param]
	return ok
}

// Delete removes the named parameter.
func (h Parameters) Delete(param ParameterName) {
	delete(h, param)
}

func (h Parameters) getString(param ParameterName) (string, error) {
	value, ok := h[param]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrParameterNotFound, param)
	}

	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, not a string", ErrInvalidParameterType, param, value)
	}

	return str, nil
}

// Type returns the "typ" parameter.
func (h Parameters) Type() (string, error) {
	return h.getString(Type)
}

// ContentType returns the "cty" parameter.
func (h Parameters) ContentType() (string, error) {
	return h.getString(ContentType)
}

// KeyID returns the "kid" parameter.
func (h Parameters) KeyID() (string, error) {
	return h.getString(KeyID)
}

// Algorithm returns the "alg" parameter.
func (h Parameters) Algorithm() (jwa.Algorithm, error) {
	alg, err := h.getString(Algorithm)
	if err != nil {
		return "", err
	}
	if alg == "" {
		return "", fmt.Errorf("%w: %q is empty", ErrInvalidParameterType, Algorithm)
	}
	return alg, nil
}

// Encryption returns the "enc" parameter.
func (h Parameters) Encryption() (jwa.Algorithm, error) {
	enc, err := h.getString(Encryption)
	if err != nil {
		return "", err
	}
	if enc == "" {
		return "", fmt.Errorf("%w: %q is empty", ErrInvalidParameterType, Encryption)
	}
	return enc, nil
}

// Compression returns the "zip" parameter.
func (h Parameters) Compression() (jwa.Algorithm, error) {
	return h.getString(Compression)
}

// Critical returns the names listed in the "crit" parameter.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func (h Parameters) Critical() ([]string, error) {
	value, ok := h[Critical]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, Critical)
	}

	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q contains %T", ErrInvalidParameterType, Critical, item)
			}
			names = append(names, name)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("%w: %q is %T, not an array", ErrInvalidParameterType, Critical, value)
	}
}

// IsCritical reports whether the named parameter is listed in "crit".
func (h Parameters) IsCritical(param ParameterName) bool {
	names, err := h.Critical()
	if err != nil {
		return false
	}
	for _, name := range names {
		if name == param {
			return true
		}
	}
	return false
}

// JSONWebKey returns the "jwk" parameter.
func (h Parameters) JSONWebKey() (jwk.Value, error) {
	value, ok := h[JSONWebKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, JSONWebKey)
	}

	v, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, not an object", ErrInvalidParameterType, JSONWebKey, value)
	}

	return v, nil
}

// X509CertificateChain returns the certificates in the "x5c" parameter.
// The chain is parsed, not validated.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.6
func (h Parameters) X509CertificateChain() ([]*x509.Certificate, error) {
	value, ok := h[X509CertificateChain]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, X509CertificateChain)
	}

	var encoded []string

	switch v := value.(type) {
	case []string:
		encoded = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q contains %T", ErrInvalidParameterType, X509CertificateChain, item)
			}
			encoded = append(encoded, s)
		}
	default:
		return nil, fmt.Errorf("%w: %q is %T, not an array", ErrInvalidParameterType, X509CertificateChain, value)
	}

	certs := make([]*x509.Certificate, 0, len(encoded))
	for i, s := range encoded {
		// x5c uses standard base64, not base64url.
		der, err := stdbase64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate %d: %w", i, err)
		}

		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d: %w", i, err)
		}

		certs = append(certs, cert)
	}

	return certs, nil
}

func (h Parameters) getURL(param ParameterName) (*url.URL, error) {
	s, err := h.getString(param)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q URL: %w", param, err)
	}

	return u, nil
}

// X509URL returns the "x5u" parameter.
func (h Parameters) X509URL() (*url.URL, error) {
	return h.getURL(X509URL)
}

// JWKSetURL returns the "jku" parameter.
func (h Parameters) JWKSetURL() (*url.URL, error) {
	return h.getURL(JWKSetURL)
}

// PBES2SaltInput returns the decoded "p2s" parameter.
func (h Parameters) PBES2SaltInput() ([]byte, error) {
	s, err := h.getString(PBES2SaltInput)
	if err != nil {
		return nil, err
	}
	return base64.Decode(s)
}

// PBES2Count returns the "p2c" parameter.
func (h Parameters) PBES2Count() (int, error) {
	value, ok := h[PBES2Count]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrParameterNotFound, PBES2Count)
	}

	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %q is not a positive integer", ErrInvalidParameterType, PBES2Count)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidParameterType, PBES2Count, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %q is %T, not a number", ErrInvalidParameterType, PBES2Count, value)
	}
}
