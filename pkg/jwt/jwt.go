package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jws"
)

// Type "JWT" is the media type used by JSON Web Token (JWT).
//
// # Example
//
//	header := header.Parameters{
//		header.Type:      jwt.Type,
//		header.Algorithm: jwa.HS256,
//	}
//
// https://www.rfc-editor.org/rfc/rfc7515.html#section-3.3
const Type = header.TypeJWT

// Token is a signed JSON Web Token: a claims set carried as the payload
// of a JWS in compact form.
//
// JWTs contain three parts, separated by dots (".") which are:
//
//  1. Header
//  2. Claims (Payload)
//  3. Signature
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-1
type Token struct {
	// Header is the set of parameters that are used to describe
	// the cryptographic operations applied to the JWT claims set.
	Header header.Parameters

	// Claims is the set of claims that are asserted by the JWT.
	//
	// This is sometimes referred to as the "payload".
	Claims ClaimsSet

	// Signature is the cryptographic signature or MAC value
	// that is used to validate the JWT.
	Signature []byte

	// raw is the compact serialization the token was parsed from or
	// signed into.
	raw string

	// signed is the JWS the signature is checked against. It keeps the
	// header and payload segments exactly as received.
	signed *jws.JWS
}

// New can be used to create a signed Token object. If this fails for any
// reason, an error is returned with a nil token.
//
// Using this function does not require the given header parameters define
// the "typ" (header.Type), which is always set to "JWT", but callers can
// include it if they like.
//
// The claims set must not be empty, or will return an error.
//
// The given key can be a symmetric or asymmetric (private) key. The type for this
// argument depends on the algorithm "alg" defined in the header.
//
// Algorithm(s) to Supported Key Type(s):
//   - HS256, HS384, HS512: []byte or string
//   - RS256, RS384, RS512, PS256, PS384, PS512: *rsa.PrivateKey
//   - ES256, ES384, ES512: *ecdsa.PrivateKey
//   - EdDSA: ed25519.PrivateKey
func New(params header.Parameters, claims ClaimsSet, key any) (*Token, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("cannot create token with empty header parameters")
	}

	if len(claims) == 0 {
		return nil, ErrNoClaimSet
	}

	params = params.Clone()

	// Ensure the "typ" header parameter is set to "JWT".
	if _, ok := params[header.Type]; !ok {
		params[header.Type] = Type
	} else if params[header.Type] != Type {
		return nil, fmt.Errorf("header type %q is not supported", params[header.Type])
	}

	token := &Token{
		Header: params,
		Claims: claims,
	}

	if _, err := token.Sign(key); err != nil {
		return nil, &SigningError{Inner: err}
	}

	return token, nil
}

// Sign signs the token with key, replacing any previous signature, and
// returns the signature.
func (t *Token) Sign(key any) ([]byte, error) {
	typ, err := t.Header.Type()
	if err != nil {
		return nil, fmt.Errorf("invalid JWT header type: %w", err)
	}

	if typ != Type {
		return nil, fmt.Errorf("invalid JWT header type: %q", typ)
	}

	if len(t.Claims) == 0 {
		return nil, ErrNoClaimSet
	}

	if err := t.Claims.normalize(); err != nil {
		return nil, err
	}

	payload, err := t.Claims.Bytes()
	if err != nil {
		return nil, err
	}

	signed, err := jws.New(t.Header, payload, key)
	if err != nil {
		return nil, err
	}

	raw, err := signed.Compact()
	if err != nil {
		return nil, err
	}

	t.signed = signed
	t.raw = raw
	t.Signature = signed.Signatures[0].Signature

	return t.Signature, nil
}

// String returns the string representation of the token, which is
// the raw JWT string of three base64url encoded parts, separated
// by a period. It is empty for a token that was never signed or parsed.
func (t *Token) String() string {
	return t.raw
}

// PublicKey is a type that can be used to verify a JWT using
// an asymmetric algorithm, such as *rsa.PublicKey or *ecdsa.PublicKey.
type PublicKey interface {
	*rsa.PublicKey | *ecdsa.PublicKey | ed25519.PublicKey
}

// SymmetricKey is a type that can be used to sign or verify a JWT using
// a symmetric algorithm, such as HMAC.
type SymmetricKey interface {
	[]byte | string
}

// VerifyKey is a type that can be used to verify a JWT using
// either a symmetric or asymmetric algorithm.
type VerifyKey interface {
	PublicKey | SymmetricKey
}

// Parseable is a type that can be parsed into a JWT,
// either a string or byte slice.
type Parseable interface {
	~string | ~[]byte
}

// Parse parses a given JWT, and returns a Token or an error
// if the JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the
// signature of the token. Use ParseAndVerify to parse
// and verify the signature of a token in one step.
func Parse[T Parseable](input T) (*Token, error) {
	return ParseString(string(input))
}

// ParseAndVerify parses a given JWT, and verifies the signature
// using the given verification configuration options.
func ParseAndVerify[T Parseable](input T, verifyOptions ...VerifyOption) (*Token, error) {
	token, err := Parse(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	err = token.Verify(verifyOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to verify JWT: %w", err)
	}

	return token, nil
}

// ParseString parses a given JWT string, and returns a Token
// or an error if the JWT fails to parse.
//
// # Warning
//
// This is a low-level function that does not verify the
// signature of the token.
func ParseString(input string) (*Token, error) {
	signed, err := jws.ParseCompact(input)
	if err != nil {
		return nil, err
	}

	claims, err := parseClaims(signed.Payload)
	if err != nil {
		return nil, jose.Malformed("invalid claims", err)
	}

	sig := signed.Signatures[0]

	return &Token{
		Header:    sig.Protected,
		Claims:    claims,
		Signature: sig.Signature,
		raw:       input,
		signed:    signed,
	}, nil
}

var defaultAllowedAlgorithms = []jwa.Algorithm{
	jwa.RS256, jwa.RS384, jwa.RS512,
	jwa.ES256, jwa.ES384, jwa.ES512,
	jwa.HS256, jwa.HS384, jwa.HS512,
	jwa.PS256, jwa.PS384, jwa.PS512,
	jwa.EdDSA,
}

// DefaultAllowedAlgorithms returns the algorithms Verify accepts unless
// WithAllowedAlgorithms is given. "none" is never among them.
func DefaultAllowedAlgorithms() []jwa.Algorithm {
	return append([]jwa.Algorithm(nil), defaultAllowedAlgorithms...)
}
