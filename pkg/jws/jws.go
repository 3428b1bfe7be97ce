package jws

import (
	"errors"
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
)

// Header is a JWS JOSE Header.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type Header = header.Parameters

// JWS is a JSON Web Signature: a payload and one or more signatures over
// it.
//
// https://datatracker.ietf.org/doc/html/rfc7515
type JWS struct {
	Payload    []byte
	Signatures []*Signature
}

// Signature is one signature of a JWS.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
type Signature struct {
	// Protected is the integrity protected header.
	Protected Header

	// Header is the unprotected per-signature header. It is only carried
	// by the JSON serializations.
	Header Header

	Signature []byte

	// protected is the base64url segment the signature was computed
	// over. Parsed signatures keep the segment they arrived with.
	protected string

	owner *JWS
}

// New returns a JWS over payload with a single signature made with key.
// The header is integrity protected and must name the "alg".
func New(protected Header, payload []byte, key any) (*JWS, error) {
	j := &JWS{Payload: payload}

	_, err := j.Sign(protected, nil, key)
	if err != nil {
		return nil, err
	}

	return j, nil
}

// Sign appends a signature made with key. The "alg" may appear in either
// header, but a parameter name may not appear in both.
func (j *JWS) Sign(protected, unprotected Header, key any) (*Signature, error) {
	merged, err := header.Merge(protected, unprotected)
	if err != nil {
		return nil, jose.Malformed("invalid JWS header", err)
	}

	alg, err := merged.Algorithm()
	if err != nil {
		return nil, jose.Malformed("missing or invalid algorithm", err)
	}

	if err := header.ValidateCritical(protected, criticalNames(protected), unprotected); err != nil {
		return nil, jose.Malformed("invalid critical header", err)
	}

	segment := ""
	if len(protected) > 0 {
		segment, err = protected.Base64URLString()
		if err != nil {
			return nil, jose.SerializationError("failed to encode protected header", err)
		}
	}

	sig := &Signature{
		Protected: protected.Clone(),
		Header:    unprotected.Clone(),
		protected: segment,
		owner:     j,
	}

	sig.Signature, err = CreateSignature(alg, sig.SigningInput(), key)
	if err != nil {
		return nil, err
	}

	j.Signatures = append(j.Signatures, sig)

	return sig, nil
}

// criticalNames returns the names a signer lists in its own "crit". A
// producer understands the extensions it writes.
func criticalNames(protected Header) []string {
	names, _ := protected.Critical()
	return names
}

// Verify succeeds if any signature verifies with key.
func (j *JWS) Verify(key any) error {
	if len(j.Signatures) == 0 {
		return jose.Malformedf("JWS has no signatures")
	}

	var (
		first   error
		invalid bool
	)

	for _, sig := range j.Signatures {
		err := sig.verify(j, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, jose.ErrInvalidSignature) {
			invalid = true
		}
		if first == nil {
			first = err
		}
	}

	if invalid {
		return jose.ErrInvalidSignature
	}

	return first
}

// VerifySignature verifies only the i'th signature.
func (j *JWS) VerifySignature(i int, key any) error {
	if i < 0 || i >= len(j.Signatures) {
		return fmt.Errorf("signature index %d out of range [0, %d)", i, len(j.Signatures))
	}
	return j.Signatures[i].verify(j, key)
}

// SigningInput returns the bytes the i'th signature is computed over.
func (j *JWS) SigningInput(i int) ([]byte, error) {
	if i < 0 || i >= len(j.Signatures) {
		return nil, fmt.Errorf("signature index %d out of range [0, %d)", i, len(j.Signatures))
	}
	return signingInput(j.Signatures[i].protected, j), nil
}

// Verify checks this signature over the payload of the JWS it belongs to.
func (s *Signature) Verify(key any) error {
	if s.owner == nil {
		return jose.Malformedf("signature is not attached to a JWS")
	}
	return s.verify(s.owner, key)
}

// SigningInput returns ASCII(BASE64URL(protected) || '.' || BASE64URL(payload)).
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-5.1
func (s *Signature) SigningInput() []byte {
	return signingInput(s.protected, s.owner)
}

// Algorithm returns the "alg" of the signature from whichever header
// carries it.
func (s *Signature) Algorithm() (jwa.Algorithm, error) {
	merged, err := header.Merge(s.Protected, s.Header)
	if err != nil {
		return "", jose.Malformed("invalid JWS header", err)
	}

	alg, err := merged.Algorithm()
	if err != nil {
		return "", jose.Malformed("missing or invalid algorithm", err)
	}

	return alg, nil
}

// KeyID returns the "kid" of the signature, or "" if there is none.
func (s *Signature) KeyID() string {
	for _, h := range []Header{s.Protected, s.Header} {
		if kid, err := h.KeyID(); err == nil {
			return kid
		}
	}
	return ""
}

// RawProtected returns the protected header segment exactly as it was
// signed or parsed.
func (s *Signature) RawProtected() string {
	return s.protected
}

func (s *Signature) verify(j *JWS, key any) error {
	alg, err := s.Algorithm()
	if err != nil {
		return err
	}
	return VerifySignature(alg, signingInput(s.protected, j), s.Signature, key)
}

func signingInput(protected string, j *JWS) []byte {
	var payload string
	if j != nil {
		payload = base64.Encode(j.Payload)
	}

	b := make([]byte, 0, len(protected)+1+len(payload))
	b = append(b, protected...)
	b = append(b, '.')
	b = append(b, payload...)
	return b
}
