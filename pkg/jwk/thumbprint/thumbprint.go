package thumbprint

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk"
)

var (
	ErrInvalidKey = errors.New("thumbprint: invalid key")
)

// requiredMembers lists the members hashed for each key type, already in
// lexicographic order.
//
// https://datatracker.ietf.org/doc/html/rfc7638#section-3.2
var requiredMembers = map[string][]string{
	jwk.TypeRSA:       {"e", "kty", "n"},
	jwk.TypeEC:        {"crv", "kty", "x", "y"},
	jwk.TypeSymmetric: {"k", "kty"},
	jwk.TypeOKP:       {"crv", "kty", "x"}, // https://datatracker.ietf.org/doc/html/rfc8037#appendix-A.3
}

// Generate returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638.
func Generate(value jwk.Value, h crypto.Hash) ([]byte, error) {
	kty, ok := value[jwk.KeyType].(string)
	if !ok {
		return nil, ErrInvalidKey
	}

	members, ok := requiredMembers[kty]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %q", ErrInvalidKey, kty)
	}

	// 1. Construct a JSON object [RFC7159] containing only the required
	// members of a JWK representing the key and with no whitespace or
	// line breaks before or after any syntactic elements and with the
	// required members ordered lexicographically by the Unicode
	// [UNICODE] code points of the member names.
	//
	// (This JSON object is itself a legal JWK representation of the key.)
	b := bytes.NewBuffer(nil)

	b.WriteRune('{')

	for i, key := range members {
		s, ok := value[key].(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: missing %q", ErrInvalidKey, key)
		}

		if i > 0 {
			b.WriteRune(',')
		}

		name, _ := json.Marshal(key)
		member, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}

		b.Write(name)
		b.WriteRune(':')
		b.Write(member)
	}

	b.WriteRune('}')

	// 2. Hash the octets of the UTF-8 representation of this JSON object
	// with a cryptographic hash function H.
	//
	// For example, SHA-256 might be used as H. If none is specified,
	// SHA-256 is used; this is indicated in the algorithm header parameter
	// of the resulting JWK Thumbprint by the value "SHA-256".
	if h == 0 {
		h = crypto.SHA256
	}

	if !h.Available() {
		return nil, fmt.Errorf("thumbprint: hash %v is not available", h)
	}

	hash := h.New()

	_, err := hash.Write(b.Bytes())
	if err != nil {
		return nil, err
	}

	return hash.Sum(nil), nil
}

// GenerateString returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638 as a base64url encoded string.
func GenerateString(value jwk.Value, h crypto.Hash) (string, error) {
	thumbprint, err := Generate(value, h)
	if err != nil {
		return "", err
	}

	return base64.Encode(thumbprint), nil
}
