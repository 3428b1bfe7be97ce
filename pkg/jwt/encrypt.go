package jwt

import (
	"strings"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe"
)

// Kind is the kind of object a compact JWT string holds.
type Kind int

const (
	// Signed is a JWS with three segments.
	Signed Kind = iota + 1
	// Encrypted is a JWE with five segments.
	Encrypted
)

func (k Kind) String() string {
	switch k {
	case Signed:
		return "JWS"
	case Encrypted:
		return "JWE"
	default:
		return "unknown"
	}
}

// Detect reports whether input is a signed or an encrypted token by
// counting its dots. It does not parse the segments.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-9
func Detect(input string) (Kind, error) {
	switch dots := strings.Count(input, "."); dots {
	case 2:
		return Signed, nil
	case 4:
		return Encrypted, nil
	default:
		return 0, jose.Malformedf("expected 2 or 4 dots, got %d", dots)
	}
}

// Encrypt returns an encrypted token carrying claims, in compact form
// unless jwe.WithSerialization says otherwise.
//
// The key management algorithm is chosen from the key type and the
// jwe.WithProfile profile, as by jwe.Builder.
func Encrypt(claims ClaimsSet, key any, opts ...jwe.Option) (string, error) {
	if len(claims) == 0 {
		return "", ErrNoClaimSet
	}

	if err := claims.normalize(); err != nil {
		return "", err
	}

	payload, err := claims.Bytes()
	if err != nil {
		return "", err
	}

	builder, err := jwe.NewBuilder(opts...)
	if err != nil {
		return "", err
	}

	b, err := builder.Serialize(payload, jwe.Recipient{
		Key:       key,
		Protected: header.Parameters{header.Type: Type},
	})
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// Decrypt decrypts an encrypted token with key and returns its claims.
// The claims are not validated; use ClaimsSet.Validate.
func Decrypt(input string, key any, opts ...jwe.Option) (ClaimsSet, error) {
	opts = append(append([]jwe.Option(nil), opts...), jwe.WithKey(key))

	reader, err := jwe.NewReader(opts...)
	if err != nil {
		return nil, err
	}

	plaintext, token, err := reader.Read([]byte(input))
	if err != nil {
		return nil, err
	}

	if typ, err := token.Protected.Type(); err == nil && typ != Type {
		return nil, jose.Malformedf("header type %q is not supported", typ)
	}

	claims, err := parseClaims(plaintext)
	if err != nil {
		return nil, jose.Malformed("invalid claims", err)
	}

	return claims, nil
}
