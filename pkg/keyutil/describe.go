package keyutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk/thumbprint"
)

// Kind is the family of a key, named after the JWK "kty" values.
type Kind string

const (
	KindRSA       Kind = jwk.TypeRSA
	KindEC        Kind = jwk.TypeEC
	KindOKP       Kind = jwk.TypeOKP
	KindSymmetric Kind = jwk.TypeSymmetric

	// KindPassword is a string secret used with PBES2.
	KindPassword Kind = "password"
)

// Info describes a key without exposing its material.
type Info struct {
	Kind Kind

	// Private is true for private keys and shared secrets.
	Private bool

	// Size is the key length in bytes: the modulus for RSA, a coordinate
	// for EC, and the secret itself for oct and passwords.
	Size int

	// Curve is the JWK curve name for EC and OKP keys.
	Curve string
}

func (i Info) String() string {
	if i.Curve != "" {
		return fmt.Sprintf("%s %s", i.Kind, i.Curve)
	}
	return fmt.Sprintf("%s %d bytes", i.Kind, i.Size)
}

// Describe returns the kind and size of a key. It accepts the key types
// used throughout this module: RSA, ECDSA and Ed25519 keys from the
// standard library, []byte for symmetric keys, and string for passwords.
func Describe(key any) (Info, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		if k == nil || k.N == nil {
			return Info{}, jose.InvalidKey("nil RSA public key")
		}
		return Info{Kind: KindRSA, Size: k.Size()}, nil
	case *rsa.PrivateKey:
		if k == nil || k.N == nil {
			return Info{}, jose.InvalidKey("nil RSA private key")
		}
		return Info{Kind: KindRSA, Private: true, Size: k.Size()}, nil
	case *ecdsa.PublicKey:
		return describeEC(k, false)
	case *ecdsa.PrivateKey:
		if k == nil {
			return Info{}, jose.InvalidKey("nil ECDSA private key")
		}
		return describeEC(&k.PublicKey, true)
	case ed25519.PublicKey:
		return Info{Kind: KindOKP, Size: len(k), Curve: "Ed25519"}, nil
	case ed25519.PrivateKey:
		return Info{Kind: KindOKP, Private: true, Size: ed25519.PublicKeySize, Curve: "Ed25519"}, nil
	case []byte:
		return Info{Kind: KindSymmetric, Private: true, Size: len(k)}, nil
	case string:
		return Info{Kind: KindPassword, Private: true, Size: len(k)}, nil
	default:
		return Info{}, jose.InvalidKey("unsupported key type %T", key)
	}
}

func describeEC(k *ecdsa.PublicKey, private bool) (Info, error) {
	if k == nil || k.Curve == nil {
		return Info{}, jose.InvalidKey("ECDSA key has no curve")
	}
	bits := k.Curve.Params().BitSize
	return Info{
		Kind:    KindEC,
		Private: private,
		Size:    (bits + 7) / 8,
		Curve:   k.Curve.Params().Name,
	}, nil
}

// Public returns the public half of an asymmetric key. Public keys are
// returned unchanged.
func Public(key any) (any, error) {
	if _, err := Describe(key); err != nil {
		return nil, err
	}

	switch k := key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return k, nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case *ecdsa.PrivateKey:
		return &k.PublicKey, nil
	case ed25519.PrivateKey:
		return k.Public(), nil
	default:
		return nil, jose.InvalidKey("%T has no public key", key)
	}
}

// Thumbprint returns the base64url SHA-256 RFC 7638 thumbprint of the
// key. Private keys share the thumbprint of their public half, so a
// signer and a verifier derive the same key ID. Passwords have no
// thumbprint.
func Thumbprint(key any) (string, error) {
	var (
		value jwk.Value
		err   error
	)

	switch k := key.(type) {
	case []byte:
		value, err = jwk.ValueFromSymmetricKey(k)
	case string:
		return "", jose.InvalidKey("passwords have no thumbprint")
	default:
		var pub any
		pub, err = Public(key)
		if err != nil {
			return "", err
		}
		value, err = jwk.ValueFromPublicKey(pub)
	}
	if err != nil {
		return "", &jose.Error{Kind: jose.ErrInvalidKey, Reason: "failed to compute thumbprint", Err: err}
	}

	return thumbprint.GenerateString(value, crypto.SHA256)
}
