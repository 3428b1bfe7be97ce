package jwe

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
)

// Recipient describes the recipient of an encrypted object.
type Recipient struct {
	// Key is the recipient's public key, shared key or password.
	Key any

	// Algorithm is the "alg". When empty it is chosen from the key type
	// and the builder profile.
	Algorithm jwa.Algorithm

	// Encryption is the "enc". When empty the profile choice is used.
	Encryption jwa.Algorithm

	// KeyID is the "kid". When empty it is the RFC 7638 thumbprint of the
	// key. Passwords get no "kid".
	KeyID string

	// Protected and Unprotected are extra header parameters. Unprotected
	// parameters go in the per-recipient header.
	Protected   Header
	Unprotected Header

	// AAD is written to the JSON "aad" member.
	AAD []byte

	// Compress sets "zip": "DEF".
	Compress bool
}

// Builder creates encrypted objects. It holds configuration only and may
// be reused; every call draws a fresh CEK and IV.
type Builder struct {
	config *config
	opts   []Option
}

// NewBuilder returns a Builder.
func NewBuilder(opts ...Option) (*Builder, error) {
	c := newConfig(opts)

	if err := c.profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	return &Builder{config: c, opts: opts}, nil
}

// Encrypt returns a JWE of plaintext for the recipient.
func (b *Builder) Encrypt(plaintext []byte, r Recipient) (*JWE, error) {
	protected := r.Protected.Clone()
	if protected == nil {
		protected = Header{}
	}

	alg := r.Algorithm
	if alg == "" {
		var err error
		alg, err = DefaultAlgorithm(b.config.profile, r.Key)
		if err != nil {
			return nil, err
		}
	}

	enc := r.Encryption
	if enc == "" {
		enc = b.config.profile.ContentEncryption
	}

	protected[header.Algorithm] = alg
	protected[header.Encryption] = enc

	if r.Compress {
		protected[header.Compression] = jwa.Deflate
	}

	if !protected.Has(header.KeyID) && !r.Unprotected.Has(header.KeyID) {
		kid := r.KeyID
		if kid == "" {
			if _, password := r.Key.(string); !password {
				var err error
				kid, err = keyutil.Thumbprint(r.Key)
				if err != nil {
					return nil, err
				}
			}
		}
		if kid != "" {
			protected[header.KeyID] = kid
		}
	}

	b.config.logger.Debug("encrypting",
		slog.String("alg", alg),
		slog.String("enc", enc),
		slog.Bool("zip", r.Compress),
	)

	opts := append([]Option(nil), b.opts...)
	opts = append(opts, WithRecipientHeader(r.Unprotected), WithAAD(r.AAD))

	return New(protected, plaintext, r.Key, opts...)
}

// Serialize encrypts plaintext and writes the result in the configured
// form.
func (b *Builder) Serialize(plaintext []byte, r Recipient) ([]byte, error) {
	j, err := b.Encrypt(plaintext, r)
	if err != nil {
		return nil, err
	}
	return j.Serialize(b.config.form)
}

// DefaultAlgorithm returns the key management algorithm for a key: the
// profile choice for RSA keys and passwords, and the AES key wrap
// algorithm matching the length of a []byte key.
func DefaultAlgorithm(p jwa.Profile, key any) (jwa.Algorithm, error) {
	switch k := key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return p.KeyManagementRSA, nil
	case []byte:
		return jwa.KeyWrapForKeyLength(len(k))
	case string:
		return p.KeyManagementPassword, nil
	default:
		return "", jose.InvalidKey("no key management algorithm for key type %T", key)
	}
}

// Reader parses and decrypts encrypted objects. It holds configuration
// only and may be reused.
type Reader struct {
	config *config
	opts   []Option
}

// NewReader returns a Reader. A key source must be given with WithKey or
// WithKeys.
func NewReader(opts ...Option) (*Reader, error) {
	c := newConfig(opts)

	if c.keys == nil {
		return nil, errors.New("no decryption keys")
	}

	return &Reader{config: c, opts: opts}, nil
}

// Read parses input in any serialization, selects the key by "kid" and
// decrypts.
func (r *Reader) Read(input []byte) ([]byte, *JWE, error) {
	j, err := Parse(string(input))
	if err != nil {
		return nil, nil, err
	}

	key, err := r.config.keys.Select(j.KeyID())
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := j.Decrypt(key, r.opts...)
	if err != nil {
		// The cause stays out of the log.
		r.config.logger.Debug("decryption rejected")
		return nil, nil, err
	}

	r.config.logger.Debug("decrypted")

	return plaintext, j, nil
}
