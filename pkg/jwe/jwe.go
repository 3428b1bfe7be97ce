// Package jwe implements JSON Web Encryption.
//
// https://datatracker.ietf.org/doc/html/rfc7516
package jwe

import (
	"errors"
	"fmt"
	"io"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe/aead"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe/keymgmt"
)

// Header is a JWE JOSE Header.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4
type Header = header.Parameters

// Header parameters used by JWE.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1
const (
	Algorithm                       = header.Algorithm
	EncryptionAlgorithm             = header.Encryption
	CompressionAlgorithm            = header.Compression
	JWKSetURL                       = header.JWKSetURL
	JSONWebKey                      = header.JSONWebKey
	KeyID                           = header.KeyID
	X509URL                         = header.X509URL
	X509CertificateChain            = header.X509CertificateChain
	X509CertificateSHA1Thumbprint   = header.X509CertificateSHA1Thumbprint
	X509CertificateSHA256Thumbprint = header.X509CertificateSHA256Thumbprint
	Type                            = header.Type
	ContentType                     = header.ContentType
	Critical                        = header.Critical
)

// JWE is a JSON Web Encryption object with a single recipient.
type JWE struct {
	// Protected is the integrity protected header.
	Protected Header

	// Unprotected is the shared unprotected header, and Header the
	// per-recipient unprotected header. Only the JSON serializations
	// carry them.
	Unprotected Header
	Header      Header

	EncryptedKey []byte
	IV           []byte
	Ciphertext   []byte
	Tag          []byte

	// AAD is the JSON "aad" member. Only the JSON serializations carry it.
	AAD []byte

	// protected is the base64url segment the AAD is derived from.
	protected string
}

// New encrypts plaintext for key. The merged headers must name the "alg"
// and "enc"; "zip", when present, must be in the protected header.
//
// Key types depend on "alg": an RSA public key for RSA1_5 and RSA-OAEP, a
// []byte key for AES key wrap and "dir", and a string password for PBES2.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-5.1
func New(protected Header, plaintext []byte, key any, opts ...Option) (*JWE, error) {
	c := newConfig(opts)

	j := &JWE{
		Protected:   protected.Clone(),
		Unprotected: c.unprotected.Clone(),
		Header:      c.recipient.Clone(),
		AAD:         c.aad,
	}
	if j.Protected == nil {
		j.Protected = Header{}
	}

	alg, enc, zip, err := j.algorithms()
	if err != nil {
		return nil, err
	}

	names, _ := j.Protected.Critical()
	if err := header.ValidateCritical(j.Protected, names, j.Unprotected, j.Header); err != nil {
		return nil, jose.Malformed("invalid critical header", err)
	}

	cipher, err := aead.New(enc)
	if err != nil {
		return nil, err
	}

	cek, err := keymgmt.NewCEK(c.random, alg, enc, key)
	if err != nil {
		return nil, err
	}

	ek, params, err := keymgmt.Wrap(c.random, alg, cek, key, c.keymgmt...)
	if err != nil {
		return nil, err
	}
	j.EncryptedKey = ek

	for name, value := range params {
		if j.has(name) {
			return nil, jose.Malformedf("%q is set by %s and may not be given", name, alg)
		}
		j.Protected[name] = value
	}

	if zip != "" {
		plaintext, err = deflate(plaintext)
		if err != nil {
			return nil, err
		}
	}

	if len(j.Protected) > 0 {
		j.protected, err = j.Protected.Base64URLString()
		if err != nil {
			return nil, jose.SerializationError("failed to encode protected header", err)
		}
	}

	sealed, err := aead.Encrypt(c.random, cipher, cek, nil, plaintext, j.AdditionalData())
	if err != nil {
		return nil, err
	}

	j.IV = sealed.IV
	j.Ciphertext = sealed.Ciphertext
	j.Tag = sealed.Tag

	return j, nil
}

// Decrypt authenticates and decrypts the JWE with key.
//
// Structural problems are reported with a reason. Every cryptographic
// failure, including a CEK that cannot be unwrapped, is the bare
// jose.ErrDecryptionFailure.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-5.2
func (j *JWE) Decrypt(key any, opts ...Option) ([]byte, error) {
	c := newConfig(opts)

	alg, enc, zip, err := j.algorithms()
	if err != nil {
		return nil, err
	}

	if err := header.ValidateCritical(j.Protected, c.critical, j.Unprotected, j.Header); err != nil {
		return nil, jose.Malformed("invalid critical header", err)
	}

	if !c.allowed.Allowed(alg, enc) {
		return nil, jose.Unsupported("algorithm combination", alg+"/"+enc)
	}

	cipher, err := aead.New(enc)
	if err != nil {
		return nil, err
	}

	merged, err := j.merged()
	if err != nil {
		return nil, err
	}

	cek, err := keymgmt.Unwrap(c.random, alg, j.EncryptedKey, key, merged, cipher.KeySize())
	if errors.Is(err, keymgmt.ErrUnwrapFailure) {
		// A random CEK makes the tag check fail in the same way a wrong
		// key would, so an unwrap failure is not observable.
		//
		// https://datatracker.ietf.org/doc/html/rfc7516#section-11.5
		cek = make([]byte, cipher.KeySize())
		if _, err := io.ReadFull(c.random, cek); err != nil {
			return nil, fmt.Errorf("failed to generate random CEK: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	plaintext, err := cipher.Open(cek, j.IV, j.Ciphertext, j.Tag, j.AdditionalData())
	if err != nil {
		return nil, jose.ErrDecryptionFailure
	}

	if zip != "" {
		return inflate(plaintext, c.maxDecompressedSize)
	}

	return plaintext, nil
}

// AdditionalData returns the AAD of the content encryption:
// ASCII(BASE64URL(protected)), followed by '.' and BASE64URL(aad) when
// the JSON "aad" member is present.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-5.1
func (j *JWE) AdditionalData() []byte {
	if len(j.AAD) == 0 {
		return []byte(j.protected)
	}
	return []byte(j.protected + "." + base64.Encode(j.AAD))
}

// RawProtected returns the protected header segment exactly as it was
// written or parsed.
func (j *JWE) RawProtected() string {
	return j.protected
}

// KeyID returns the "kid" from any header, or "" if there is none.
func (j *JWE) KeyID() string {
	for _, h := range []Header{j.Protected, j.Unprotected, j.Header} {
		if kid, err := h.KeyID(); err == nil {
			return kid
		}
	}
	return ""
}

func (j *JWE) merged() (Header, error) {
	merged, err := header.Merge(j.Protected, j.Unprotected, j.Header)
	if err != nil {
		return nil, jose.Malformed("invalid JWE header", err)
	}
	return merged, nil
}

func (j *JWE) has(name string) bool {
	return j.Protected.Has(name) || j.Unprotected.Has(name) || j.Header.Has(name)
}

// algorithms returns the "alg", "enc" and "zip" of the JWE, checking that
// each is registered.
func (j *JWE) algorithms() (alg, enc, zip jwa.Algorithm, err error) {
	merged, err := j.merged()
	if err != nil {
		return "", "", "", err
	}

	alg, err = merged.Algorithm()
	if err != nil {
		return "", "", "", jose.Malformed("missing or invalid algorithm", err)
	}

	enc, err = merged.Encryption()
	if err != nil {
		return "", "", "", jose.Malformed("missing or invalid encryption algorithm", err)
	}

	if _, err := jwa.ResolveKeyManagement(alg); err != nil {
		return "", "", "", err
	}

	if _, err := jwa.ResolveContentEncryption(enc); err != nil {
		return "", "", "", err
	}

	if merged.Has(header.Compression) {
		// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
		if !j.Protected.Has(header.Compression) {
			return "", "", "", jose.Malformedf("%q must be integrity protected", header.Compression)
		}

		zip, err = merged.Compression()
		if err != nil {
			return "", "", "", jose.Malformed("invalid compression algorithm", err)
		}

		if _, err := jwa.ResolveCompression(zip); err != nil {
			return "", "", "", err
		}
	}

	return alg, enc, zip, nil
}
