// Package aead implements the JWE content encryption algorithms: AES-GCM
// and AES-CBC with HMAC-SHA-2.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5
package aead

import (
	"fmt"
	"io"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
)

// Cipher is a content encryption algorithm. Implementations hold no key
// and are safe for concurrent use.
type Cipher interface {
	// Algorithm returns the JWE "enc" value.
	Algorithm() jwa.Algorithm

	// KeySize, IVSize and TagSize are in bytes.
	KeySize() int
	IVSize() int
	TagSize() int

	// Seal encrypts and authenticates the plaintext and the additional
	// authenticated data.
	Seal(key, iv, plaintext, aad []byte) (*Sealed, error)

	// Open authenticates and decrypts. Every failure is reported as
	// jose.ErrDecryptionFailure, with no further detail.
	Open(key, iv, ciphertext, tag, aad []byte) ([]byte, error)
}

// Sealed is the output of a content encryption.
type Sealed struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// New returns the cipher for a JWE "enc" value.
func New(enc jwa.Algorithm) (Cipher, error) {
	desc, err := jwa.ResolveContentEncryption(enc)
	if err != nil {
		return nil, err
	}

	switch desc.Family {
	case jwa.FamilyAESGCM:
		return gcm{desc}, nil
	case jwa.FamilyAESCBCHMAC:
		return cbcHMAC{desc}, nil
	default:
		return nil, jose.Unsupported("content encryption algorithm", enc)
	}
}

// Encrypt seals the plaintext with c. A nil iv is replaced by IVSize
// bytes read from rand.
func Encrypt(rand io.Reader, c Cipher, key, iv, plaintext, aad []byte) (*Sealed, error) {
	if iv == nil {
		iv = make([]byte, c.IVSize())
		if _, err := io.ReadFull(rand, iv); err != nil {
			return nil, fmt.Errorf("failed to generate IV: %w", err)
		}
	}

	return c.Seal(key, iv, plaintext, aad)
}

// checkSealInput validates the key and IV lengths given to Seal.
func checkSealInput(desc jwa.ContentEncryptionAlgorithm, key, iv []byte) error {
	if len(key) != desc.KeySize {
		return fmt.Errorf("%w: %s requires a %d byte key, got %d", jose.ErrInvalidKey, desc.Name, desc.KeySize, len(key))
	}
	if len(iv) != desc.IVSize {
		return jose.Malformedf("%s requires a %d byte IV, got %d", desc.Name, desc.IVSize, len(iv))
	}
	return nil
}
