package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
)

// gcm is AES in Galois/Counter Mode with a 96 bit IV and a 128 bit tag.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.3
type gcm struct {
	desc jwa.ContentEncryptionAlgorithm
}

func (g gcm) Algorithm() jwa.Algorithm { return g.desc.Name }
func (g gcm) KeySize() int             { return g.desc.KeySize }
func (g gcm) IVSize() int              { return g.desc.IVSize }
func (g gcm) TagSize() int             { return g.desc.TagSize }

func (g gcm) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (g gcm) Seal(key, iv, plaintext, aad []byte) (*Sealed, error) {
	if err := checkSealInput(g.desc, key, iv); err != nil {
		return nil, err
	}

	aead, err := g.aead(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES-GCM cipher: %w", err)
	}

	out := aead.Seal(nil, iv, plaintext, aad)
	split := len(out) - aead.Overhead()

	return &Sealed{
		IV:         iv,
		Ciphertext: out[:split],
		Tag:        out[split:],
	}, nil
}

func (g gcm) Open(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	if len(key) != g.desc.KeySize || len(iv) != g.desc.IVSize || len(tag) != g.desc.TagSize {
		return nil, jose.ErrDecryptionFailure
	}

	aead, err := g.aead(key)
	if err != nil {
		return nil, jose.ErrDecryptionFailure
	}

	in := make([]byte, 0, len(ciphertext)+len(tag))
	in = append(in, ciphertext...)
	in = append(in, tag...)

	plaintext, err := aead.Open(nil, iv, in, aad)
	if err != nil {
		return nil, jose.ErrDecryptionFailure
	}

	return plaintext, nil
}
