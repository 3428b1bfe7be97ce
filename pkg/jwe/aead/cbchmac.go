package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
)

// cbcHMAC is the AES-CBC with HMAC-SHA-2 composite. The first half of the
// key is the MAC key and the second half is the AES key. The tag is the
// HMAC over AAD || IV || ciphertext || AL, truncated to half its length,
// where AL is the bit length of the AAD as a 64 bit big-endian integer.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.2.2
type cbcHMAC struct {
	desc jwa.ContentEncryptionAlgorithm
}

func (c cbcHMAC) Algorithm() jwa.Algorithm { return c.desc.Name }
func (c cbcHMAC) KeySize() int             { return c.desc.KeySize }
func (c cbcHMAC) IVSize() int              { return c.desc.IVSize }
func (c cbcHMAC) TagSize() int             { return c.desc.TagSize }

func (c cbcHMAC) tag(macKey, iv, ciphertext, aad []byte) []byte {
	var al [8]byte
	binary.BigEndian.PutUint64(al[:], uint64(len(aad))*8)

	mac := hmac.New(c.desc.Hash.New, macKey)
	mac.Write(aad)
	mac.Write(iv)
	mac.Write(ciphertext)
	mac.Write(al[:])

	return mac.Sum(nil)[:c.desc.TagSize]
}

func (c cbcHMAC) Seal(key, iv, plaintext, aad []byte) (*Sealed, error) {
	if err := checkSealInput(c.desc, key, iv); err != nil {
		return nil, err
	}

	macKey, encKey := key[:c.desc.MACKeySize], key[c.desc.MACKeySize:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES-CBC cipher: %w", err)
	}

	ciphertext := pad(plaintext, block.BlockSize())
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, ciphertext)

	return &Sealed{
		IV:         iv,
		Ciphertext: ciphertext,
		Tag:        c.tag(macKey, iv, ciphertext, aad),
	}, nil
}

func (c cbcHMAC) Open(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	if len(key) != c.desc.KeySize || len(iv) != c.desc.IVSize || len(tag) != c.desc.TagSize {
		return nil, jose.ErrDecryptionFailure
	}

	macKey, encKey := key[:c.desc.MACKeySize], key[c.desc.MACKeySize:]

	// The tag is checked before any decryption takes place.
	if !hmac.Equal(tag, c.tag(macKey, iv, ciphertext, aad)) {
		return nil, jose.ErrDecryptionFailure
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, jose.ErrDecryptionFailure
	}

	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, jose.ErrDecryptionFailure
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, ok := unpad(plaintext, block.BlockSize())
	if !ok {
		return nil, jose.ErrDecryptionFailure
	}

	return plaintext, nil
}

// pad returns a copy of b with PKCS #7 padding.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad strips PKCS #7 padding, checking every padding byte.
func unpad(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, false
	}

	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}

	good := 1
	for _, p := range b[len(b)-n:] {
		good &= subtle.ConstantTimeByteEq(p, byte(n))
	}
	if good != 1 {
		return nil, false
	}

	return b[:len(b)-n], true
}
