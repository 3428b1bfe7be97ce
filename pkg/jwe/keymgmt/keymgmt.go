// Package keymgmt implements the JWE key management algorithms, which
// produce and recover the Content Encryption Key (CEK).
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4
package keymgmt

import (
	"crypto/aes"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
	"golang.org/x/crypto/pbkdf2"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
)

// ErrUnwrapFailure is returned when an encrypted key cannot be recovered.
// The JWE layer never returns it to callers; see jwe.Decrypt.
var ErrUnwrapFailure = errors.New("keymgmt: unwrap failed")

const (
	// MinRSAKeyBits is the smallest RSA modulus accepted.
	MinRSAKeyBits = 2048

	// DefaultPBES2Count and DefaultPBES2SaltSize are used when wrapping
	// with a password.
	DefaultPBES2Count    = 100000
	DefaultPBES2SaltSize = 16

	// MinPBES2Count, MaxPBES2Count and MinPBES2SaltSize bound the values
	// accepted from a received header. The upper bound on p2c keeps a
	// crafted header from pinning the CPU.
	MinPBES2Count    = 1000
	MaxPBES2Count    = 1000000
	MinPBES2SaltSize = 8
)

type options struct {
	pbes2Count    int
	pbes2SaltSize int
}

// Option configures Wrap.
type Option func(*options)

// WithPBES2Count sets the PBKDF2 iteration count written to "p2c".
func WithPBES2Count(n int) Option {
	return func(o *options) { o.pbes2Count = n }
}

// WithPBES2SaltSize sets the length of the random salt written to "p2s".
func WithPBES2SaltSize(n int) Option {
	return func(o *options) { o.pbes2SaltSize = n }
}

// NewCEK returns the CEK for a new JWE. For "dir" it is the shared key,
// which must have the length "enc" requires. Otherwise it is a fresh
// random key read from rand.
func NewCEK(rand io.Reader, alg, enc jwa.Algorithm, key any) ([]byte, error) {
	km, err := jwa.ResolveKeyManagement(alg)
	if err != nil {
		return nil, err
	}

	ce, err := jwa.ResolveContentEncryption(enc)
	if err != nil {
		return nil, err
	}

	if km.Family == jwa.FamilyDirect {
		shared, err := symmetricKey(alg, key)
		if err != nil {
			return nil, err
		}
		if len(shared) != ce.KeySize {
			return nil, jose.InvalidKey("%s with %s requires a %d byte key, got %d", alg, enc, ce.KeySize, len(shared))
		}
		return append([]byte(nil), shared...), nil
	}

	cek := make([]byte, ce.KeySize)
	if _, err := io.ReadFull(rand, cek); err != nil {
		return nil, fmt.Errorf("failed to generate CEK: %w", err)
	}

	return cek, nil
}

// Wrap encrypts the CEK for the recipient key. It returns the JWE
// Encrypted Key and any header parameters the algorithm defines, which
// the caller must place in the protected header.
//
// Key types: *rsa.PublicKey (or *rsa.PrivateKey) for RSA algorithms,
// []byte for AES key wrap and "dir", and string or []byte passwords for
// PBES2.
func Wrap(rand io.Reader, alg jwa.Algorithm, cek []byte, key any, opts ...Option) ([]byte, header.Parameters, error) {
	km, err := jwa.ResolveKeyManagement(alg)
	if err != nil {
		return nil, nil, err
	}

	o := options{
		pbes2Count:    DefaultPBES2Count,
		pbes2SaltSize: DefaultPBES2SaltSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch km.Family {
	case jwa.FamilyRSA15, jwa.FamilyRSAOAEP:
		pub, err := rsaPublicKey(alg, key)
		if err != nil {
			return nil, nil, err
		}

		var ek []byte
		if km.Family == jwa.FamilyRSA15 {
			ek, err = rsa.EncryptPKCS1v15(rand, pub, cek)
		} else {
			ek, err = rsa.EncryptOAEP(km.Hash.New(), rand, pub, cek, nil)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encrypt CEK with %s: %w", alg, err)
		}
		return ek, nil, nil
	case jwa.FamilyAESKW:
		kek, err := symmetricKey(alg, key)
		if err != nil {
			return nil, nil, err
		}
		if len(kek) != km.KeySize {
			return nil, nil, jose.InvalidKey("%s requires a %d byte key, got %d", alg, km.KeySize, len(kek))
		}
		ek, err := aesKeyWrap(kek, cek)
		if err != nil {
			return nil, nil, err
		}
		return ek, nil, nil
	case jwa.FamilyDirect:
		shared, err := symmetricKey(alg, key)
		if err != nil {
			return nil, nil, err
		}
		if subtle.ConstantTimeCompare(shared, cek) != 1 {
			return nil, nil, jose.InvalidKey("%s requires the CEK to be the shared key", alg)
		}
		return []byte{}, nil, nil
	case jwa.FamilyPBES2:
		password, err := passwordKey(alg, key)
		if err != nil {
			return nil, nil, err
		}
		if o.pbes2Count < MinPBES2Count || o.pbes2Count > MaxPBES2Count {
			return nil, nil, fmt.Errorf("PBES2 count %d outside [%d, %d]", o.pbes2Count, MinPBES2Count, MaxPBES2Count)
		}
		if o.pbes2SaltSize < MinPBES2SaltSize {
			return nil, nil, fmt.Errorf("PBES2 salt size %d below %d", o.pbes2SaltSize, MinPBES2SaltSize)
		}

		salt := make([]byte, o.pbes2SaltSize)
		if _, err := io.ReadFull(rand, salt); err != nil {
			return nil, nil, fmt.Errorf("failed to generate PBES2 salt: %w", err)
		}

		ek, err := aesKeyWrap(pbes2Key(km, password, salt, o.pbes2Count), cek)
		if err != nil {
			return nil, nil, err
		}

		return ek, header.Parameters{
			header.PBES2SaltInput: base64.Encode(salt),
			header.PBES2Count:     o.pbes2Count,
		}, nil
	default:
		return nil, nil, jose.Unsupported("key management algorithm", alg)
	}
}

// Unwrap recovers a CEK of cekSize bytes. The header is the merged JOSE
// header of the object, from which PBES2 reads "p2s" and "p2c".
//
// Errors that depend only on the caller's key or on the header are
// returned as jose.ErrInvalidKey or jose.ErrMalformedInput. Every
// cryptographic failure is ErrUnwrapFailure.
func Unwrap(rand io.Reader, alg jwa.Algorithm, encryptedKey []byte, key any, h header.Parameters, cekSize int) ([]byte, error) {
	km, err := jwa.ResolveKeyManagement(alg)
	if err != nil {
		return nil, err
	}

	switch km.Family {
	case jwa.FamilyRSA15:
		priv, err := rsaPrivateKey(alg, key)
		if err != nil {
			return nil, err
		}

		// The session key is filled with random bytes first and only
		// replaced when the padding is valid, so a bad padding is not
		// distinguishable here from a wrong key.
		//
		// https://datatracker.ietf.org/doc/html/rfc7516#section-11.5
		cek := make([]byte, cekSize)
		if _, err := io.ReadFull(rand, cek); err != nil {
			return nil, fmt.Errorf("failed to generate random CEK: %w", err)
		}
		if err := rsa.DecryptPKCS1v15SessionKey(nil, priv, encryptedKey, cek); err != nil {
			return nil, ErrUnwrapFailure
		}
		return cek, nil
	case jwa.FamilyRSAOAEP:
		priv, err := rsaPrivateKey(alg, key)
		if err != nil {
			return nil, err
		}
		cek, err := rsa.DecryptOAEP(km.Hash.New(), nil, priv, encryptedKey, nil)
		if err != nil {
			return nil, ErrUnwrapFailure
		}
		return checkSize(cek, cekSize)
	case jwa.FamilyAESKW:
		kek, err := symmetricKey(alg, key)
		if err != nil {
			return nil, err
		}
		if len(kek) != km.KeySize {
			return nil, jose.InvalidKey("%s requires a %d byte key, got %d", alg, km.KeySize, len(kek))
		}
		return aesKeyUnwrap(kek, encryptedKey, cekSize)
	case jwa.FamilyDirect:
		if len(encryptedKey) != 0 {
			return nil, jose.Malformedf("%s requires an empty encrypted key", alg)
		}
		shared, err := symmetricKey(alg, key)
		if err != nil {
			return nil, err
		}
		if len(shared) != cekSize {
			return nil, jose.InvalidKey("%s requires a %d byte key, got %d", alg, cekSize, len(shared))
		}
		return append([]byte(nil), shared...), nil
	case jwa.FamilyPBES2:
		password, err := passwordKey(alg, key)
		if err != nil {
			return nil, err
		}

		salt, err := h.PBES2SaltInput()
		if err != nil {
			return nil, jose.Malformed("invalid PBES2 salt input", err)
		}
		if len(salt) < MinPBES2SaltSize {
			return nil, jose.Malformedf("PBES2 salt input of %d bytes is below %d", len(salt), MinPBES2SaltSize)
		}

		count, err := h.PBES2Count()
		if err != nil {
			return nil, jose.Malformed("invalid PBES2 count", err)
		}
		if count < MinPBES2Count || count > MaxPBES2Count {
			return nil, jose.Malformedf("PBES2 count %d outside [%d, %d]", count, MinPBES2Count, MaxPBES2Count)
		}

		return aesKeyUnwrap(pbes2Key(km, password, salt, count), encryptedKey, cekSize)
	default:
		return nil, jose.Unsupported("key management algorithm", alg)
	}
}

func checkSize(cek []byte, size int) ([]byte, error) {
	if len(cek) != size {
		return nil, ErrUnwrapFailure
	}
	return cek, nil
}

// pbes2Key derives the key wrapping key. The salt is the UTF-8 "alg"
// value, a zero byte, and the salt input.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1.1
func pbes2Key(km jwa.KeyManagementAlgorithm, password, saltInput []byte, count int) []byte {
	salt := make([]byte, 0, len(km.Name)+1+len(saltInput))
	salt = append(salt, km.Name...)
	salt = append(salt, 0)
	salt = append(salt, saltInput...)

	return pbkdf2.Key(password, salt, count, km.KeySize, km.Hash.New)
}

func aesKeyWrap(kek, cek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create key wrapping cipher: %w", err)
	}
	ek, err := josecipher.KeyWrap(block, cek)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap CEK: %w", err)
	}
	return ek, nil
}

func aesKeyUnwrap(kek, encryptedKey []byte, cekSize int) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, ErrUnwrapFailure
	}
	cek, err := josecipher.KeyUnwrap(block, encryptedKey)
	if err != nil {
		return nil, ErrUnwrapFailure
	}
	return checkSize(cek, cekSize)
}

func rsaPublicKey(alg jwa.Algorithm, key any) (*rsa.PublicKey, error) {
	var pub *rsa.PublicKey

	switch k := key.(type) {
	case *rsa.PublicKey:
		pub = k
	case *rsa.PrivateKey:
		if k != nil {
			pub = &k.PublicKey
		}
	default:
		return nil, jose.InvalidKey("%s requires an RSA public key, got %T", alg, key)
	}

	if pub == nil || pub.N == nil {
		return nil, jose.InvalidKey("%s requires an RSA public key, got a nil %T", alg, key)
	}

	if pub.N.BitLen() < MinRSAKeyBits {
		return nil, jose.InvalidKey("%s requires an RSA key of at least %d bits, got %d", alg, MinRSAKeyBits, pub.N.BitLen())
	}

	return pub, nil
}

func rsaPrivateKey(alg jwa.Algorithm, key any) (*rsa.PrivateKey, error) {
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, jose.InvalidKey("%s requires an RSA private key, got %T", alg, key)
	}

	if priv == nil || priv.N == nil {
		return nil, jose.InvalidKey("%s requires an RSA private key, got a nil %T", alg, key)
	}

	if priv.N.BitLen() < MinRSAKeyBits {
		return nil, jose.InvalidKey("%s requires an RSA key of at least %d bits, got %d", alg, MinRSAKeyBits, priv.N.BitLen())
	}

	return priv, nil
}

func symmetricKey(alg jwa.Algorithm, key any) ([]byte, error) {
	k, ok := key.([]byte)
	if !ok {
		return nil, jose.InvalidKey("%s requires a []byte key, got %T", alg, key)
	}
	return k, nil
}

func passwordKey(alg jwa.Algorithm, key any) ([]byte, error) {
	switch k := key.(type) {
	case string:
		if k == "" {
			return nil, jose.InvalidKey("%s requires a non-empty password", alg)
		}
		return []byte(k), nil
	case []byte:
		if len(k) == 0 {
			return nil, jose.InvalidKey("%s requires a non-empty password", alg)
		}
		return k, nil
	default:
		return nil, jose.InvalidKey("%s requires a string password, got %T", alg, key)
	}
}
