package jws

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
)

// MinRSAKeyBits is the smallest RSA modulus accepted for RS and PS
// algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const MinRSAKeyBits = 2048

// CreateSignature computes the JWS Signature over the signing input.
//
// Key types: []byte or string for HMAC, *rsa.PrivateKey for RS and PS,
// *ecdsa.PrivateKey for ES, and ed25519.PrivateKey for EdDSA. The "none"
// algorithm takes no key and produces an empty signature.
func CreateSignature(alg jwa.Algorithm, signingInput []byte, key any) ([]byte, error) {
	desc, err := jwa.ResolveSignature(alg)
	if err != nil {
		return nil, err
	}

	switch desc.Family {
	case jwa.FamilyNone:
		return []byte{}, nil
	case jwa.FamilyHMAC:
		secret, err := hmacKey(alg, key)
		if err != nil {
			return nil, err
		}
		return hmacSum(desc.Hash, secret, signingInput), nil
	case jwa.FamilyRSAPKCS1, jwa.FamilyRSAPSS:
		privateKey, ok := key.(*rsa.PrivateKey)
		if !ok || privateKey == nil {
			return nil, jose.InvalidKey("%s requires an RSA private key, got %T", alg, key)
		}
		if err := checkRSASize(alg, &privateKey.PublicKey); err != nil {
			return nil, err
		}

		digest := sum(desc.Hash, signingInput)

		var sig []byte
		if desc.Family == jwa.FamilyRSAPSS {
			sig, err = rsa.SignPSS(rand.Reader, privateKey, desc.Hash, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		} else {
			sig, err = rsa.SignPKCS1v15(rand.Reader, privateKey, desc.Hash, digest)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to sign with RSA private key: %w", err)
		}
		return sig, nil
	case jwa.FamilyECDSA:
		privateKey, ok := key.(*ecdsa.PrivateKey)
		if !ok || privateKey == nil {
			return nil, jose.InvalidKey("%s requires an ECDSA private key, got %T", alg, key)
		}
		if err := checkCurve(desc, &privateKey.PublicKey); err != nil {
			return nil, err
		}

		r, s, err := ecdsa.Sign(rand.Reader, privateKey, sum(desc.Hash, signingInput))
		if err != nil {
			return nil, fmt.Errorf("failed to sign with ECDSA private key: %w", err)
		}

		// R and S are each left padded to the coordinate size.
		//
		// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
		out := make([]byte, 2*desc.CoordinateSize)
		r.FillBytes(out[:desc.CoordinateSize])
		s.FillBytes(out[desc.CoordinateSize:])
		return out, nil
	case jwa.FamilyEdDSA:
		privateKey, ok := key.(ed25519.PrivateKey)
		if !ok || len(privateKey) != ed25519.PrivateKeySize {
			return nil, jose.InvalidKey("%s requires an Ed25519 private key, got %T", alg, key)
		}
		return ed25519.Sign(privateKey, signingInput), nil
	default:
		return nil, jose.Unsupported("signature algorithm", alg)
	}
}

// VerifySignature checks the JWS Signature over the signing input. A
// signature that does not verify is reported as the bare
// jose.ErrInvalidSignature. The "none" algorithm never verifies.
//
// Key types mirror CreateSignature, with public keys in place of private
// keys. A private key is accepted where its public half would be.
func VerifySignature(alg jwa.Algorithm, signingInput, signature []byte, key any) error {
	desc, err := jwa.ResolveSignature(alg)
	if err != nil {
		return err
	}

	switch desc.Family {
	case jwa.FamilyNone:
		return jose.ErrInvalidSignature
	case jwa.FamilyHMAC:
		secret, err := hmacKey(alg, key)
		if err != nil {
			return err
		}
		if !hmac.Equal(signature, hmacSum(desc.Hash, secret, signingInput)) {
			return jose.ErrInvalidSignature
		}
		return nil
	case jwa.FamilyRSAPKCS1, jwa.FamilyRSAPSS:
		publicKey, err := rsaPublicKey(alg, key)
		if err != nil {
			return err
		}

		digest := sum(desc.Hash, signingInput)

		if desc.Family == jwa.FamilyRSAPSS {
			err = rsa.VerifyPSS(publicKey, desc.Hash, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		} else {
			err = rsa.VerifyPKCS1v15(publicKey, desc.Hash, digest, signature)
		}
		if err != nil {
			return jose.ErrInvalidSignature
		}
		return nil
	case jwa.FamilyECDSA:
		publicKey, err := ecdsaPublicKey(alg, key)
		if err != nil {
			return err
		}
		if err := checkCurve(desc, publicKey); err != nil {
			return err
		}

		if len(signature) != 2*desc.CoordinateSize {
			return jose.ErrInvalidSignature
		}

		r := new(big.Int).SetBytes(signature[:desc.CoordinateSize])
		s := new(big.Int).SetBytes(signature[desc.CoordinateSize:])

		if !ecdsa.Verify(publicKey, sum(desc.Hash, signingInput), r, s) {
			return jose.ErrInvalidSignature
		}
		return nil
	case jwa.FamilyEdDSA:
		var publicKey ed25519.PublicKey
		switch k := key.(type) {
		case ed25519.PublicKey:
			publicKey = k
		case ed25519.PrivateKey:
			publicKey, _ = k.Public().(ed25519.PublicKey)
		}
		if len(publicKey) != ed25519.PublicKeySize {
			return jose.InvalidKey("%s requires an Ed25519 public key, got %T", alg, key)
		}
		if !ed25519.Verify(publicKey, signingInput, signature) {
			return jose.ErrInvalidSignature
		}
		return nil
	default:
		return jose.Unsupported("signature algorithm", alg)
	}
}

func sum(h crypto.Hash, b []byte) []byte {
	d := h.New()
	d.Write(b)
	return d.Sum(nil)
}

func hmacSum(h crypto.Hash, key, b []byte) []byte {
	mac := hmac.New(h.New, key)
	mac.Write(b)
	return mac.Sum(nil)
}

func hmacKey(alg jwa.Algorithm, key any) ([]byte, error) {
	var secret []byte

	switch k := key.(type) {
	case []byte:
		secret = k
	case string:
		secret = []byte(k)
	default:
		return nil, jose.InvalidKey("%s requires a []byte or string secret, got %T", alg, key)
	}

	if len(secret) == 0 {
		return nil, jose.InvalidKey("%s requires a non-empty secret", alg)
	}

	return secret, nil
}

func rsaPublicKey(alg jwa.Algorithm, key any) (*rsa.PublicKey, error) {
	var publicKey *rsa.PublicKey

	switch k := key.(type) {
	case *rsa.PublicKey:
		publicKey = k
	case *rsa.PrivateKey:
		if k != nil {
			publicKey = &k.PublicKey
		}
	default:
		return nil, jose.InvalidKey("%s requires an RSA public key, got %T", alg, key)
	}

	return publicKey, checkRSASize(alg, publicKey)
}

func checkRSASize(alg jwa.Algorithm, key *rsa.PublicKey) error {
	if key == nil || key.N == nil {
		return jose.InvalidKey("%s requires an RSA key", alg)
	}
	if key.N.BitLen() < MinRSAKeyBits {
		return jose.InvalidKey("%s requires an RSA key of at least %d bits, got %d", alg, MinRSAKeyBits, key.N.BitLen())
	}
	return nil
}

func ecdsaPublicKey(alg jwa.Algorithm, key any) (*ecdsa.PublicKey, error) {
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		return k, nil
	case *ecdsa.PrivateKey:
		if k != nil {
			return &k.PublicKey, nil
		}
	}
	return nil, jose.InvalidKey("%s requires an ECDSA public key, got %T", alg, key)
}

func checkCurve(desc jwa.SignatureAlgorithm, key *ecdsa.PublicKey) error {
	if key == nil || key.Curve == nil || key.Curve.Params().Name != desc.Curve {
		return jose.InvalidKey("%s requires a %s key", desc.Name, desc.Curve)
	}
	return nil
}
