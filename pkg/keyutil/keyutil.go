package keyutil

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"io"
)

// MinRSAKeyBits is the smallest RSA key accepted for signing or encryption.
const MinRSAKeyBits = 2048

// SymmetricKeysEqual checks if the given keys are the same.
func SymmetricKeysEqual(key1 []byte, key2 []byte) bool {
	return subtle.ConstantTimeCompare(key1, key2) == 1
}

// NewSymmetricKey generates a new symmetric key of the given size.
func NewSymmetricKey(size int) ([]byte, error) {
	key := make([]byte, size)

	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new symmetric key: %w", err)
	}

	return key, nil
}

// readPEM reads r and decodes its first PEM block.
func readPEM(r io.Reader, what string) (*pem.Block, []byte, error) {
	keyBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s from reader: %w", what, err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, nil, fmt.Errorf("failed to decode %s PEM block", what)
	}

	return block, keyBytes, nil
}

// parsePublicBlock parses a PKIX public key, falling back to the public key
// of a certificate.
func parsePublicBlock(block *pem.Block) (any, error) {
	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err == nil {
		return parsedKey, nil
	}

	cert, certErr := x509.ParseCertificate(block.Bytes)
	if certErr != nil {
		return nil, certErr
	}

	return cert.PublicKey, nil
}

// ParseRSAPublicKey parses the PEM encoded RSA public key from the given reader.
func ParseRSAPublicKey(r io.Reader) (*rsa.PublicKey, error) {
	block, _, err := readPEM(r, "RSA public key")
	if err != nil {
		return nil, err
	}

	parsedKey, err := parsePublicBlock(block)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse RSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseRSAPrivateKey parses the PEM encoded RSA private key from the given reader.
func ParseRSAPrivateKey(r io.Reader) (*rsa.PrivateKey, error) {
	block, _, err := readPEM(r, "RSA private key")
	if err != nil {
		return nil, err
	}

	var parsedKey any

	parsedKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		p8, p8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if p8Err != nil {
			return nil, fmt.Errorf("failed to decode RSA private key: %w", err)
		}
		parsedKey = p8
	}

	privateKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse RSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParseECDSAPublicKey parses the PEM encoded ECDSA public key from the given reader.
func ParseECDSAPublicKey(r io.Reader) (*ecdsa.PublicKey, error) {
	block, _, err := readPEM(r, "ECDSA public key")
	if err != nil {
		return nil, err
	}

	parsedKey, err := parsePublicBlock(block)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse ECDSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseECDSAPrivateKey parses the PEM encoded ECDSA private key from the given reader.
func ParseECDSAPrivateKey(r io.Reader) (*ecdsa.PrivateKey, error) {
	block, _, err := readPEM(r, "ECDSA private key")
	if err != nil {
		return nil, err
	}

	var parsedKey any

	parsedKey, err = x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		p8, p8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if p8Err != nil {
			return nil, fmt.Errorf("failed to decode ECDSA private key: %w", err)
		}
		parsedKey = p8
	}

	privateKey, ok := parsedKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse ECDSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParseEdDSAPublicKey parses the PEM encoded Ed25519 public key from the given reader.
func ParseEdDSAPublicKey(r io.Reader) (ed25519.PublicKey, error) {
	block, _, err := readPEM(r, "EdDSA public key")
	if err != nil {
		return nil, err
	}

	asn1PubKey := struct {
		ObjectIdentifier struct {
			ObjectIdentifier asn1.ObjectIdentifier
		}
		PublicKey asn1.BitString
	}{}

	_, err = asn1.Unmarshal(block.Bytes, &asn1PubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EdDSA public key ASN.1: %w", err)
	}

	if len(asn1PubKey.PublicKey.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid EdDSA public key length: %d", len(asn1PubKey.PublicKey.Bytes))
	}

	return ed25519.PublicKey(asn1PubKey.PublicKey.Bytes), nil
}

// ParseEdDSAPrivateKey parses the PEM encoded Ed25519 private key from the given reader.
func ParseEdDSAPrivateKey(r io.Reader) (ed25519.PrivateKey, error) {
	block, _, err := readPEM(r, "EdDSA private key")
	if err != nil {
		return nil, err
	}

	asn1PrivKey := struct {
		Version          int
		ObjectIdentifier struct {
			ObjectIdentifier asn1.ObjectIdentifier
		}
		PrivateKey []byte
	}{}

	_, err = asn1.Unmarshal(block.Bytes, &asn1PrivKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EdDSA private key ASN.1: %w", err)
	}

	// The private key is an OCTET STRING wrapped in another OCTET STRING.
	if len(asn1PrivKey.PrivateKey) < 2 {
		return nil, fmt.Errorf("invalid EdDSA private key")
	}

	seed := asn1PrivKey.PrivateKey[2:]
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid EdDSA seed length: %d", len(seed))
	}

	return ed25519.NewKeyFromSeed(seed), nil
}

// ParsePrivateKey parses the PEM encoded private key from the given reader.
func ParsePrivateKey(r io.Reader) (any, error) {
	block, _, err := readPEM(r, "private key")
	if err != nil {
		return nil, err
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, fmt.Errorf("failed to parse private key, unknown type")
}

// ParsePublicKey parses the PEM encoded public key from the given reader.
// Certificates yield their public key, and private keys yield the public
// half.
func ParsePublicKey(r io.Reader) (any, error) {
	block, keyBytes, err := readPEM(r, "public key")
	if err != nil {
		return nil, err
	}

	if key, err := parsePublicBlock(block); err == nil {
		return key, nil
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	if priv, err := ParsePrivateKey(bytes.NewReader(keyBytes)); err == nil {
		return Public(priv)
	}

	return nil, fmt.Errorf("failed to parse public key, unknown type")
}

// EncodePrivateKeyPEM returns the PKCS #8 PEM encoding of the key.
func EncodePrivateKeyPEM(key any) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM returns the PKIX PEM encoding of the key.
func EncodePublicKeyPEM(key any) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// NewRSAKeyPair returns a new RSA key pair, or an error if one occurs.
func NewRSAKeyPair() (*rsa.PublicKey, *rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, MinRSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new RSA key pair: %w", err)
	}

	return &privateKey.PublicKey, privateKey, nil
}

// NewECDSAKeyPair returns a new P-256 ECDSA key pair, or an error if one occurs.
func NewECDSAKeyPair() (*ecdsa.PublicKey, *ecdsa.PrivateKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new ECDSA key pair: %w", err)
	}

	return &privateKey.PublicKey, privateKey, nil
}

// NewEdDSAKeyPair returns a new EdDSA key pair, or an error if one occurs.
func NewEdDSAKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new EdDSA key pair: %w", err)
	}

	return publicKey, privateKey, nil
}

// GenerateKey returns a new private key of the given kind. Size is the
// modulus length in bits for RSA, the curve size in bits for EC (256, 384
// or 521), and the key length in bytes for oct. It is ignored for OKP.
func GenerateKey(kind Kind, size int) (any, error) {
	switch kind {
	case KindRSA:
		if size == 0 {
			size = MinRSAKeyBits
		}
		if size < MinRSAKeyBits {
			return nil, fmt.Errorf("RSA key size %d is below %d bits", size, MinRSAKeyBits)
		}
		key, err := rsa.GenerateKey(rand.Reader, size)
		if err != nil {
			return nil, fmt.Errorf("failed to generate new RSA key: %w", err)
		}
		return key, nil
	case KindEC:
		var curve elliptic.Curve
		switch size {
		case 0, 256:
			curve = elliptic.P256()
		case 384:
			curve = elliptic.P384()
		case 521:
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("no curve of size %d", size)
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate new ECDSA key: %w", err)
		}
		return key, nil
	case KindOKP:
		_, key, err := NewEdDSAKeyPair()
		return key, err
	case KindSymmetric:
		if size == 0 {
			size = 32
		}
		return NewSymmetricKey(size)
	default:
		return nil, fmt.Errorf("unknown key kind %q", kind)
	}
}
