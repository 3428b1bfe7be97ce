package jwa

import (
	"crypto"
	_ "crypto/sha1" // RSA-OAEP
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
)

// Family groups algorithms that share a cryptographic construction.
type Family int

const (
	FamilyUnknown Family = iota

	// Signature families.
	FamilyNone
	FamilyHMAC
	FamilyRSAPKCS1
	FamilyRSAPSS
	FamilyECDSA
	FamilyEdDSA

	// Key management families.
	FamilyRSA15
	FamilyRSAOAEP
	FamilyAESKW
	FamilyDirect
	FamilyPBES2

	// Content encryption families.
	FamilyAESGCM
	FamilyAESCBCHMAC
)

var familyNames = map[Family]string{
	FamilyNone:       "none",
	FamilyHMAC:       "HMAC",
	FamilyRSAPKCS1:   "RSASSA-PKCS1-v1_5",
	FamilyRSAPSS:     "RSASSA-PSS",
	FamilyECDSA:      "ECDSA",
	FamilyEdDSA:      "EdDSA",
	FamilyRSA15:      "RSAES-PKCS1-v1_5",
	FamilyRSAOAEP:    "RSAES-OAEP",
	FamilyAESKW:      "AES Key Wrap",
	FamilyDirect:     "direct",
	FamilyPBES2:      "PBES2",
	FamilyAESGCM:     "AES-GCM",
	FamilyAESCBCHMAC: "AES-CBC-HMAC-SHA2",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// SignatureAlgorithm describes a JWS "alg" value.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3
type SignatureAlgorithm struct {
	Name   Algorithm
	Family Family

	// Hash is the digest applied to the signing input. It is zero for
	// EdDSA and none.
	Hash crypto.Hash

	// Curve and CoordinateSize describe the ECDSA curve. The signature is
	// the two coordinates R and S, each left padded to CoordinateSize.
	Curve          string
	CoordinateSize int
}

// KeyManagementAlgorithm describes a JWE "alg" value.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4
type KeyManagementAlgorithm struct {
	Name   Algorithm
	Family Family

	// Hash is the OAEP hash for RSA-OAEP, or the PBKDF2 PRF hash for PBES2.
	Hash crypto.Hash

	// KeySize is the AES key wrapping key size in bytes, for AES-KW and
	// PBES2. It is zero for the other families.
	KeySize int
}

// ContentEncryptionAlgorithm describes a JWE "enc" value.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5
type ContentEncryptionAlgorithm struct {
	Name   Algorithm
	Family Family

	// KeySize is the CEK size in bytes.
	KeySize int

	// IVSize and TagSize are fixed per algorithm.
	IVSize  int
	TagSize int

	// For AES-CBC-HMAC-SHA2 the CEK is split in two: the first MACKeySize
	// bytes key the HMAC, the remaining EncKeySize bytes key AES-CBC.
	MACKeySize int
	EncKeySize int
	Hash       crypto.Hash
}

var signatureAlgorithms = map[Algorithm]SignatureAlgorithm{
	HS256: {Name: HS256, Family: FamilyHMAC, Hash: crypto.SHA256},
	HS384: {Name: HS384, Family: FamilyHMAC, Hash: crypto.SHA384},
	HS512: {Name: HS512, Family: FamilyHMAC, Hash: crypto.SHA512},
	RS256: {Name: RS256, Family: FamilyRSAPKCS1, Hash: crypto.SHA256},
	RS384: {Name: RS384, Family: FamilyRSAPKCS1, Hash: crypto.SHA384},
	RS512: {Name: RS512, Family: FamilyRSAPKCS1, Hash: crypto.SHA512},
	PS256: {Name: PS256, Family: FamilyRSAPSS, Hash: crypto.SHA256},
	PS384: {Name: PS384, Family: FamilyRSAPSS, Hash: crypto.SHA384},
	PS512: {Name: PS512, Family: FamilyRSAPSS, Hash: crypto.SHA512},
	ES256: {Name: ES256, Family: FamilyECDSA, Hash: crypto.SHA256, Curve: "P-256", CoordinateSize: 32},
	ES384: {Name: ES384, Family: FamilyECDSA, Hash: crypto.SHA384, Curve: "P-384", CoordinateSize: 48},
	ES512: {Name: ES512, Family: FamilyECDSA, Hash: crypto.SHA512, Curve: "P-521", CoordinateSize: 66},
	EdDSA: {Name: EdDSA, Family: FamilyEdDSA},
	None:  {Name: None, Family: FamilyNone},
}

var keyManagementAlgorithms = map[Algorithm]KeyManagementAlgorithm{
	RSA1_5:           {Name: RSA1_5, Family: FamilyRSA15},
	RSAOAEP:          {Name: RSAOAEP, Family: FamilyRSAOAEP, Hash: crypto.SHA1},
	RSAOAEP256:       {Name: RSAOAEP256, Family: FamilyRSAOAEP, Hash: crypto.SHA256},
	A128KW:           {Name: A128KW, Family: FamilyAESKW, KeySize: 16},
	A192KW:           {Name: A192KW, Family: FamilyAESKW, KeySize: 24},
	A256KW:           {Name: A256KW, Family: FamilyAESKW, KeySize: 32},
	Direct:           {Name: Direct, Family: FamilyDirect},
	PBES2HS256A128KW: {Name: PBES2HS256A128KW, Family: FamilyPBES2, Hash: crypto.SHA256, KeySize: 16},
	PBES2HS384A192KW: {Name: PBES2HS384A192KW, Family: FamilyPBES2, Hash: crypto.SHA384, KeySize: 24},
	PBES2HS512A256KW: {Name: PBES2HS512A256KW, Family: FamilyPBES2, Hash: crypto.SHA512, KeySize: 32},
}

var contentEncryptionAlgorithms = map[Algorithm]ContentEncryptionAlgorithm{
	A128GCM: {Name: A128GCM, Family: FamilyAESGCM, KeySize: 16, IVSize: 12, TagSize: 16, EncKeySize: 16},
	A192GCM: {Name: A192GCM, Family: FamilyAESGCM, KeySize: 24, IVSize: 12, TagSize: 16, EncKeySize: 24},
	A256GCM: {Name: A256GCM, Family: FamilyAESGCM, KeySize: 32, IVSize: 12, TagSize: 16, EncKeySize: 32},
	A128CBCHS256: {
		Name: A128CBCHS256, Family: FamilyAESCBCHMAC, KeySize: 32, IVSize: 16, TagSize: 16,
		MACKeySize: 16, EncKeySize: 16, Hash: crypto.SHA256,
	},
	A192CBCHS384: {
		Name: A192CBCHS384, Family: FamilyAESCBCHMAC, KeySize: 48, IVSize: 16, TagSize: 24,
		MACKeySize: 24, EncKeySize: 24, Hash: crypto.SHA384,
	},
	A256CBCHS512: {
		Name: A256CBCHS512, Family: FamilyAESCBCHMAC, KeySize: 64, IVSize: 16, TagSize: 32,
		MACKeySize: 32, EncKeySize: 32, Hash: crypto.SHA512,
	},
}

// ResolveSignature returns the descriptor for a JWS "alg" value. The
// "none" algorithm resolves, but nothing signed with it ever verifies.
func ResolveSignature(name Algorithm) (SignatureAlgorithm, error) {
	alg, ok := signatureAlgorithms[name]
	if !ok {
		return SignatureAlgorithm{}, jose.Unsupported("signature algorithm", name)
	}
	return alg, nil
}

// ResolveKeyManagement returns the descriptor for a JWE "alg" value.
func ResolveKeyManagement(name Algorithm) (KeyManagementAlgorithm, error) {
	alg, ok := keyManagementAlgorithms[name]
	if !ok {
		return KeyManagementAlgorithm{}, jose.Unsupported("key management algorithm", name)
	}
	return alg, nil
}

// ResolveContentEncryption returns the descriptor for a JWE "enc" value.
func ResolveContentEncryption(name Algorithm) (ContentEncryptionAlgorithm, error) {
	enc, ok := contentEncryptionAlgorithms[name]
	if !ok {
		return ContentEncryptionAlgorithm{}, jose.Unsupported("content encryption algorithm", name)
	}
	return enc, nil
}

// ResolveCompression checks a JWE "zip" value.
func ResolveCompression(name Algorithm) (Algorithm, error) {
	if name != Deflate {
		return "", jose.Unsupported("compression algorithm", name)
	}
	return name, nil
}

// KeyWrapForKeyLength returns the AES key wrap algorithm for a symmetric
// wrapping key of n bytes.
func KeyWrapForKeyLength(n int) (Algorithm, error) {
	switch n {
	case 16:
		return A128KW, nil
	case 24:
		return A192KW, nil
	case 32:
		return A256KW, nil
	default:
		return "", fmt.Errorf("%w: %d byte key has no AES key wrap algorithm", jose.ErrUnsupportedKeyLength, n)
	}
}

// SignatureAlgorithms returns the names of every registered signature algorithm.
func SignatureAlgorithms() []Algorithm {
	return sortedKeys(signatureAlgorithms)
}

// KeyManagementAlgorithms returns the names of every registered key management algorithm.
func KeyManagementAlgorithms() []Algorithm {
	return sortedKeys(keyManagementAlgorithms)
}

// ContentEncryptionAlgorithms returns the names of every registered content encryption algorithm.
func ContentEncryptionAlgorithms() []Algorithm {
	return sortedKeys(contentEncryptionAlgorithms)
}
