package jwa

import (
	"fmt"
)

// Profile is the set of algorithms used when a caller does not name one.
// Builders take a Profile explicitly; there is no process wide default
// that can be changed at runtime.
type Profile struct {
	// ContentEncryption is the JWE "enc" algorithm.
	ContentEncryption Algorithm `mapstructure:"content_encryption"`

	// KeyManagementRSA is the JWE "alg" for RSA recipient keys.
	KeyManagementRSA Algorithm `mapstructure:"key_management_rsa"`

	// KeyManagementPassword is the JWE "alg" for password recipients.
	KeyManagementPassword Algorithm `mapstructure:"key_management_password"`

	// SignatureRSA is the JWS "alg" for RSA private keys.
	SignatureRSA Algorithm `mapstructure:"signature_rsa"`

	// SignatureHMAC is the JWS "alg" for shared secrets.
	SignatureHMAC Algorithm `mapstructure:"signature_hmac"`
}

// DefaultProfile returns RSA-OAEP with A256GCM for encryption, and RS256
// or HS256 for signatures.
func DefaultProfile() Profile {
	return Profile{
		ContentEncryption:     A256GCM,
		KeyManagementRSA:      RSAOAEP,
		KeyManagementPassword: PBES2HS256A128KW,
		SignatureRSA:          RS256,
		SignatureHMAC:         HS256,
	}
}

// Validate checks that every algorithm in the profile is registered and
// belongs to the family its field calls for.
func (p Profile) Validate() error {
	if _, err := ResolveContentEncryption(p.ContentEncryption); err != nil {
		return fmt.Errorf("invalid content encryption: %w", err)
	}

	kmRSA, err := ResolveKeyManagement(p.KeyManagementRSA)
	if err != nil {
		return fmt.Errorf("invalid RSA key management: %w", err)
	}
	if kmRSA.Family != FamilyRSAOAEP && kmRSA.Family != FamilyRSA15 {
		return fmt.Errorf("invalid RSA key management: %q is %v", p.KeyManagementRSA, kmRSA.Family)
	}

	kmPassword, err := ResolveKeyManagement(p.KeyManagementPassword)
	if err != nil {
		return fmt.Errorf("invalid password key management: %w", err)
	}
	if kmPassword.Family != FamilyPBES2 {
		return fmt.Errorf("invalid password key management: %q is %v", p.KeyManagementPassword, kmPassword.Family)
	}

	sigRSA, err := ResolveSignature(p.SignatureRSA)
	if err != nil {
		return fmt.Errorf("invalid RSA signature: %w", err)
	}
	if sigRSA.Family != FamilyRSAPKCS1 && sigRSA.Family != FamilyRSAPSS {
		return fmt.Errorf("invalid RSA signature: %q is %v", p.SignatureRSA, sigRSA.Family)
	}

	sigHMAC, err := ResolveSignature(p.SignatureHMAC)
	if err != nil {
		return fmt.Errorf("invalid HMAC signature: %w", err)
	}
	if sigHMAC.Family != FamilyHMAC {
		return fmt.Errorf("invalid HMAC signature: %q is %v", p.SignatureHMAC, sigHMAC.Family)
	}

	return nil
}
