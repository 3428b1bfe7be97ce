package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
	"github.com/spf13/cobra"
)

const (
	keyFormatPEM = "pem"
	keyFormatJWK = "jwk"
)

var keyKinds = []keyutil.Kind{keyutil.KindRSA, keyutil.KindEC, keyutil.KindOKP, keyutil.KindSymmetric}

func parseKind(s string) (keyutil.Kind, error) {
	for _, kind := range keyKinds {
		if strings.EqualFold(s, string(kind)) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown key type %q", s)
}

// encodeJWK returns the JWK of key, with "kid" set when not empty.
func encodeJWK(key any, kid string) ([]byte, error) {
	info, err := keyutil.Describe(key)
	if err != nil {
		return nil, err
	}

	var value jwk.Value
	switch {
	case info.Kind == keyutil.KindSymmetric:
		value, err = jwk.ValueFromSymmetricKey(key.([]byte))
	case info.Private:
		value, err = jwk.ValueFromPrivateKey(key)
	default:
		value, err = jwk.ValueFromPublicKey(key)
	}
	if err != nil {
		return nil, err
	}

	if kid != "" {
		value[jwk.KeyID] = kid
	}

	return json.MarshalIndent(value, "", "  ")
}

func newKeygenCommand(s *state) *cobra.Command {
	var (
		kind, format, kid string
		size              int
		public            bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key",
		Long: `Keygen writes a new private key as PKCS #8 PEM or as a JWK.

Key types are RSA, EC, OKP (Ed25519) and oct. --size is the modulus
length in bits for RSA, the curve size in bits for EC, and the key
length in bytes for oct. Symmetric keys are always written as a JWK.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}

			key, err := keyutil.GenerateKey(k, size)
			if err != nil {
				return err
			}

			s.logger.Debug("generated key", slog.String("key", keyDescription(key)))

			if public {
				if key, err = keyutil.Public(key); err != nil {
					return err
				}
			}

			if k == keyutil.KindSymmetric {
				format = keyFormatJWK
			}

			var out []byte
			switch format {
			case keyFormatJWK:
				out, err = encodeJWK(key, kid)
			case keyFormatPEM:
				if public {
					out, err = keyutil.EncodePublicKeyPEM(key)
				} else {
					out, err = keyutil.EncodePrivateKeyPEM(key)
				}
			default:
				err = fmt.Errorf("unknown key format %q", format)
			}
			if err != nil {
				return err
			}

			return writeOutput(cmd, out)
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", string(keyutil.KindEC), "key type (RSA, EC, OKP, oct)")
	cmd.Flags().IntVar(&size, "size", 0, "key size (default 2048 bits for RSA, 256 bits for EC, 32 bytes for oct)")
	cmd.Flags().StringVar(&format, "format", keyFormatPEM, "output format (pem, jwk)")
	cmd.Flags().StringVar(&kid, "kid", "", "key ID written to a JWK")
	cmd.Flags().BoolVar(&public, "public", false, "write only the public key of a new key pair")

	return cmd
}

func newThumbprintCommand(s *state) *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "thumbprint",
		Short: "Print the RFC 7638 thumbprint of a key",
		Long: `Thumbprint prints the base64url SHA-256 JWK thumbprint of a key.
A private key has the thumbprint of its public key, which is the
default "kid" written by sign and encrypt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := loadKey(keyFile, false)
			if err != nil {
				return err
			}

			s.logger.Debug("loaded key", slog.String("key", keyDescription(key)))

			thumbprint, err := keyutil.Thumbprint(key)
			if err != nil {
				return err
			}

			return writeOutput(cmd, []byte(thumbprint))
		},
	}

	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "key file")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func keyDescription(key any) string {
	info, err := keyutil.Describe(key)
	if err != nil {
		return "unknown"
	}
	return info.String()
}
