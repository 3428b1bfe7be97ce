package cli

import (
	"fmt"
	"os"
	"strings"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe/keymgmt"
	"github.com/spf13/cobra"
)

// recipientKey returns the password from passwordFile when one is given,
// and the key in keyFile otherwise.
func recipientKey(keyFile, passwordFile string, public bool) (any, error) {
	if passwordFile == "" {
		return loadKey(keyFile, public)
	}

	b, err := os.ReadFile(passwordFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read password file: %w", err)
	}

	password := strings.TrimRight(string(b), "\r\n")
	if password == "" {
		return nil, fmt.Errorf("empty password")
	}

	return password, nil
}

func newEncryptCommand(s *state) *cobra.Command {
	var (
		keyFile, passwordFile, alg, enc, kid, cty, form, in string
		compress                                            bool
		p2c                                                 int
	)

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a payload",
		Long: `Encrypt reads a payload from --in or standard input and writes a JWE.

The recipient is a public RSA key, a symmetric key of 16, 24 or 32
bytes for AES key wrap, or a password. Without --alg the algorithm
follows the key type and the profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := recipientKey(keyFile, passwordFile, true)
			if err != nil {
				return err
			}

			serialization, err := jose.ParseSerialization(form)
			if err != nil {
				return err
			}

			plaintext, err := readInput(cmd, in)
			if err != nil {
				return err
			}

			builder, err := jwe.NewBuilder(
				jwe.WithProfile(s.profile),
				jwe.WithLogger(s.logger),
				jwe.WithSerialization(serialization),
				jwe.WithKeyManagement(keymgmt.WithPBES2Count(p2c)),
			)
			if err != nil {
				return err
			}

			protected := jwe.Header{}
			if cty != "" {
				protected[header.ContentType] = cty
			}

			out, err := builder.Serialize(plaintext, jwe.Recipient{
				Key:        key,
				Algorithm:  alg,
				Encryption: enc,
				KeyID:      kid,
				Protected:  protected,
				Compress:   compress,
			})
			if err != nil {
				return fmt.Errorf("failed to encrypt: %w", err)
			}

			return writeOutput(cmd, out)
		},
	}

	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "public key or symmetric key file")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "file holding a PBES2 password")
	cmd.Flags().StringVar(&alg, "alg", "", "key management algorithm")
	cmd.Flags().StringVar(&enc, "enc", "", "content encryption algorithm")
	cmd.Flags().StringVar(&kid, "kid", "", "key ID")
	cmd.Flags().StringVar(&cty, "cty", "", "\"cty\" header parameter")
	cmd.Flags().BoolVar(&compress, "zip", false, "compress the payload with DEFLATE")
	cmd.Flags().IntVar(&p2c, "p2c", keymgmt.DefaultPBES2Count, "PBES2 iteration count")
	cmd.Flags().StringVarP(&in, "in", "i", "", "payload file (default standard input)")
	addFormatFlag(cmd, &form)
	cmd.MarkFlagsOneRequired("key", "password-file")
	cmd.MarkFlagsMutuallyExclusive("key", "password-file")

	return cmd
}

func newDecryptCommand(s *state) *cobra.Command {
	var (
		keyFile, passwordFile, in string
		algs, crit                []string
		maxSize                   int
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a JWE and print its plaintext",
		Long: `Decrypt reads a JWE in any serialization from --in or standard input.

Every decryption failure is reported the same way, whatever its cause.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []jwe.Option{
				jwe.WithLogger(s.logger),
				jwe.WithCriticalHeaders(crit...),
				jwe.WithMaxDecompressedSize(maxSize),
			}

			if passwordFile != "" {
				password, err := recipientKey("", passwordFile, false)
				if err != nil {
					return err
				}
				opts = append(opts, jwe.WithKey(password))
			} else {
				keys, err := loadKeySet(keyFile, false)
				if err != nil {
					return err
				}
				opts = append(opts, jwe.WithKeys(keys))
			}

			if len(algs) > 0 {
				opts = append(opts, jwe.WithAllowedAlgorithms(algs...))
			}

			input, err := readInput(cmd, in)
			if err != nil {
				return err
			}

			reader, err := jwe.NewReader(opts...)
			if err != nil {
				return err
			}

			plaintext, _, err := reader.Read(trimToken(input))
			if err != nil {
				return fmt.Errorf("failed to decrypt: %w", err)
			}

			return writeOutput(cmd, plaintext)
		},
	}

	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "private key, symmetric key or JWK set file")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "file holding a PBES2 password")
	cmd.Flags().StringSliceVar(&algs, "alg", nil, "accepted \"alg\" and \"enc\" values (default all but RSA1_5)")
	cmd.Flags().StringSliceVar(&crit, "crit", nil, "understood \"crit\" extensions")
	cmd.Flags().IntVar(&maxSize, "max-size", jwe.DefaultMaxDecompressedSize, "maximum decompressed plaintext size in bytes")
	cmd.Flags().StringVarP(&in, "in", "i", "", "JWE file (default standard input)")
	cmd.MarkFlagsOneRequired("key", "password-file")
	cmd.MarkFlagsMutuallyExclusive("key", "password-file")

	return cmd
}
