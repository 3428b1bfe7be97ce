package cli

import (
	"fmt"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jws"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwt"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
	"github.com/spf13/cobra"
)

func newSignCommand(s *state) *cobra.Command {
	var (
		keyFile, alg, kid, typ, cty, form, in string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a payload",
		Long: `Sign reads a payload from --in or standard input and writes a JWS.

Without --alg the algorithm follows the key type and the profile.
Without --kid the key ID is the RFC 7638 thumbprint of the key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := loadKey(keyFile, false)
			if err != nil {
				return err
			}

			serialization, err := jose.ParseSerialization(form)
			if err != nil {
				return err
			}

			payload, err := readInput(cmd, in)
			if err != nil {
				return err
			}

			builder, err := jws.NewBuilder(
				jws.WithProfile(s.profile),
				jws.WithLogger(s.logger),
				jws.WithSerialization(serialization),
			)
			if err != nil {
				return err
			}

			protected := jws.Header{}
			if typ != "" {
				protected[header.Type] = typ
			}
			if cty != "" {
				protected[header.ContentType] = cty
			}

			out, err := builder.Serialize(payload, jws.Signer{
				Key:       key,
				Algorithm: alg,
				KeyID:     kid,
				Protected: protected,
			})
			if err != nil {
				return fmt.Errorf("failed to sign: %w", err)
			}

			return writeOutput(cmd, out)
		},
	}

	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "private key or secret file")
	cmd.Flags().StringVar(&alg, "alg", "", "signature algorithm")
	cmd.Flags().StringVar(&kid, "kid", "", "key ID")
	cmd.Flags().StringVar(&typ, "typ", "", "\"typ\" header parameter")
	cmd.Flags().StringVar(&cty, "cty", "", "\"cty\" header parameter")
	cmd.Flags().StringVarP(&in, "in", "i", "", "payload file (default standard input)")
	addFormatFlag(cmd, &form)
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newVerifyCommand(s *state) *cobra.Command {
	var (
		keyFile, jwksURL, in string
		algs, crit           []string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a JWS and print its payload",
		Long: `Verify reads a JWS in any serialization from --in or standard input.
The payload is written only when a signature verifies.

Keys come from --key, which may be a JWK set, or from --jwks-url. With
more than one candidate key the JWS must carry a "kid".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				keys *keyutil.Set
				err  error
			)

			switch {
			case jwksURL != "":
				keys, err = fetchKeySet(cmd, jwksURL)
			case keyFile != "":
				keys, err = loadKeySet(keyFile, true)
			default:
				err = fmt.Errorf("one of --key or --jwks-url is required")
			}
			if err != nil {
				return err
			}

			input, err := readInput(cmd, in)
			if err != nil {
				return err
			}

			reader, err := jws.NewReader(
				jws.WithKeys(keys),
				jws.WithAllowedAlgorithms(algs...),
				jws.WithCriticalHeaders(crit...),
				jws.WithLogger(s.logger),
			)
			if err != nil {
				return err
			}

			payload, _, err := reader.Read(trimToken(input))
			if err != nil {
				return fmt.Errorf("failed to verify: %w", err)
			}

			return writeOutput(cmd, payload)
		},
	}

	cmd.Flags().StringVarP(&keyFile, "key", "k", "", "public key, secret or JWK set file")
	cmd.Flags().StringVar(&jwksURL, "jwks-url", "", "URL of a JWK set")
	cmd.Flags().StringSliceVar(&algs, "alg", jwt.DefaultAllowedAlgorithms(), "accepted signature algorithms")
	cmd.Flags().StringSliceVar(&crit, "crit", nil, "understood \"crit\" extensions")
	cmd.Flags().StringVarP(&in, "in", "i", "", "JWS file (default standard input)")
	cmd.MarkFlagsMutuallyExclusive("key", "jwks-url")

	return cmd
}
