// Package cli implements the jose command.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/KeyBridge/lib-jose-sub000/internal/config"
	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/spf13/cobra"
)

// state is shared by the commands of one root command.
type state struct {
	configFile string
	logLevel   string

	profile jwa.Profile
	logger  *slog.Logger
}

// NewRootCommand returns the jose command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	s := &state{}

	root := &cobra.Command{
		Use:   "jose",
		Short: "Sign, verify, encrypt and decrypt JOSE objects",
		Long: `jose creates and consumes JWS and JWE objects in the compact,
flattened JSON and general JSON serializations.

Keys are read from PEM files, JWK files, JWK set files, or raw
symmetric key files. Default algorithms come from the configured
profile.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&s.configFile, "config", "",
		"config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	root.AddCommand(
		newSignCommand(s),
		newVerifyCommand(s),
		newEncryptCommand(s),
		newDecryptCommand(s),
		newKeygenCommand(s),
		newThumbprintCommand(s),
	)

	return root
}

// Execute runs the jose command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func (s *state) load(stderr io.Writer) error {
	c, err := config.Load(s.configFile)
	if err != nil {
		return err
	}

	s.profile, err = c.Profile()
	if err != nil {
		return err
	}

	s.logger, err = c.Logger(stderr, s.logLevel)
	if err != nil {
		return err
	}

	s.logger.Debug("loaded profile",
		slog.String("enc", s.profile.ContentEncryption),
		slog.String("rsa_alg", s.profile.KeyManagementRSA),
		slog.String("sig_alg", s.profile.SignatureRSA),
	)

	return nil
}

// readInput reads the named file, or standard input for "" and "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b, nil
}

// writeOutput writes b followed by a newline if b lacks one.
func writeOutput(cmd *cobra.Command, b []byte) error {
	out := cmd.OutOrStdout()
	if _, err := out.Write(b); err != nil {
		return err
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		_, err := io.WriteString(out, "\n")
		return err
	}
	return nil
}

// trimToken strips the whitespace a shell pipeline leaves around a
// compact object.
func trimToken(b []byte) []byte {
	return []byte(strings.TrimSpace(string(b)))
}

func addFormatFlag(cmd *cobra.Command, form *string) {
	cmd.Flags().StringVar(form, "format", jose.Compact.String(),
		"serialization (compact, flattened, general)")
}
