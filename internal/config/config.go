// Package config loads the algorithm profile and logging settings of the
// jose command from a file and JOSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/KeyBridge/lib-jose-sub000/internal/logging"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, so that the key
// "profile.signature.rsa" is read from JOSE_PROFILE_SIGNATURE_RSA.
const EnvPrefix = "JOSE"

// Config is the complete configuration.
type Config struct {
	Defaults ProfileConfig `mapstructure:"profile"`
	Log      LogConfig     `mapstructure:"log"`
}

// ProfileConfig names the default algorithms.
type ProfileConfig struct {
	ContentEncryption string              `mapstructure:"content_encryption"`
	KeyManagement     KeyManagementConfig `mapstructure:"key_management"`
	Signature         SignatureConfig     `mapstructure:"signature"`
}

// KeyManagementConfig names the JWE "alg" per recipient key type.
type KeyManagementConfig struct {
	RSA      string `mapstructure:"rsa"`
	Password string `mapstructure:"password"`
}

// SignatureConfig names the JWS "alg" per signing key type.
type SignatureConfig struct {
	RSA  string `mapstructure:"rsa"`
	HMAC string `mapstructure:"hmac"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	p := jwa.DefaultProfile()
	v.SetDefault("profile.content_encryption", p.ContentEncryption)
	v.SetDefault("profile.key_management.rsa", p.KeyManagementRSA)
	v.SetDefault("profile.key_management.password", p.KeyManagementPassword)
	v.SetDefault("profile.signature.rsa", p.SignatureRSA)
	v.SetDefault("profile.signature.hmac", p.SignatureHMAC)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(logging.FormatText))

	return v
}

// Load reads the file at path, which may be empty to use defaults and
// environment variables only. The file type follows its extension.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	return decode(v)
}

// Read reads a configuration of the given type, "yaml" or "json", from r.
func Read(r io.Reader, configType string) (*Config, error) {
	if configType == "" {
		return nil, errors.New("empty config type")
	}

	v := newViper()
	v.SetConfigType(configType)
	if err := v.MergeConfig(r); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	// Unmarshal does not consult AutomaticEnv for keys it has not seen,
	// so each key is read through Get.
	c := &Config{
		Defaults: ProfileConfig{
			ContentEncryption: v.GetString("profile.content_encryption"),
			KeyManagement: KeyManagementConfig{
				RSA:      v.GetString("profile.key_management.rsa"),
				Password: v.GetString("profile.key_management.password"),
			},
			Signature: SignatureConfig{
				RSA:  v.GetString("profile.signature.rsa"),
				HMAC: v.GetString("profile.signature.hmac"),
			},
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if _, err := c.Defaults.Resolve(); err != nil {
		return nil, err
	}

	return c, nil
}

// Resolve returns the validated profile.
func (p ProfileConfig) Resolve() (jwa.Profile, error) {
	profile := jwa.Profile{
		ContentEncryption:     p.ContentEncryption,
		KeyManagementRSA:      p.KeyManagement.RSA,
		KeyManagementPassword: p.KeyManagement.Password,
		SignatureRSA:          p.Signature.RSA,
		SignatureHMAC:         p.Signature.HMAC,
	}
	if err := profile.Validate(); err != nil {
		return jwa.Profile{}, fmt.Errorf("invalid profile: %w", err)
	}
	return profile, nil
}

// Profile returns the validated algorithm profile.
func (c *Config) Profile() (jwa.Profile, error) {
	return c.Defaults.Resolve()
}

// Logger returns a logger writing to w with the configured level and
// format. A non-empty level overrides the configured one.
func (c *Config) Logger(w io.Writer, level string) (*slog.Logger, error) {
	if level == "" {
		level = c.Log.Level
	}

	l, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	return logging.New(w, l, logging.Format(c.Log.Format))
}
