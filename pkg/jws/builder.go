package jws

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KeyBridge/lib-jose-sub000/internal/logging"
	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
)

// Option configures a Builder or a Reader. Options that do not apply to
// one of them are ignored by it.
type Option func(*config)

type config struct {
	profile  jwa.Profile
	logger   *slog.Logger
	form     jose.Serialization
	keys     *keyutil.Set
	allowed  jwa.AllowedAlgorithms
	critical []string
}

func newConfig(opts []Option) *config {
	c := &config{
		profile: jwa.DefaultProfile(),
		form:    jose.Compact,
		allowed: jwa.DefaultAllowedAlgorithms(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// WithProfile sets the algorithms a Builder uses when a Signer does not
// name one.
func WithProfile(p jwa.Profile) Option {
	return func(c *config) {
		c.profile = p
	}
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithSerialization sets the form a Builder writes. The default is
// compact.
func WithSerialization(form jose.Serialization) Option {
	return func(c *config) {
		c.form = form
	}
}

// WithKeys sets the candidate verification keys of a Reader.
func WithKeys(keys *keyutil.Set) Option {
	return func(c *config) {
		c.keys = keys
	}
}

// WithKey sets a single verification key, used for any "kid".
func WithKey(key any) Option {
	return func(c *config) {
		c.keys = keyutil.SingleKeySet(key)
	}
}

// WithAllowedAlgorithms sets the signature algorithms a Reader accepts.
// The default is RS256 and ES256.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) Option {
	return func(c *config) {
		c.allowed = jwa.NewAllowedAlgorithms(algs...)
	}
}

// WithCriticalHeaders sets the "crit" extensions a Reader understands.
func WithCriticalHeaders(names ...string) Option {
	return func(c *config) {
		c.critical = append([]string(nil), names...)
	}
}

// Signer describes one signature to add to a JWS.
type Signer struct {
	// Key is the private key or shared secret.
	Key any

	// Algorithm is the "alg". When empty it is chosen from the key type
	// and the builder profile.
	Algorithm jwa.Algorithm

	// KeyID is the "kid". When empty it is the RFC 7638 thumbprint of the
	// key.
	KeyID string

	// Protected and Unprotected are extra header parameters.
	Protected   Header
	Unprotected Header
}

// Builder creates signed objects. It holds configuration only and may be
// reused.
type Builder struct {
	config *config
}

// NewBuilder returns a Builder.
func NewBuilder(opts ...Option) (*Builder, error) {
	c := newConfig(opts)

	if err := c.profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	return &Builder{config: c}, nil
}

// Sign returns a JWS over payload with one signature per signer.
func (b *Builder) Sign(payload []byte, signers ...Signer) (*JWS, error) {
	if len(signers) == 0 {
		return nil, errors.New("no signers")
	}

	j := &JWS{Payload: payload}

	for i, s := range signers {
		protected, err := b.protectedHeader(s)
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}

		b.config.logger.Debug("signing",
			slog.String("alg", protected[header.Algorithm].(string)),
			slog.Any("kid", protected[header.KeyID]),
		)

		if _, err := j.Sign(protected, s.Unprotected, s.Key); err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}
	}

	return j, nil
}

// Serialize signs payload and writes the result in the configured form.
func (b *Builder) Serialize(payload []byte, signers ...Signer) ([]byte, error) {
	j, err := b.Sign(payload, signers...)
	if err != nil {
		return nil, err
	}
	return j.Serialize(b.config.form)
}

func (b *Builder) protectedHeader(s Signer) (Header, error) {
	protected := s.Protected.Clone()
	if protected == nil {
		protected = Header{}
	}

	alg := s.Algorithm
	if alg == "" {
		var err error
		alg, err = DefaultAlgorithm(b.config.profile, s.Key)
		if err != nil {
			return nil, err
		}
	}
	protected[header.Algorithm] = alg

	if s.Unprotected.Has(header.KeyID) || protected.Has(header.KeyID) {
		return protected, nil
	}

	kid := s.KeyID
	if kid == "" {
		var err error
		kid, err = thumbprint(s.Key)
		if err != nil {
			return nil, err
		}
	}
	protected[header.KeyID] = kid

	return protected, nil
}

func thumbprint(key any) (string, error) {
	if secret, ok := key.(string); ok {
		return keyutil.Thumbprint([]byte(secret))
	}
	return keyutil.Thumbprint(key)
}

// DefaultAlgorithm returns the signature algorithm for a key: the profile
// choice for RSA and HMAC keys, the curve's algorithm for ECDSA keys, and
// EdDSA for Ed25519 keys.
func DefaultAlgorithm(p jwa.Profile, key any) (jwa.Algorithm, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return p.SignatureRSA, nil
	case []byte, string:
		return p.SignatureHMAC, nil
	case *ecdsa.PrivateKey:
		if k.Curve == nil {
			return "", jose.InvalidKey("ECDSA key has no curve")
		}
		switch k.Curve.Params().Name {
		case "P-256":
			return jwa.ES256, nil
		case "P-384":
			return jwa.ES384, nil
		case "P-521":
			return jwa.ES512, nil
		default:
			return "", jose.InvalidKey("no signature algorithm for curve %s", k.Curve.Params().Name)
		}
	case ed25519.PrivateKey:
		return jwa.EdDSA, nil
	default:
		return "", jose.InvalidKey("no signature algorithm for key type %T", key)
	}
}

// Reader parses and verifies signed objects. It holds configuration only
// and may be reused.
type Reader struct {
	config *config
}

// NewReader returns a Reader. A key source must be given with WithKey or
// WithKeys.
func NewReader(opts ...Option) (*Reader, error) {
	c := newConfig(opts)

	if c.keys == nil {
		return nil, errors.New("no verification keys")
	}

	return &Reader{config: c}, nil
}

// Read parses input in any serialization and verifies it. It returns the
// payload once any signature verifies with the key selected by its "kid".
//
// A "crit" violation on any signature rejects the whole object.
func (r *Reader) Read(input []byte) ([]byte, *JWS, error) {
	j, err := Parse(string(input))
	if err != nil {
		return nil, nil, err
	}

	for i, sig := range j.Signatures {
		if err := header.ValidateCritical(sig.Protected, r.config.critical, sig.Header); err != nil {
			return nil, nil, jose.Malformed(fmt.Sprintf("signature %d", i), err)
		}
	}

	var (
		first   error
		invalid bool
	)

	for i, sig := range j.Signatures {
		err := r.verify(sig)
		if err == nil {
			r.config.logger.Debug("signature verified", slog.Int("index", i))
			return j.Payload, j, nil
		}

		// The cause stays out of the log.
		r.config.logger.Debug("signature rejected", slog.Int("index", i))

		if errors.Is(err, jose.ErrInvalidSignature) {
			invalid = true
		}
		if first == nil {
			first = err
		}
	}

	if invalid {
		return nil, nil, jose.ErrInvalidSignature
	}

	return nil, nil, first
}

func (r *Reader) verify(sig *Signature) error {
	alg, err := sig.Algorithm()
	if err != nil {
		return err
	}

	if !r.config.allowed.Allowed(alg) {
		return jose.Unsupported("signature algorithm", alg)
	}

	key, err := r.config.keys.Select(sig.KeyID())
	if err != nil {
		return err
	}

	return sig.Verify(key)
}
