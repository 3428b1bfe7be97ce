package jwe

import (
	"crypto/rand"
	"io"
	"log/slog"

	"github.com/KeyBridge/lib-jose-sub000/internal/logging"
	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe/keymgmt"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
)

// DefaultMaxDecompressedSize bounds the plaintext of a compressed JWE.
const DefaultMaxDecompressedSize = 1 << 20

// Option configures New, Decrypt, a Builder or a Reader. Options that do
// not apply to one of them are ignored by it.
type Option func(*config)

type config struct {
	random              io.Reader
	unprotected         Header
	recipient           Header
	aad                 []byte
	keymgmt             []keymgmt.Option
	allowed             jwa.AllowedAlgorithms
	critical            []string
	maxDecompressedSize int

	profile jwa.Profile
	logger  *slog.Logger
	form    jose.Serialization
	keys    *keyutil.Set
}

func newConfig(opts []Option) *config {
	c := &config{
		random:              rand.Reader,
		allowed:             DefaultAllowedAlgorithms(),
		maxDecompressedSize: DefaultMaxDecompressedSize,
		profile:             jwa.DefaultProfile(),
		form:                jose.Compact,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// DefaultAllowedAlgorithms returns every registered key management and
// content encryption algorithm except RSA1_5.
func DefaultAllowedAlgorithms() jwa.AllowedAlgorithms {
	allowed := jwa.NewAllowedAlgorithms(jwa.ContentEncryptionAlgorithms()...)
	for _, alg := range jwa.KeyManagementAlgorithms() {
		if alg != jwa.RSA1_5 {
			allowed[alg] = struct{}{}
		}
	}
	return allowed
}

// WithRandom sets the source of CEKs, IVs, salts and padding. The
// default is crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(c *config) {
		c.random = r
	}
}

// WithUnprotected sets the shared unprotected header.
func WithUnprotected(h Header) Option {
	return func(c *config) {
		c.unprotected = h
	}
}

// WithRecipientHeader sets the per-recipient unprotected header.
func WithRecipientHeader(h Header) Option {
	return func(c *config) {
		c.recipient = h
	}
}

// WithAAD sets the JSON "aad" member.
func WithAAD(aad []byte) Option {
	return func(c *config) {
		c.aad = aad
	}
}

// WithKeyManagement passes options to the key management algorithm.
func WithKeyManagement(opts ...keymgmt.Option) Option {
	return func(c *config) {
		c.keymgmt = append(c.keymgmt, opts...)
	}
}

// WithAllowedAlgorithms sets the "alg" and "enc" values accepted when
// decrypting. Both must be listed.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) Option {
	return func(c *config) {
		c.allowed = jwa.NewAllowedAlgorithms(algs...)
	}
}

// WithCriticalHeaders sets the "crit" extensions understood when
// decrypting.
func WithCriticalHeaders(names ...string) Option {
	return func(c *config) {
		c.critical = append([]string(nil), names...)
	}
}

// WithMaxDecompressedSize bounds the inflated plaintext of a JWE with
// "zip": "DEF".
func WithMaxDecompressedSize(n int) Option {
	return func(c *config) {
		c.maxDecompressedSize = n
	}
}

// WithProfile sets the algorithms a Builder uses when a Recipient does
// not name them.
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

// WithKeys sets the candidate decryption keys of a Reader.
func WithKeys(keys *keyutil.Set) Option {
	return func(c *config) {
		c.keys = keys
	}
}

// WithKey sets a single decryption key, used for any "kid".
func WithKey(key any) Option {
	return func(c *config) {
		c.keys = keyutil.SingleKeySet(key)
	}
}
