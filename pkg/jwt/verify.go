package jwt

import (
	"errors"
	"fmt"
	"time"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
	"golang.org/x/exp/slices"
)

// VerifyConfig is a configuration type for verifying JWTs.
type VerifyConfig struct {
	// AllowedAlgorithms is a set of allowed algorithms for the JWT.
	//
	// If not set, then DefaultAllowedAlgorithms will be used. "none" is
	// never verified, even if listed.
	AllowedAlgorithms []jwa.Algorithm

	// AllowedIssuers is a set of allowed issuers for the JWT.
	//
	// If not set, then any issuers are allowed.
	AllowedIssuers []string

	// AllowedAudiences is a set of allowed audiences for the JWT.
	//
	// If not set, then any audiences are allowed.
	AllowedAudiences []string

	// AllowedKeys is a set of allowed keys for the JWT, tried in order.
	// With more than one key, the token must carry a "kid".
	AllowedKeys []any

	// Keys holds keys selected by the "kid" of the token. When set,
	// AllowedKeys is not used.
	Keys *keyutil.Set

	// SupportedCriticalHeaders names the "crit" extensions the caller
	// understands.
	SupportedCriticalHeaders []string

	// Clock is a function that returns the current time.
	//
	// This is used to verify the "exp" and "nbf" claims.
	//
	// If not set, then time.Now will be used.
	Clock Clock

	// ClockSkewTolerance is the leeway applied to "exp" and "nbf".
	ClockSkewTolerance time.Duration
}

// VerifyOption is a functional option type used to configure
// the verification requirements for JWTs.
type VerifyOption func(*VerifyConfig) error

// Clock is type used to represent a function that returns the current time.
type Clock func() time.Time

// WithAllowedIssuers sets the allowed issuers for the JWT.
func WithAllowedIssuers(issuers ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedIssuers = issuers
		return nil
	}
}

// WithAllowedAudiences sets the allowed audiences for the JWT.
func WithAllowedAudiences(audiences ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAudiences = audiences
		return nil
	}
}

// WithAllowedAlgorithms sets the allowed algorithms for the JWT.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedAlgorithms = algs
		return nil
	}
}

// WithKey appends a key to the set of allowed keys for the JWT.
//
// This is the preferred way to add a key to the set of allowed keys,
// because it will ensure that the given key is of the correct type
// at compile time.
func WithKey[T VerifyKey](key T) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedKeys = append(vc.AllowedKeys, key)
		return nil
	}
}

// WithKeys sets the allowed keys for the JWT.
func WithKeys(values ...any) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.AllowedKeys = values
		return nil
	}
}

// WithIdentifiableKey adds a key that is only used for tokens carrying
// the matching "kid".
func WithIdentifiableKey(id string, key any) VerifyOption {
	return func(vc *VerifyConfig) error {
		if id == "" {
			return fmt.Errorf("empty key ID")
		}
		if vc.Keys == nil {
			vc.Keys = keyutil.NewSet()
		}
		return vc.Keys.Add(id, key)
	}
}

// WithKeySet selects verification keys from set by the "kid" of the
// token.
func WithKeySet(set *keyutil.Set) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.Keys = set
		return nil
	}
}

// WithSupportedCriticalHeaders sets the "crit" extensions that are
// understood. A token listing any other name in "crit" is rejected.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func WithSupportedCriticalHeaders(names ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.SupportedCriticalHeaders = names
		return nil
	}
}

// WithClock sets the clock function for verifying the JWT.
func WithClock(clock Clock) VerifyOption {
	return func(vc *VerifyConfig) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		vc.Clock = clock
		return nil
	}
}

// WithDefaultClock sets the clock function for verifying the JWT
// to time.Now.
func WithDefaultClock() VerifyOption {
	return WithClock(time.Now)
}

// WithClockSkewTolerance allows "exp" and "nbf" to be off by up to d.
func WithClockSkewTolerance(d time.Duration) VerifyOption {
	return func(vc *VerifyConfig) error {
		if d < 0 {
			return fmt.Errorf("negative clock skew tolerance %v", d)
		}
		vc.ClockSkewTolerance = d
		return nil
	}
}

func newVerifyConfig(opts []VerifyOption) (*VerifyConfig, error) {
	config := &VerifyConfig{
		AllowedAlgorithms: DefaultAllowedAlgorithms(),
		Clock:             time.Now,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("verify option error: %w", err)
		}
	}

	return config, nil
}

// Verify checks the signature of the token and then its claims. If this
// fails for any reason, the returned error wraps ErrInvalidToken.
func (t *Token) Verify(opts ...VerifyOption) error {
	config, err := newVerifyConfig(opts)
	if err != nil {
		return err
	}

	if err := t.VerifySignature(config); err != nil {
		return err
	}

	return t.Claims.validate(config)
}

// VerifySignature checks only the signature of the token.
//
// # Warning
//
// This does not check any claims, such as expiration time, issuer,
// audience, etc.
func (t *Token) VerifySignature(config *VerifyConfig) error {
	if t.signed == nil || len(t.signed.Signatures) != 1 {
		return invalidf("token is not signed")
	}

	sig := t.signed.Signatures[0]

	if err := header.ValidateCritical(sig.Protected, config.SupportedCriticalHeaders, sig.Header); err != nil {
		return invalid(err)
	}

	alg, err := sig.Algorithm()
	if err != nil {
		return invalid(err)
	}

	if alg == jwa.None || !slices.Contains(config.AllowedAlgorithms, alg) {
		return invalid(jose.Unsupported("algorithm", alg))
	}

	if config.Keys != nil {
		key, err := config.Keys.Select(sig.KeyID())
		if err != nil {
			return invalid(err)
		}
		if err := sig.Verify(key); err != nil {
			return invalid(err)
		}
		return nil
	}

	if len(config.AllowedKeys) == 0 {
		return invalidf("no key provided to verify signature using algorithm %q", alg)
	}

	if n := len(config.AllowedKeys); n > 1 && sig.KeyID() == "" {
		return invalid(jose.Malformedf("missing %q with %d candidate keys", "kid", n))
	}

	var first error
	for _, key := range config.AllowedKeys {
		err := sig.Verify(key)
		if err == nil {
			return nil
		}
		if errors.Is(err, jose.ErrInvalidSignature) {
			first = err
			continue
		}
		if first == nil {
			first = err
		}
	}

	return invalid(first)
}

// Validate checks the registered claims against the options: "iss" and
// "aud" against the allowed values, and "exp" and "nbf" against the
// clock.
func (claims ClaimsSet) Validate(opts ...VerifyOption) error {
	config, err := newVerifyConfig(opts)
	if err != nil {
		return err
	}
	return claims.validate(config)
}

func (claims ClaimsSet) validate(config *VerifyConfig) error {
	// If the allowed issuers is empty, then any issuer is allowed.
	if config.AllowedIssuers != nil {
		issuer, _ := claims[Issuer].(string)
		if !slices.Contains(config.AllowedIssuers, issuer) {
			return invalidf("requested issuer %q is not allowed", issuer)
		}
	}

	// If the allowed audiences is empty, then any audience is allowed.
	// Otherwise one of the token audiences must be allowed.
	if config.AllowedAudiences != nil {
		audiences, err := claims.Audiences()
		if err != nil {
			return invalid(err)
		}

		if !slices.ContainsFunc(audiences, func(aud string) bool {
			return slices.Contains(config.AllowedAudiences, aud)
		}) {
			return invalidf("requested audience %q is not allowed", audiences)
		}
	}

	now := config.Clock()

	exp, ok, err := claims.Time(ExpirationTime)
	if err != nil {
		return invalid(err)
	}
	if ok && !now.Before(exp.Add(config.ClockSkewTolerance)) {
		return invalid(ErrTokenExpired)
	}

	nbf, ok, err := claims.Time(NotBefore)
	if err != nil {
		return invalid(err)
	}
	if ok && now.Add(config.ClockSkewTolerance).Before(nbf) {
		return invalid(fmt.Errorf("%w: unable to be used before %v", ErrTokenNotYetValid, nbf))
	}

	return nil
}

// Expired returns true if the token is expired, false otherwise.
// If an error occurs while checking expiration, it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expired(clock Clock) (bool, error) {
	exp, ok, err := t.Claims.Time(ExpirationTime)
	if err != nil || !ok {
		return false, err
	}
	return !clock().Before(exp), nil
}

// Expires returns true if the token has an expiration time claim,
// false otherwise. If an error occurs while checking expiration,
// it is returned.
//
// Only use the boolean value if error is nil.
func (t *Token) Expires() (bool, error) {
	_, ok, err := t.Claims.Time(ExpirationTime)
	return ok, err
}
