package jwt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/google/uuid"
)

// There are three classes of JWT Claim Names:
// 1. Registered Claim Names
// 2. Public Claim Names
// 3. Private Claim Names
type (
	ClaimName = string

	Registered = ClaimName
	Public     = ClaimName
	Private    = ClaimName
)

// ClaimValue is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a ClaimName and a ClaimValue.
type ClaimValue = any

// Registered Claim Names
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1
const (
	Issuer         Registered = "iss"
	Subject        Registered = "sub"
	Audience       Registered = "aud"
	ExpirationTime Registered = "exp"
	NotBefore      Registered = "nbf"
	IssuedAt       Registered = "iat"
	JWTID          Registered = "jti"
)

// ClaimsSet is a JSON object that contains the claims conveyed by the JWT.
//
// A claim is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a Claim Name and a Claim Value.
type ClaimsSet map[ClaimName]ClaimValue

// Bytes returns the JSON encoding of the claims set.
func (claims ClaimsSet) Bytes() ([]byte, error) {
	buff := bytes.NewBuffer(nil)

	enc := json.NewEncoder(buff)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(claims); err != nil {
		return nil, fmt.Errorf("failed to encode claims set: %w", err)
	}

	return bytes.TrimSuffix(buff.Bytes(), []byte("\n")), nil
}

// String returns the base64url encoded JSON claims set.
func (claims ClaimsSet) String() string {
	b, err := claims.Bytes()
	if err != nil {
		return fmt.Sprintf("<invalid-claims-set %q: %#v>", err, claims)
	}

	return base64.Encode(b)
}

// Get returns the value of the named claim.
func (claims ClaimsSet) Get(name ClaimName) (ClaimValue, error) {
	value, ok := claims[name]
	if !ok {
		return nil, fmt.Errorf("claim %q not found in claims set", name)
	}
	return value, nil
}

// Set sets the value of the named claim.
func (claims ClaimsSet) Set(name ClaimName, value ClaimValue) {
	claims[name] = value
}

// Names returns the claim names in reverse lexical order.
func (claims ClaimsSet) Names() []ClaimName {
	var names []ClaimName

	for name := range claims {
		names = append(names, name)
	}

	sort.SliceStable(names, func(i, j int) bool {
		return names[i] > names[j]
	})

	return names
}

// WithID sets a random "jti" claim, unless one is already set, and
// returns the claims set.
func (claims ClaimsSet) WithID() ClaimsSet {
	if _, ok := claims[JWTID]; !ok {
		claims[JWTID] = uuid.NewString()
	}
	return claims
}

// Audiences returns the "aud" claim, which may be a single string or an
// array of strings.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1.3
func (claims ClaimsSet) Audiences() ([]string, error) {
	value, ok := claims[Audience]
	if !ok {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		audiences := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return nil, &ClaimTypeError{Name: Audience, Value: value}
			}
			audiences = append(audiences, s)
		}
		return audiences, nil
	default:
		return nil, &ClaimTypeError{Name: Audience, Value: value}
	}
}

// Time returns a NumericDate claim such as "exp" as a time.
func (claims ClaimsSet) Time(name ClaimName) (time.Time, bool, error) {
	value, ok := claims[name]
	if !ok {
		return time.Time{}, false, nil
	}

	seconds, err := numericDate(value)
	if err != nil {
		return time.Time{}, true, &ClaimTypeError{Name: name, Value: value}
	}

	return time.Unix(seconds, 0), true, nil
}

// normalize converts the values of registered claims to the types used
// throughout this package: NumericDate claims become int64 seconds and
// string claims accept any fmt.Stringer.
func (claims ClaimsSet) normalize() error {
	for name, value := range claims {
		switch name {
		case ExpirationTime, NotBefore, IssuedAt:
			seconds, err := numericDate(value)
			if err != nil {
				return &ClaimTypeError{Name: name, Value: value}
			}
			claims[name] = seconds
		case Issuer, Subject, JWTID:
			switch v := value.(type) {
			case string:
			case fmt.Stringer:
				claims[name] = v.String()
			default:
				return &ClaimTypeError{Name: name, Value: value}
			}
		case Audience:
			if _, err := claims.Audiences(); err != nil {
				return err
			}
		}
	}
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc7519#section-2
func numericDate(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case time.Time:
		return v.Unix(), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid NumericDate %v", v)
		}
		return int64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return numericDate(f)
	default:
		return 0, fmt.Errorf("invalid NumericDate type %T", value)
	}
}

func parseClaims(b []byte) (ClaimsSet, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	claims := ClaimsSet{}
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims JSON: %w", err)
	}

	if dec.More() {
		return nil, fmt.Errorf("unexpected data after claims JSON")
	}

	for name, value := range claims {
		n, ok := value.(json.Number)
		if !ok {
			continue
		}

		// Integers stay exact; other numbers become float64, as they
		// would with a plain decode.
		if i, err := n.Int64(); err == nil {
			claims[name] = i
		} else if f, err := n.Float64(); err == nil {
			claims[name] = f
		}
	}

	if err := claims.normalize(); err != nil {
		return nil, err
	}

	return claims, nil
}
