package jose

import (
	"fmt"
	"strings"
)

// Serialization is a wire format for JWS and JWE objects.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7
type Serialization int

const (
	// Compact is the dot separated, URL-safe form.
	Compact Serialization = iota

	// FlattenedJSON is the JSON form carrying a single signature or recipient.
	FlattenedJSON

	// GeneralJSON is the JSON form carrying an array of signatures.
	GeneralJSON
)

func (s Serialization) String() string {
	switch s {
	case Compact:
		return "compact"
	case FlattenedJSON:
		return "flattened"
	case GeneralJSON:
		return "general"
	default:
		return fmt.Sprintf("serialization(%d)", int(s))
	}
}

// ParseSerialization returns the serialization named by s, which is one
// of "compact", "flattened" or "general".
func ParseSerialization(s string) (Serialization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "compact":
		return Compact, nil
	case "flattened", "json":
		return FlattenedJSON, nil
	case "general":
		return GeneralJSON, nil
	default:
		return 0, fmt.Errorf("unknown serialization %q", s)
	}
}
