package jws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
)

// jsonSignature is a member of the "signatures" array of the general JWS
// JSON Serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
type jsonSignature struct {
	Protected string `json:"protected,omitempty"`
	Header    Header `json:"header,omitempty"`
	Signature string `json:"signature"`
}

type jsonGeneral struct {
	Payload    string          `json:"payload"`
	Signatures []jsonSignature `json:"signatures"`
}

// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.2
type jsonFlattened struct {
	Payload string `json:"payload"`
	jsonSignature
}

// rawJSON accepts either JSON form, keeping track of which members were
// present.
type rawJSON struct {
	Payload    *string            `json:"payload"`
	Signatures *[]json.RawMessage `json:"signatures"`
	Protected  *string            `json:"protected"`
	Header     json.RawMessage    `json:"header"`
	Signature  *string            `json:"signature"`
}

type rawSignature struct {
	Protected *string         `json:"protected"`
	Header    json.RawMessage `json:"header"`
	Signature *string         `json:"signature"`
}

// Compact returns the JWS Compact Serialization. It requires exactly one
// signature with only a protected header.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.1
func (j *JWS) Compact() (string, error) {
	if len(j.Signatures) != 1 {
		return "", jose.SerializationError(fmt.Sprintf("compact form requires exactly one signature, got %d", len(j.Signatures)), nil)
	}

	sig := j.Signatures[0]

	if len(sig.Header) > 0 {
		return "", jose.SerializationError("compact form cannot carry an unprotected header", nil)
	}

	if sig.protected == "" {
		return "", jose.SerializationError("compact form requires a protected header", nil)
	}

	return sig.protected + "." + base64.Encode(j.Payload) + "." + base64.Encode(sig.Signature), nil
}

// FlattenedJSON returns the flattened JWS JSON Serialization. It requires
// exactly one signature, so a general JWS with one signature converts to
// this form.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.2
func (j *JWS) FlattenedJSON() ([]byte, error) {
	if len(j.Signatures) != 1 {
		return nil, jose.SerializationError(fmt.Sprintf("flattened form requires exactly one signature, got %d", len(j.Signatures)), nil)
	}

	return marshal(jsonFlattened{
		Payload:       base64.Encode(j.Payload),
		jsonSignature: j.Signatures[0].json(),
	})
}

// GeneralJSON returns the general JWS JSON Serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
func (j *JWS) GeneralJSON() ([]byte, error) {
	if len(j.Signatures) == 0 {
		return nil, jose.SerializationError("general form requires at least one signature", nil)
	}

	out := jsonGeneral{
		Payload:    base64.Encode(j.Payload),
		Signatures: make([]jsonSignature, 0, len(j.Signatures)),
	}

	for _, sig := range j.Signatures {
		out.Signatures = append(out.Signatures, sig.json())
	}

	return marshal(out)
}

// Serialize writes the JWS in the given form.
func (j *JWS) Serialize(form jose.Serialization) ([]byte, error) {
	switch form {
	case jose.Compact:
		s, err := j.Compact()
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case jose.FlattenedJSON:
		return j.FlattenedJSON()
	case jose.GeneralJSON:
		return j.GeneralJSON()
	default:
		return nil, jose.SerializationError(fmt.Sprintf("unknown serialization %v", form), nil)
	}
}

// String returns the compact serialization, or an empty string if the
// JWS cannot be written in compact form.
func (j *JWS) String() string {
	s, err := j.Compact()
	if err != nil {
		return ""
	}
	return s
}

func (s *Signature) json() jsonSignature {
	return jsonSignature{
		Protected: s.protected,
		Header:    s.Header,
		Signature: base64.Encode(s.Signature),
	}
}

func marshal(v any) ([]byte, error) {
	buff := bytes.NewBuffer(nil)

	enc := json.NewEncoder(buff)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, jose.SerializationError("failed to encode JWS JSON", err)
	}

	return bytes.TrimSuffix(buff.Bytes(), []byte("\n")), nil
}

// Parse parses a JWS in any serialization. Input starting with '{' is
// parsed as JSON, anything else as compact. The signatures are not
// verified.
func Parse(input string) (*JWS, error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") {
		return ParseJSON([]byte(trimmed))
	}
	return ParseCompact(input)
}

// ParseCompact parses the JWS Compact Serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.1
func ParseCompact(input string) (*JWS, error) {
	if input == "" {
		return nil, jose.Malformedf("empty JWS string")
	}

	if dots := strings.Count(input, "."); dots != 2 {
		return nil, jose.Malformedf("expected 2 dots, got %d", dots)
	}

	parts := strings.SplitN(input, ".", 3)

	j := &JWS{}

	sig, err := parseSignature(j, &parts[0], nil, &parts[2])
	if err != nil {
		return nil, err
	}

	j.Payload, err = base64.Decode(parts[1])
	if err != nil {
		return nil, jose.Malformed("failed to decode payload", err)
	}

	j.Signatures = []*Signature{sig}

	return j, nil
}

// ParseJSON parses either JWS JSON Serialization. Mixing members of the
// flattened and general forms is an error.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2
func ParseJSON(input []byte) (*JWS, error) {
	var raw rawJSON

	if err := header.UniqueMembers(input); err != nil {
		return nil, jose.Malformed("invalid JWS JSON", err)
	}

	if err := json.Unmarshal(input, &raw); err != nil {
		return nil, jose.Malformed("failed to decode JWS JSON", err)
	}

	if raw.Payload == nil {
		return nil, jose.Malformedf("missing %q member", "payload")
	}

	payload, err := base64.Decode(*raw.Payload)
	if err != nil {
		return nil, jose.Malformed("failed to decode payload", err)
	}

	j := &JWS{Payload: payload}

	flattened := raw.Protected != nil || raw.Header != nil || raw.Signature != nil

	switch {
	case raw.Signatures != nil && flattened:
		return nil, jose.Malformedf("JWS JSON mixes flattened and general members")
	case raw.Signatures != nil:
		if len(*raw.Signatures) == 0 {
			return nil, jose.Malformedf("empty %q array", "signatures")
		}

		for i, msg := range *raw.Signatures {
			if err := header.UniqueMembers(msg); err != nil {
				return nil, jose.Malformed(fmt.Sprintf("invalid signature %d", i), err)
			}

			var rs rawSignature
			if err := json.Unmarshal(msg, &rs); err != nil {
				return nil, jose.Malformed(fmt.Sprintf("failed to decode signature %d", i), err)
			}

			sig, err := parseSignature(j, rs.Protected, rs.Header, rs.Signature)
			if err != nil {
				return nil, fmt.Errorf("signature %d: %w", i, err)
			}

			j.Signatures = append(j.Signatures, sig)
		}
	default:
		sig, err := parseSignature(j, raw.Protected, raw.Header, raw.Signature)
		if err != nil {
			return nil, err
		}

		j.Signatures = []*Signature{sig}
	}

	return j, nil
}

func parseSignature(j *JWS, protected *string, unprotected json.RawMessage, signature *string) (*Signature, error) {
	if signature == nil {
		return nil, jose.Malformedf("missing %q member", "signature")
	}

	sig := &Signature{owner: j}

	if protected != nil && *protected != "" {
		h, err := header.Parse(*protected)
		if err != nil {
			return nil, jose.Malformed("invalid protected header", err)
		}
		sig.Protected = h
		sig.protected = *protected
	}

	if len(unprotected) > 0 && string(unprotected) != "null" {
		h, err := header.ParseJSON(unprotected)
		if err != nil {
			return nil, jose.Malformed("invalid unprotected header", err)
		}
		sig.Header = h
	}

	if sig.Protected == nil && sig.Header == nil {
		return nil, jose.Malformedf("signature has no header")
	}

	if _, err := sig.Algorithm(); err != nil {
		return nil, err
	}

	var err error
	sig.Signature, err = base64.Decode(*signature)
	if err != nil {
		return nil, jose.Malformed("failed to decode signature", err)
	}

	return sig, nil
}
