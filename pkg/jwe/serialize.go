package jwe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/base64"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
)

type jsonRecipient struct {
	Header       Header `json:"header,omitempty"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
}

// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.2
type jsonFlattened struct {
	Protected   string `json:"protected,omitempty"`
	Unprotected Header `json:"unprotected,omitempty"`
	jsonRecipient
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
	AAD        string `json:"aad,omitempty"`
}

// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.1
type jsonGeneral struct {
	Protected   string          `json:"protected,omitempty"`
	Unprotected Header          `json:"unprotected,omitempty"`
	Recipients  []jsonRecipient `json:"recipients"`
	IV          string          `json:"iv"`
	Ciphertext  string          `json:"ciphertext"`
	Tag         string          `json:"tag"`
	AAD         string          `json:"aad,omitempty"`
}

type rawRecipient struct {
	Header       json.RawMessage `json:"header"`
	EncryptedKey *string         `json:"encrypted_key"`
}

// rawJSON accepts either JSON form.
type rawJSON struct {
	Protected   *string            `json:"protected"`
	Unprotected json.RawMessage    `json:"unprotected"`
	Recipients  *[]json.RawMessage `json:"recipients"`
	rawRecipient
	IV         *string `json:"iv"`
	Ciphertext *string `json:"ciphertext"`
	Tag        *string `json:"tag"`
	AAD        *string `json:"aad"`
}

// Compact returns the JWE Compact Serialization. It fails for a JWE
// carrying an unprotected header or an "aad" member.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.1
func (j *JWE) Compact() (string, error) {
	switch {
	case len(j.AAD) > 0:
		return "", jose.SerializationError("compact form cannot carry an \"aad\" member", nil)
	case len(j.Unprotected) > 0 || len(j.Header) > 0:
		return "", jose.SerializationError("compact form cannot carry an unprotected header", nil)
	case j.protected == "":
		return "", jose.SerializationError("compact form requires a protected header", nil)
	}

	return strings.Join([]string{
		j.protected,
		base64.Encode(j.EncryptedKey),
		base64.Encode(j.IV),
		base64.Encode(j.Ciphertext),
		base64.Encode(j.Tag),
	}, "."), nil
}

// FlattenedJSON returns the flattened JWE JSON Serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.2
func (j *JWE) FlattenedJSON() ([]byte, error) {
	return marshal(jsonFlattened{
		Protected:     j.protected,
		Unprotected:   j.Unprotected,
		jsonRecipient: j.recipientJSON(),
		IV:            base64.Encode(j.IV),
		Ciphertext:    base64.Encode(j.Ciphertext),
		Tag:           base64.Encode(j.Tag),
		AAD:           encodeOptional(j.AAD),
	})
}

// GeneralJSON returns the general JWE JSON Serialization with a single
// entry in "recipients".
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.1
func (j *JWE) GeneralJSON() ([]byte, error) {
	return marshal(jsonGeneral{
		Protected:   j.protected,
		Unprotected: j.Unprotected,
		Recipients:  []jsonRecipient{j.recipientJSON()},
		IV:          base64.Encode(j.IV),
		Ciphertext:  base64.Encode(j.Ciphertext),
		Tag:         base64.Encode(j.Tag),
		AAD:         encodeOptional(j.AAD),
	})
}

// Serialize writes the JWE in the given form.
func (j *JWE) Serialize(form jose.Serialization) ([]byte, error) {
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
// JWE cannot be written in compact form.
func (j *JWE) String() string {
	s, err := j.Compact()
	if err != nil {
		return ""
	}
	return s
}

func (j *JWE) recipientJSON() jsonRecipient {
	return jsonRecipient{
		Header:       j.Header,
		EncryptedKey: encodeOptional(j.EncryptedKey),
	}
}

func encodeOptional(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.Encode(b)
}

func marshal(v any) ([]byte, error) {
	buff := bytes.NewBuffer(nil)

	enc := json.NewEncoder(buff)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, jose.SerializationError("failed to encode JWE JSON", err)
	}

	return bytes.TrimSuffix(buff.Bytes(), []byte("\n")), nil
}

// Parse parses a JWE in any serialization. Input starting with '{' is
// parsed as JSON, anything else as compact.
func Parse(input string) (*JWE, error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") {
		return ParseJSON([]byte(trimmed))
	}
	return ParseCompact(input)
}

// ParseCompact parses the JWE Compact Serialization. The encrypted key
// segment is empty for "dir".
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.1
func ParseCompact(input string) (*JWE, error) {
	if input == "" {
		return nil, jose.Malformedf("empty JWE string")
	}

	if dots := strings.Count(input, "."); dots != 4 {
		return nil, jose.Malformedf("expected 4 dots, got %d", dots)
	}

	parts := strings.Split(input, ".")

	if parts[0] == "" {
		return nil, jose.Malformedf("missing protected header")
	}

	j := &JWE{}

	if err := j.decodeProtected(parts[0]); err != nil {
		return nil, err
	}

	if err := decodeSegments([]segment{
		{"encrypted key", &parts[1], &j.EncryptedKey, false},
		{"IV", &parts[2], &j.IV, true},
		{"ciphertext", &parts[3], &j.Ciphertext, true},
		{"tag", &parts[4], &j.Tag, true},
	}); err != nil {
		return nil, err
	}

	if _, _, _, err := j.algorithms(); err != nil {
		return nil, err
	}

	return j, nil
}

// ParseJSON parses the flattened JWE JSON Serialization, or the general
// form with exactly one recipient.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2
func ParseJSON(input []byte) (*JWE, error) {
	var raw rawJSON

	if err := header.UniqueMembers(input); err != nil {
		return nil, jose.Malformed("invalid JWE JSON", err)
	}

	if err := json.Unmarshal(input, &raw); err != nil {
		return nil, jose.Malformed("failed to decode JWE JSON", err)
	}

	j := &JWE{}

	if raw.Protected != nil && *raw.Protected != "" {
		if err := j.decodeProtected(*raw.Protected); err != nil {
			return nil, err
		}
	}

	var err error

	j.Unprotected, err = parseHeaderMember(raw.Unprotected, "unprotected")
	if err != nil {
		return nil, err
	}

	recipient := raw.rawRecipient

	if raw.Recipients != nil {
		if raw.Header != nil || raw.EncryptedKey != nil {
			return nil, jose.Malformedf("JWE JSON mixes flattened and general members")
		}

		switch n := len(*raw.Recipients); n {
		case 0:
			return nil, jose.Malformedf("empty %q array", "recipients")
		case 1:
		default:
			return nil, jose.Malformedf("%d recipients, only one is supported", n)
		}

		if err := header.UniqueMembers((*raw.Recipients)[0]); err != nil {
			return nil, jose.Malformed("invalid recipient", err)
		}

		recipient = rawRecipient{}
		if err := json.Unmarshal((*raw.Recipients)[0], &recipient); err != nil {
			return nil, jose.Malformed("failed to decode recipient", err)
		}
	}

	j.Header, err = parseHeaderMember(recipient.Header, "header")
	if err != nil {
		return nil, err
	}

	if err := decodeSegments([]segment{
		{"encrypted_key", recipient.EncryptedKey, &j.EncryptedKey, false},
		{"iv", raw.IV, &j.IV, true},
		{"ciphertext", raw.Ciphertext, &j.Ciphertext, true},
		{"tag", raw.Tag, &j.Tag, true},
		{"aad", raw.AAD, &j.AAD, false},
	}); err != nil {
		return nil, err
	}

	if _, _, _, err := j.algorithms(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *JWE) decodeProtected(segment string) error {
	h, err := header.Parse(segment)
	if err != nil {
		return jose.Malformed("invalid protected header", err)
	}
	j.Protected = h
	j.protected = segment
	return nil
}

func parseHeaderMember(raw json.RawMessage, name string) (Header, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	h, err := header.ParseJSON(raw)
	if err != nil {
		return nil, jose.Malformed(fmt.Sprintf("invalid %q header", name), err)
	}
	return h, nil
}

// segment is a base64url member of a serialized JWE.
type segment struct {
	name     string
	value    *string
	target   *[]byte
	required bool
}

func decodeSegments(segments []segment) error {
	for _, s := range segments {
		if s.value == nil {
			if s.required {
				return jose.Malformedf("missing %q member", s.name)
			}
			continue
		}

		b, err := base64.Decode(*s.value)
		if err != nil {
			return jose.Malformed(fmt.Sprintf("failed to decode %s", s.name), err)
		}
		*s.target = b
	}
	return nil
}
