package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/KeyBridge/lib-jose-sub000/pkg/jwk"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
	"github.com/spf13/cobra"
)

// loadKey reads a single key from path. PEM files hold a private or
// public key, JSON files a JWK, and anything else is taken verbatim as a
// symmetric key. With public set, private keys yield their public half.
func loadKey(path string, public bool) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("no key file given")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := parseKey(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}

	if _, ok := key.([]byte); public && !ok {
		return keyutil.Public(key)
	}

	return key, nil
}

func parseKey(b []byte) (any, error) {
	trimmed := bytes.TrimSpace(b)

	switch {
	case bytes.HasPrefix(trimmed, []byte("-----BEGIN")):
		if key, err := keyutil.ParsePrivateKey(bytes.NewReader(trimmed)); err == nil {
			return key, nil
		}
		return keyutil.ParsePublicKey(bytes.NewReader(trimmed))
	case bytes.HasPrefix(trimmed, []byte("{")):
		var value jwk.Value
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, err
		}
		return jwk.Key(value)
	default:
		return b, nil
	}
}

// loadKeySet reads path as a JWK set when it holds one, and otherwise as
// a single key matching any "kid".
func loadKeySet(path string, public bool) (*keyutil.Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var set jwk.Set
	if err := json.Unmarshal(bytes.TrimSpace(b), &set); err == nil && len(set.Keys) > 0 {
		return keyutil.SetFromJWK(&set)
	}

	key, err := loadKey(path, public)
	if err != nil {
		return nil, err
	}

	return keyutil.SingleKeySet(key), nil
}

// fetchKeySet downloads a JWK set.
func fetchKeySet(cmd *cobra.Command, url string) (*keyutil.Set, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	set, err := jwk.FetchSet(cmd.Context(), url, client)
	if err != nil {
		return nil, err
	}

	return keyutil.SetFromJWK(set)
}
