package jwe

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"log/slog"
	"testing"

	"github.com/KeyBridge/lib-jose-sub000/internal/logging"
	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
	"github.com/KeyBridge/lib-jose-sub000/pkg/header"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwa"
	"github.com/KeyBridge/lib-jose-sub000/pkg/jwe/keymgmt"
	"github.com/KeyBridge/lib-jose-sub000/pkg/keyutil"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyManagementAlgorithm(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	profile := jwa.DefaultProfile()

	tests := []struct {
		name string
		key  any
		want jwa.Algorithm
		err  error
	}{
		{name: "RSA public", key: &rsaKey.PublicKey, want: jwa.RSAOAEP},
		{name: "RSA private", key: rsaKey, want: jwa.RSAOAEP},
		{name: "16 bytes", key: make([]byte, 16), want: jwa.A128KW},
		{name: "24 bytes", key: make([]byte, 24), want: jwa.A192KW},
		{name: "32 bytes", key: make([]byte, 32), want: jwa.A256KW},
		{name: "20 bytes", key: make([]byte, 20), err: jose.ErrUnsupportedKeyLength},
		{name: "password", key: "hunter2", want: jwa.PBES2HS256A128KW},
		{name: "ECDSA", key: &ecdsa.PublicKey{Curve: elliptic.P256()}, err: jose.ErrInvalidKey},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			alg, err := DefaultAlgorithm(profile, test.key)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, alg)
		})
	}
}

func TestBuilderDefaults(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	builder, err := NewBuilder()
	require.NoError(t, err)

	j, err := builder.Encrypt([]byte("hello"), Recipient{Key: &rsaKey.PublicKey})
	require.NoError(t, err)

	alg, err := j.Protected.Algorithm()
	require.NoError(t, err)
	require.Equal(t, jwa.RSAOAEP, alg)

	enc, err := j.Protected.Encryption()
	require.NoError(t, err)
	require.Equal(t, jwa.A256GCM, enc)

	thumbprint, err := keyutil.Thumbprint(&rsaKey.PublicKey)
	require.NoError(t, err)
	require.Equal(t, thumbprint, j.KeyID())

	decrypted, err := j.Decrypt(rsaKey)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), decrypted)
}

func TestBuilderProfile(t *testing.T) {
	profile := jwa.DefaultProfile()
	profile.ContentEncryption = jwa.A128CBCHS256
	profile.KeyManagementPassword = jwa.PBES2HS512A256KW

	builder, err := NewBuilder(WithProfile(profile), WithKeyManagement(keymgmt.WithPBES2Count(1000)))
	require.NoError(t, err)

	j, err := builder.Encrypt([]byte("hello"), Recipient{Key: "hunter2", Compress: true})
	require.NoError(t, err)

	require.Equal(t, jwa.PBES2HS512A256KW, j.Protected[header.Algorithm])
	require.Equal(t, jwa.A128CBCHS256, j.Protected[header.Encryption])
	require.Equal(t, jwa.Deflate, j.Protected[header.Compression])
	require.False(t, j.Protected.Has(header.KeyID))

	count, err := j.Protected.PBES2Count()
	require.NoError(t, err)
	require.Equal(t, 1000, count)

	decrypted, err := j.Decrypt("hunter2")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), decrypted)

	t.Run("invalid profile", func(t *testing.T) {
		profile := jwa.DefaultProfile()
		profile.ContentEncryption = jwa.A128KW

		_, err := NewBuilder(WithProfile(profile))
		require.Error(t, err)
	})
}

func TestBuilderRecipient(t *testing.T) {
	kek := make([]byte, 24)
	_, err := rand.Read(kek)
	require.NoError(t, err)

	builder, err := NewBuilder(WithSerialization(jose.GeneralJSON))
	require.NoError(t, err)

	b, err := builder.Serialize([]byte("hello"), Recipient{
		Key:         kek,
		Encryption:  jwa.A192GCM,
		Protected:   Header{header.ContentType: "text/plain"},
		Unprotected: Header{header.KeyID: "wrapping-key"},
		AAD:         []byte("context"),
	})
	require.NoError(t, err)
	require.Contains(t, string(b), `"recipients"`)

	j, err := Parse(string(b))
	require.NoError(t, err)
	require.Equal(t, "wrapping-key", j.KeyID())
	require.False(t, j.Protected.Has(header.KeyID))
	require.Equal(t, jwa.A192KW, j.Protected[header.Algorithm])
	require.Equal(t, "text/plain", j.Protected[header.ContentType])

	decrypted, err := j.Decrypt(kek)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), decrypted)

	_, err = builder.Encrypt([]byte("hello"), Recipient{Key: make([]byte, 20)})
	require.ErrorIs(t, err, jose.ErrUnsupportedKeyLength)
}

func TestReader(t *testing.T) {
	first, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	second, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := keyutil.NewSet()
	require.NoError(t, keys.Add("first", first))
	require.NoError(t, keys.Add("second", second))

	encrypt := func(t *testing.T, key any, kid string) []byte {
		t.Helper()

		protected := Header{header.Algorithm: jwa.RSAOAEP256, header.Encryption: jwa.A128GCM}
		if kid != "" {
			protected[header.KeyID] = kid
		}

		j, err := New(protected, []byte("hello"), key)
		require.NoError(t, err)

		return []byte(j.String())
	}

	tests := []struct {
		name  string
		keys  Option
		input []byte
		err   error
	}{
		{
			name:  "single key",
			keys:  WithKey(first),
			input: encrypt(t, &first.PublicKey, "anything"),
		},
		{
			name:  "selected by kid",
			keys:  WithKeys(keys),
			input: encrypt(t, &second.PublicKey, "second"),
		},
		{
			name:  "missing kid with two keys",
			keys:  WithKeys(keys),
			input: encrypt(t, &second.PublicKey, ""),
			err:   jose.ErrMalformedInput,
		},
		{
			name:  "unknown kid",
			keys:  WithKeys(keys),
			input: encrypt(t, &second.PublicKey, "third"),
			err:   jose.ErrInvalidKey,
		},
		{
			name:  "wrong key for kid",
			keys:  WithKeys(keys),
			input: encrypt(t, &second.PublicKey, "first"),
			err:   jose.ErrDecryptionFailure,
		},
		{
			name:  "malformed",
			keys:  WithKeys(keys),
			input: []byte("not.a.jwe"),
			err:   jose.ErrMalformedInput,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			reader, err := NewReader(test.keys)
			require.NoError(t, err)

			plaintext, j, err := reader.Read(test.input)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				require.Nil(t, j)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []byte("hello"), plaintext)
			require.NotNil(t, j)
		})
	}

	_, err = NewReader()
	require.Error(t, err)
}

func TestReaderPassword(t *testing.T) {
	builder, err := NewBuilder(WithKeyManagement(keymgmt.WithPBES2Count(1000)))
	require.NoError(t, err)

	b, err := builder.Serialize([]byte("hello"), Recipient{Key: "hunter2"})
	require.NoError(t, err)

	reader, err := NewReader(WithKey("hunter2"))
	require.NoError(t, err)

	plaintext, _, err := reader.Read(b)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), plaintext)

	reader, err = NewReader(WithKey("hunter3"))
	require.NoError(t, err)

	_, _, err = reader.Read(b)
	require.Equal(t, jose.ErrDecryptionFailure, err)
}

func TestReaderLogsWithoutCauses(t *testing.T) {
	kek := make([]byte, 16)

	j, err := New(Header{header.Algorithm: jwa.A128KW, header.Encryption: jwa.A128GCM}, []byte("hello"), kek)
	require.NoError(t, err)

	buff := bytes.NewBuffer(nil)
	logger, err := logging.New(buff, slog.LevelDebug, logging.FormatJSON)
	require.NoError(t, err)

	reader, err := NewReader(WithKey(bytes.Repeat([]byte{1}, 16)), WithLogger(logger))
	require.NoError(t, err)

	_, _, err = reader.Read([]byte(j.String()))
	require.Equal(t, jose.ErrDecryptionFailure, err)

	require.Contains(t, buff.String(), "decryption rejected")
	require.NotContains(t, buff.String(), jose.ErrDecryptionFailure.Error())
	require.NotContains(t, buff.String(), "unwrap")
}
