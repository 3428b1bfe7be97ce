package jwe

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	jose "github.com/KeyBridge/lib-jose-sub000/pkg"
)

// deflate compresses the plaintext with raw DEFLATE.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
func deflate(plaintext []byte) ([]byte, error) {
	buff := bytes.NewBuffer(nil)

	w, err := flate.NewWriter(buff, flate.DefaultCompression)
	if err != nil {
		return nil, jose.SerializationError("failed to create compressor", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, jose.SerializationError("failed to compress plaintext", err)
	}

	if err := w.Close(); err != nil {
		return nil, jose.SerializationError("failed to compress plaintext", err)
	}

	return buff.Bytes(), nil
}

// inflate decompresses at most limit bytes.
func inflate(compressed []byte, limit int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, jose.Malformed("failed to decompress plaintext", err)
	}

	if len(out) > limit {
		return nil, jose.Malformedf("decompressed plaintext exceeds %d bytes", limit)
	}

	return out, nil
}
