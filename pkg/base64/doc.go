// Package base64 provides base64url encoding and decoding functions
// as defined in RFC 4648 Section 5, specifically for use in JSON Web
// Signatures (JWS) and JSON Web Encryption (JWE) as specified in
// RFC 7515 and RFC 7516.
//
// The key difference from standard base64 encoding is:
//   - Uses URL-safe characters (- and _ instead of + and /)
//   - Omits padding characters (=) in the encoded output
//   - Rejects padded or otherwise non-canonical input when decoding
//
// http://www.rfc-editor.org/rfc/rfc4648#section-5
package base64
