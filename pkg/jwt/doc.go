// Package jwt provides JSON Web Tokens on top of the jws and jwe
// packages.
//
// Signed tokens are JWS compact serializations of a JSON claims set.
// Encrypted tokens are JWE compact serializations of the same. Detect
// tells the two apart by the number of segments.
//
// https://datatracker.ietf.org/doc/html/rfc7519
package jwt
