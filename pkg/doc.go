// Package jose implements JavaScript Object Signing and Encryption (JOSE) related functionality.
//
// The root package holds the error taxonomy shared by every layer. The
// envelopes live in the jws and jwe packages, the algorithm registry in jwa,
// and the header model in header.
//
// Related RFCs:
//  - RFC7515 https://datatracker.ietf.org/doc/html/rfc7515 JWS, JSON Web Signature
//  - RFC7516 https://datatracker.ietf.org/doc/html/rfc7516 JWE, JSON Web Encryption
//  - RFC7517 https://datatracker.ietf.org/doc/html/rfc7517 JWK, JSON Web Key
//  - RFC7518 https://datatracker.ietf.org/doc/html/rfc7518 JWA, JSON Web Algorithms
//  - RFC7519 https://datatracker.ietf.org/doc/html/rfc7519 JWT, JSON Web Token
//  - RFC7638 https://datatracker.ietf.org/doc/html/rfc7638 JWK Thumbprint
//
// Related Information:
//  - https://datatracker.ietf.org/wg/jose/charter/
package jose
