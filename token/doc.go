// Package token implements the compact signed-claims codec used by the
// session manager. Tokens are HS256 JWTs carrying a session identifier as
// the subject and a dedicated token_type claim distinguishing the
// short-lived access token from the long-lived refresh token.
//
// The codec is stateless: encoding and decoding are pure functions of the
// symmetric key derived from the configured secret. Signature validity and
// expiry are checked separately so callers can tell a tampered token apart
// from a merely expired one.
//
// # What this package must NOT do
//
//   - Touch the session store, or know what a session identifier means.
//   - Hold the secret in mutable package-level state.
package token
