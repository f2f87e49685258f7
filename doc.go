// Package pulseauth issues, validates, refreshes, and revokes the bearer
// credentials of the Pulse backend. It is a first-party credential issuer
// for a single trust domain: every client holds a pair of HS256-signed
// tokens, a short-lived access token and a long-lived refresh token,
// bound to one session identifier, with mutable session state kept in a
// pluggable TTL-aware store (bounded in-process cache or Redis).
//
// The signed token and the store entry validate together: a token is
// honored only while its store entry exists, so deleting the entry revokes
// an otherwise cryptographically valid token. That makes the store the
// sole revocation mechanism and keeps the tokens themselves stateless.
//
// Construction goes through the builder:
//
//	mgr, err := pulseauth.New().
//		WithConfig(cfg).
//		WithResolver(resolver).
//		Build()
//
// After Build, Manager methods are safe for concurrent use.
//
// Subpackages: token (signed-claims codec), cache (session store backends),
// password (argon2id hashing for the login surface), middleware (bearer
// guard), httpapi (wire endpoints).
package pulseauth
