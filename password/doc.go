// Package password hashes and verifies login credentials with argon2id,
// emitting standard PHC-formatted strings. The session subsystem treats
// it as a delegated primitive: only the credential-verifying login
// surface touches it, never the token or store layers.
package password
