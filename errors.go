package pulseauth

import "errors"

var (
	// ErrTokenExpired is returned for a structurally valid token whose
	// expiry has passed. Distinguished from malformed/tampered tokens so
	// the wire layer can say "please re-authenticate" with a reason.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionRevoked is returned when a token verifies and is
	// unexpired but its backing store entry is gone (logout or eviction).
	ErrSessionRevoked = errors.New("session revoked")
	// ErrNotRefreshToken rejects a refresh attempt with anything other
	// than a refresh-type token.
	ErrNotRefreshToken = errors.New("not a refresh token")
	// ErrPrincipalNotFound is returned when the refresh flow cannot
	// re-resolve the session's subject.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrStoreUnavailable wraps session store I/O failures. Fatal to the
	// current call; never retried by this package.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
