// Package httpapi exposes the session lifecycle over HTTP: login issues a
// token pair, refresh exchanges a live refresh token for a new access
// token, logout terminates the session, and profile returns the caller's
// principal. Handlers translate the manager's error taxonomy into generic
// client-facing responses; internal causes are logged, never echoed.
package httpapi
