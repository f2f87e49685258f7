// Package middleware provides the HTTP gate in front of protected routes:
// it extracts the bearer access token, validates it through the session
// manager, and threads the authenticated principal into the request
// context. Failures produce a structured JSON body with a machine-readable
// code; unauthorized (no valid session) and forbidden (valid session,
// disabled account) are distinguished.
package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pulsefit/pulseauth"
)

const bearerPrefix = "Bearer "

type failureBody struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Guard wraps next so it only runs for requests carrying a valid,
// unrevoked access token. The validated principal is available to next
// via pulseauth.PrincipalFromContext. The internal failure taxonomy is
// never echoed to the client; callers get a generic re-authenticate or
// temporarily-unavailable message.
func Guard(mgr *pulseauth.Manager, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeFailure(w, http.StatusUnauthorized, "authentication required")
				return
			}

			principal, err := mgr.Validate(r.Context(), tokenStr)
			if err != nil {
				if errors.Is(err, pulseauth.ErrStoreUnavailable) {
					log.Error("validation unavailable", "path", r.URL.Path, "error", err)
					writeFailure(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
					return
				}
				writeFailure(w, http.StatusUnauthorized, "please re-authenticate")
				return
			}
			if principal.Disabled() {
				writeFailure(w, http.StatusForbidden, "account disabled")
				return
			}

			ctx := pulseauth.WithPrincipal(r.Context(), principal)
			if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
				ctx = pulseauth.WithClientIP(ctx, host)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization header value in
// the standard "Bearer <token>" form.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	tokenStr := header[len(bearerPrefix):]
	if tokenStr == "" {
		return "", false
	}
	return tokenStr, true
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(failureBody{
		Code:      status,
		Message:   message,
		RequestID: uuid.NewString(),
	})
}
