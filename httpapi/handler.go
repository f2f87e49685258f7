package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pulsefit/pulseauth"
	"github.com/pulsefit/pulseauth/middleware"
)

// CredentialVerifier checks a username/password pair and returns the
// principal it belongs to. A failed check returns an error; the handler
// never distinguishes unknown user from wrong password in responses.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (*pulseauth.Principal, error)
}

// Handler serves the authentication routes on top of a session manager.
type Handler struct {
	log      *slog.Logger
	manager  *pulseauth.Manager
	verifier CredentialVerifier
}

// NewHandler wires the session manager and credential verifier into an
// HTTP handler set. A nil logger falls back to slog.Default.
func NewHandler(mgr *pulseauth.Manager, verifier CredentialVerifier, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, manager: mgr, verifier: verifier}
}

// Register installs the auth routes on mux. Profile requires a valid
// access token; logout accepts either token of a pair and is idempotent.
func (h *Handler) Register(mux *http.ServeMux) {
	guard := middleware.Guard(h.manager, h.log)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("GET /auth/profile", guard(http.HandlerFunc(h.handleProfile)))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	principal, err := h.verifier.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		h.log.Info("login rejected", "username", req.Username, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if principal.Disabled() {
		writeError(w, http.StatusForbidden, "account disabled")
		return
	}

	principal.LoginIP = clientIP(r)
	principal.LoginTime = time.Now()

	res, err := h.manager.Issue(r.Context(), principal)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}

	h.log.Info("login succeeded", "username", principal.Username, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, loginResponse{
		tokenResponse: tokenResponse{
			AccessToken:   res.AccessToken,
			RefreshToken:  res.RefreshToken,
			ExpireSeconds: res.ExpireSeconds,
		},
		UserInfo: userInfoFrom(principal),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token required")
		return
	}

	res, err := h.manager.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:   res.AccessToken,
		RefreshToken:  res.RefreshToken,
		ExpireSeconds: res.ExpireSeconds,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tokenStr, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	res, err := h.manager.Logout(r.Context(), tokenStr)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutResponse{
		SessionID: res.SessionID,
		Existed:   res.Existed,
		Timestamp: time.Now().Unix(),
	})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := pulseauth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "please re-authenticate")
		return
	}
	writeJSON(w, http.StatusOK, userInfoFrom(principal))
}

// writeManagerError maps the manager's error taxonomy onto client
// responses. Store outages surface as 503 so clients retry instead of
// discarding their tokens; every other failure collapses into a generic
// 401 to keep the taxonomy internal.
func (h *Handler) writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pulseauth.ErrStoreUnavailable) {
		h.log.Error("session store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
		return
	}
	h.log.Info("request rejected", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusUnauthorized, "please re-authenticate")
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
