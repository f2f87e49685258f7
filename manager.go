package pulseauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsefit/pulseauth/cache"
	"github.com/pulsefit/pulseauth/token"
)

// Store key prefixes inside the configured cache namespace. The access
// entry holds the principal snapshot for the access-token lifetime; the
// app entry holds refresh metadata for the refresh-token lifetime.
const (
	accessKeyPrefix  = "session:"
	refreshKeyPrefix = "app:session:"
)

// Manager is the only component that understands what a session
// identifier means. It orchestrates the token codec and the session store
// to issue, validate, refresh, and revoke token pairs. Every operation
// runs synchronously in the caller's goroutine; the store call is the
// only potentially blocking step.
type Manager struct {
	cfg      Config
	codec    *token.Codec
	store    cache.Store
	resolver PrincipalResolver
	ids      sessionIDGenerator
	log      *slog.Logger
}

// Issue mints a token pair for an authenticated principal: a fresh
// session identifier, an access and a refresh token carrying it, and the
// two store entries that keep the pair honorable. The principal snapshot
// lives for the access TTL, the refresh metadata for the refresh TTL.
func (m *Manager) Issue(ctx context.Context, p *Principal) (*IssueResult, error) {
	if p == nil || p.Username == "" {
		return nil, fmt.Errorf("issue: principal with username required")
	}

	sid := m.ids.Next()

	access, err := m.codec.Encode(sid, token.KindAccess, nil, m.cfg.Token.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue: encode access token: %w", err)
	}
	refresh, err := m.codec.Encode(sid, token.KindRefresh, nil, m.cfg.Token.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue: encode refresh token: %w", err)
	}

	if err := m.store.Put(ctx, accessKeyPrefix+sid, *p, m.cfg.Token.AccessTTL); err != nil {
		return nil, m.storeErr("issue", err)
	}
	rec := refreshRecord{LoginIP: p.LoginIP, Username: p.Username}
	if err := m.store.Put(ctx, refreshKeyPrefix+sid, rec, m.cfg.Token.RefreshTTL); err != nil {
		return nil, m.storeErr("issue", err)
	}

	m.log.Debug("token pair issued", "session_id", sid, "username", p.Username)
	return &IssueResult{
		TokenPair:     TokenPair{AccessToken: access, RefreshToken: refresh},
		ExpireSeconds: m.ExpireSeconds(),
	}, nil
}

// Validate decides whether a presented token is still honored and returns
// the principal it stands for. An access token requires its principal
// snapshot to exist; a refresh token falls back to its metadata entry and
// yields a minimal principal when only that entry survived. Any failure
// is reduced to one of the package's sentinel errors.
func (m *Manager) Validate(ctx context.Context, tokenStr string) (*Principal, error) {
	claims, err := m.codec.Decode(tokenStr)
	if err != nil {
		return nil, err
	}
	if !time.Now().Before(claims.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	sid := claims.Subject
	switch claims.Kind {
	case token.KindAccess:
		var p Principal
		found, err := m.store.Get(ctx, accessKeyPrefix+sid, &p)
		if err != nil {
			return nil, m.storeErr("validate", err)
		}
		if !found {
			return nil, ErrSessionRevoked
		}
		return &p, nil

	case token.KindRefresh:
		// Prefer the full snapshot when it is still live.
		var p Principal
		found, err := m.store.Get(ctx, accessKeyPrefix+sid, &p)
		if err != nil {
			return nil, m.storeErr("validate", err)
		}
		if found {
			return &p, nil
		}
		var rec refreshRecord
		found, err = m.store.Get(ctx, refreshKeyPrefix+sid, &rec)
		if err != nil {
			return nil, m.storeErr("validate", err)
		}
		if !found {
			return nil, ErrSessionRevoked
		}
		return &Principal{Username: rec.Username, LoginIP: rec.LoginIP}, nil

	default:
		return nil, token.ErrMalformed
	}
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is never reissued: the caller keeps presenting the
// same one until it expires or the session is revoked. The principal is
// re-resolved so role and permission changes take effect, the snapshot is
// rewritten under the same session identifier, and the refresh metadata
// TTL is extended.
func (m *Manager) Refresh(ctx context.Context, refreshToken, callerAddr string) (*IssueResult, error) {
	if kind := m.codec.TokenType(refreshToken); kind != token.KindRefresh {
		return nil, ErrNotRefreshToken
	}
	if m.codec.IsExpired(refreshToken) {
		return nil, ErrTokenExpired
	}
	claims, err := m.codec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	sid := claims.Subject

	var rec refreshRecord
	found, err := m.store.Get(ctx, refreshKeyPrefix+sid, &rec)
	if err != nil {
		return nil, m.storeErr("refresh", err)
	}
	if !found {
		return nil, ErrSessionRevoked
	}

	// Soft signal only: a moved client (mobile roaming, NAT) is normal,
	// so a mismatch is logged for investigation but does not block.
	if callerAddr != "" && callerAddr != rec.LoginIP {
		m.log.Warn("refresh address mismatch",
			"session_id", sid, "login_ip", rec.LoginIP, "caller_ip", callerAddr)
	}

	p, err := m.resolver.ResolvePrincipal(ctx, rec.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrincipalNotFound, err)
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}

	access, err := m.codec.Encode(sid, token.KindAccess, claims.Extra, m.cfg.Token.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh: encode access token: %w", err)
	}

	if err := m.store.Put(ctx, accessKeyPrefix+sid, *p, m.cfg.Token.AccessTTL); err != nil {
		return nil, m.storeErr("refresh", err)
	}
	renewed, err := m.store.Renew(ctx, refreshKeyPrefix+sid, m.cfg.Token.RefreshTTL)
	if err != nil {
		return nil, m.storeErr("refresh", err)
	}
	if !renewed {
		// Raced with a logout between Get and Renew; the session stays
		// terminated, only this access window remains.
		m.log.Warn("refresh metadata vanished during refresh", "session_id", sid)
	}

	m.log.Debug("access token refreshed", "session_id", sid, "username", rec.Username)
	return &IssueResult{
		TokenPair:     TokenPair{AccessToken: access, RefreshToken: refreshToken},
		ExpireSeconds: m.ExpireSeconds(),
	}, nil
}

// Logout terminates the session behind either token of a pair by deleting
// both store entries. It is idempotent: a second logout finds nothing and
// reports Existed=false without error. No operation resurrects a
// terminated session identifier.
func (m *Manager) Logout(ctx context.Context, tokenStr string) (*LogoutResult, error) {
	claims, err := m.codec.Decode(tokenStr)
	if err != nil {
		return nil, err
	}
	sid := claims.Subject

	accessExisted, err := m.store.Delete(ctx, accessKeyPrefix+sid)
	if err != nil {
		return nil, m.storeErr("logout", err)
	}
	refreshExisted, err := m.store.Delete(ctx, refreshKeyPrefix+sid)
	if err != nil {
		return nil, m.storeErr("logout", err)
	}

	existed := accessExisted || refreshExisted
	if existed {
		m.log.Info("session terminated", "session_id", sid)
	}
	return &LogoutResult{SessionID: sid, Existed: existed}, nil
}

// RemainingTTL reports the seconds until the token expires, or 0 when the
// token is invalid or already expired.
func (m *Manager) RemainingTTL(tokenStr string) int64 {
	claims, err := m.codec.Decode(tokenStr)
	if err != nil {
		return 0
	}
	remaining := time.Until(claims.ExpiresAt)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

// TokenKind reports which half of a pair a token is, without consulting
// the store.
func (m *Manager) TokenKind(tokenStr string) token.Kind {
	return m.codec.TokenType(tokenStr)
}

// ExpireSeconds is the configured access-token lifetime in seconds, as
// advertised to clients for refresh scheduling.
func (m *Manager) ExpireSeconds() int {
	return int(m.cfg.Token.AccessTTL / time.Second)
}

// Close releases the session store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) storeErr(op string, err error) error {
	m.log.Error("session store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
