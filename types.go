package pulseauth

import (
	"context"
	"time"
)

// StatusDisabled is the account status value that marks a principal as
// not allowed to act, even with a valid session.
const StatusDisabled = "0000"

// Principal is the authenticated-identity snapshot cached per session.
// It is written on issue and refresh, read on every validation, and is
// gone once the session is revoked or its access entry lapses.
type Principal struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	Status      string    `json:"status,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	LoginIP     string    `json:"login_ip,omitempty"`
	LoginTime   time.Time `json:"login_time,omitzero"`
}

// Disabled reports whether the account behind this principal is disabled.
func (p *Principal) Disabled() bool {
	return p.Status == StatusDisabled
}

// TokenPair binds one access token and one refresh token to the same
// session identifier. Created once per login; refresh rotates only the
// access half, never the pair's session identifier.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IssueResult is returned by Issue and Refresh: the token pair plus the
// access-token lifetime in seconds for client-side refresh scheduling.
type IssueResult struct {
	TokenPair
	ExpireSeconds int
}

// LogoutResult reports the outcome of a logout. Existed is false when the
// session had already been terminated; that is not an error.
type LogoutResult struct {
	SessionID string
	Existed   bool
}

// PrincipalResolver supplies fresh principal state by username. The
// refresh flow uses it to pick up role and permission changes without
// forcing re-authentication. Implementations typically query the user
// database.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, username string) (*Principal, error)
}

// refreshRecord is the long-TTL store entry proving a refresh token is
// still honored. The originating address is a soft security signal only.
type refreshRecord struct {
	LoginIP  string `json:"login_ip"`
	Username string `json:"username"`
}
