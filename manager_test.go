package pulseauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulsefit/pulseauth/token"
)

type stubResolver struct {
	mu        sync.Mutex
	principal *Principal
	err       error
	calls     int
}

func (r *stubResolver) ResolvePrincipal(_ context.Context, username string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	p := *r.principal
	p.Username = username
	return &p, nil
}

func testPrincipal() *Principal {
	return &Principal{
		UserID:    42,
		Username:  "alice",
		Email:     "alice@example.com",
		Status:    "active",
		Roles:     []string{"member"},
		LoginIP:   "203.0.113.10",
		LoginTime: time.Now(),
	}
}

func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, *stubResolver) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Token.Secret = "dGVzdC1zaWduaW5nLXNlY3JldC0zMi1ieXRlcy1sb25n"
	if mutate != nil {
		mutate(&cfg)
	}

	resolver := &stubResolver{principal: testPrincipal()}
	mgr, err := New().
		WithConfig(cfg).
		WithResolver(resolver).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr, resolver
}

func TestIssueAndValidate(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("issue returned empty tokens")
	}
	if res.AccessToken == res.RefreshToken {
		t.Fatal("access and refresh tokens identical")
	}
	if res.ExpireSeconds != 1800 {
		t.Fatalf("expire seconds = %d, want 1800", res.ExpireSeconds)
	}

	p, err := mgr.Validate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if p.Username != "alice" || p.UserID != 42 {
		t.Fatalf("validated principal = %+v", p)
	}

	p, err = mgr.Validate(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if p.Username != "alice" {
		t.Fatalf("refresh-validated principal = %+v", p)
	}

	if kind := mgr.TokenKind(res.AccessToken); kind != token.KindAccess {
		t.Fatalf("access kind = %q", kind)
	}
	if kind := mgr.TokenKind(res.RefreshToken); kind != token.KindRefresh {
		t.Fatalf("refresh kind = %q", kind)
	}

	// Both tokens carry the same session identifier.
	ac, err := mgr.codec.Decode(res.AccessToken)
	if err != nil {
		t.Fatalf("decode access: %v", err)
	}
	rc, err := mgr.codec.Decode(res.RefreshToken)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if ac.Subject != rc.Subject {
		t.Fatalf("pair split across sessions: %q vs %q", ac.Subject, rc.Subject)
	}
}

func TestIssueRequiresPrincipal(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := mgr.Issue(ctx, nil); err == nil {
		t.Fatal("nil principal accepted")
	}
	if _, err := mgr.Issue(ctx, &Principal{}); err == nil {
		t.Fatal("principal without username accepted")
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	out, err := mgr.Logout(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !out.Existed {
		t.Fatal("first logout reported nothing existed")
	}

	// Signatures are still valid, but the session is gone.
	if _, err := mgr.Validate(ctx, res.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("access after logout = %v, want ErrSessionRevoked", err)
	}
	if _, err := mgr.Validate(ctx, res.RefreshToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("refresh after logout = %v, want ErrSessionRevoked", err)
	}
	if _, err := mgr.Refresh(ctx, res.RefreshToken, ""); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("refresh exchange after logout = %v, want ErrSessionRevoked", err)
	}

	out, err = mgr.Logout(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if out.Existed {
		t.Fatal("second logout reported session existed")
	}
}

func TestRefreshRotatesOnlyAccessToken(t *testing.T) {
	mgr, resolver := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	time.Sleep(1100 * time.Millisecond) // force a distinct iat second

	rotated, err := mgr.Refresh(ctx, res.RefreshToken, "203.0.113.10")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken != res.RefreshToken {
		t.Fatal("refresh token was reissued")
	}
	if rotated.AccessToken == res.AccessToken {
		t.Fatal("access token was not rotated")
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", resolver.calls)
	}

	oldClaims, err := mgr.codec.Decode(res.AccessToken)
	if err != nil {
		t.Fatalf("decode old access: %v", err)
	}
	newClaims, err := mgr.codec.Decode(rotated.AccessToken)
	if err != nil {
		t.Fatalf("decode new access: %v", err)
	}
	if oldClaims.Subject != newClaims.Subject {
		t.Fatal("refresh changed the session identifier")
	}

	if _, err := mgr.Validate(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("validate rotated access: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := mgr.Refresh(ctx, res.AccessToken, ""); !errors.Is(err, ErrNotRefreshToken) {
		t.Fatalf("refresh with access token = %v, want ErrNotRefreshToken", err)
	}

	// The rejected call must not have disturbed the session.
	if _, err := mgr.Validate(ctx, res.AccessToken); err != nil {
		t.Fatalf("session disturbed by rejected refresh: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	stale, err := mgr.codec.Encode("sid-stale", token.KindRefresh, nil, -time.Minute)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := mgr.Refresh(ctx, stale, ""); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("refresh expired = %v, want ErrTokenExpired", err)
	}
}

func TestAccessExpiryThenRefresh(t *testing.T) {
	mgr, _ := newTestManager(t, func(cfg *Config) {
		cfg.Token.AccessTTL = 200 * time.Millisecond
		cfg.Token.RefreshTTL = time.Hour
	})
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	time.Sleep(400 * time.Millisecond)

	if _, err := mgr.Validate(ctx, res.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired access = %v, want ErrTokenExpired", err)
	}

	rotated, err := mgr.Refresh(ctx, res.RefreshToken, "203.0.113.10")
	if err != nil {
		t.Fatalf("refresh after access expiry: %v", err)
	}
	if _, err := mgr.Validate(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("validate rotated access: %v", err)
	}
}

func TestValidateRefreshFallsBackToMetadata(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := mgr.codec.Decode(res.RefreshToken)
	if err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	// Drop the access snapshot; only the refresh metadata remains.
	if _, err := mgr.store.Delete(ctx, accessKeyPrefix+claims.Subject); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}

	p, err := mgr.Validate(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh fallback: %v", err)
	}
	if p.Username != "alice" || p.LoginIP != "203.0.113.10" {
		t.Fatalf("minimal principal = %+v", p)
	}
	if p.UserID != 0 {
		t.Fatalf("fallback principal carries snapshot fields: %+v", p)
	}
}

func TestRefreshWhenPrincipalVanished(t *testing.T) {
	mgr, resolver := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	resolver.mu.Lock()
	resolver.err = errors.New("user deleted")
	resolver.mu.Unlock()

	if _, err := mgr.Refresh(ctx, res.RefreshToken, ""); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("refresh = %v, want ErrPrincipalNotFound", err)
	}
}

func TestConcurrentRefresh(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Refresh(ctx, res.RefreshToken, "203.0.113.10")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Fatalf("concurrent refresh failed: %v", err)
		}
	}

	if _, err := mgr.Validate(ctx, res.RefreshToken); err != nil {
		t.Fatalf("session broken after concurrent refresh: %v", err)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := mgr.Validate(ctx, "not-a-token"); !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("garbage validate = %v, want ErrMalformed", err)
	}
	if _, err := mgr.Logout(ctx, "not-a-token"); !errors.Is(err, token.ErrMalformed) {
		t.Fatalf("garbage logout = %v, want ErrMalformed", err)
	}
}

func TestRemainingTTL(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := mgr.Issue(ctx, testPrincipal())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ttl := mgr.RemainingTTL(res.AccessToken)
	if ttl <= 0 || ttl > 1800 {
		t.Fatalf("remaining ttl = %d, want (0, 1800]", ttl)
	}
	if got := mgr.RemainingTTL("garbage"); got != 0 {
		t.Fatalf("garbage remaining ttl = %d, want 0", got)
	}

	stale, err := mgr.codec.Encode("sid-stale", token.KindAccess, nil, -time.Minute)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := mgr.RemainingTTL(stale); got != 0 {
		t.Fatalf("expired remaining ttl = %d, want 0", got)
	}
}

func TestRefreshPreservesExtraClaims(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	sid := mgr.ids.Next()
	refresh, err := mgr.codec.Encode(sid, token.KindRefresh, map[string]any{"device": "ios"}, time.Hour)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := mgr.store.Put(ctx, accessKeyPrefix+sid, *testPrincipal(), time.Minute); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	rec := refreshRecord{LoginIP: "203.0.113.10", Username: "alice"}
	if err := mgr.store.Put(ctx, refreshKeyPrefix+sid, rec, time.Hour); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	rotated, err := mgr.Refresh(ctx, refresh, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := mgr.codec.Decode(rotated.AccessToken)
	if err != nil {
		t.Fatalf("decode rotated access: %v", err)
	}
	if claims.Extra["device"] != "ios" {
		t.Fatalf("extra claims dropped: %+v", claims.Extra)
	}
}
