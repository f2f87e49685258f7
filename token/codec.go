package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind identifies which half of a token pair a token belongs to. It is
// read from the dedicated token_type claim, never inferred from context.
type Kind string

const (
	// KindAccess marks the short-lived token presented on every request.
	KindAccess Kind = "access"
	// KindRefresh marks the long-lived token exchanged for new access tokens.
	KindRefresh Kind = "refresh"
	// KindUnknown is reported for tokens whose type claim is missing,
	// unreadable, or not one of the supported values.
	KindUnknown Kind = "unknown"
)

const typeClaim = "token_type"

var (
	// ErrMalformed is returned when a token is structurally invalid.
	ErrMalformed = errors.New("malformed token")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("bad token signature")
)

// registered claim names stripped from Extra on decode.
var registeredClaims = map[string]struct{}{
	"sub": {}, "iat": {}, "exp": {}, "nbf": {}, "iss": {}, "aud": {}, "jti": {},
	typeClaim: {},
}

// Claims is the decoded content of a token. ExpiresAt is populated even
// when the token is already expired; expiry is a separate predicate.
type Claims struct {
	Subject   string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Codec encodes and decodes signed claims tokens with a single symmetric
// key. The key is derived once at construction and never mutated, so a
// Codec is safe for unsynchronized concurrent use.
type Codec struct {
	key []byte
}

// NewCodec derives the HS256 signing key from secret. The secret is
// base64-decoded when it parses as standard base64; otherwise its raw
// UTF-8 bytes are used directly.
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret must not be empty")
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key = []byte(secret)
	}
	return &Codec{key: key}, nil
}

// Encode mints a signed token for subject with the given kind and extra
// claims. IssuedAt is now and ExpiresAt is now+ttl; a ttl of zero or less
// produces a token that is already expired, which callers use to test
// expiry boundaries.
func (c *Codec) Encode(subject string, kind Kind, extra map[string]any, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject must not be empty")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("unsupported token kind %q", kind)
	}

	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		if _, reserved := registeredClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(ttl))
	claims[typeClaim] = string(kind)

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode verifies the token's structure and signature and returns its
// claims. Expired tokens decode successfully; callers distinguish
// "expired" from "invalid" via IsExpired. Failures are ErrMalformed or
// ErrBadSignature.
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	out := &Claims{Kind: KindUnknown, Extra: map[string]any{}}
	if sub, err := mc.GetSubject(); err == nil {
		out.Subject = sub
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrMalformed
	}
	out.ExpiresAt = exp.Time

	if kind, _ := mc[typeClaim].(string); kind == string(KindAccess) || kind == string(KindRefresh) {
		out.Kind = Kind(kind)
	}
	for k, v := range mc {
		if _, reserved := registeredClaims[k]; reserved {
			continue
		}
		out.Extra[k] = v
	}
	return out, nil
}

// IsExpired reports whether the token's expiry has passed. Any decode
// failure counts as expired: a token we cannot read is never honored.
func (c *Codec) IsExpired(tokenStr string) bool {
	claims, err := c.Decode(tokenStr)
	if err != nil {
		return true
	}
	return !time.Now().Before(claims.ExpiresAt)
}

// TokenType reports the token's kind, or KindUnknown when the token does
// not decode or carries no recognized type claim.
func (c *Codec) TokenType(tokenStr string) Kind {
	claims, err := c.Decode(tokenStr)
	if err != nil {
		return KindUnknown
	}
	return claims.Kind
}
