// Package identity resolves bearer credentials to a user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/okian/codequest/internal/domain/model"
)

const defaultTTL = 7 * 24 * time.Hour

// Claims carried by a Code Quest token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator verifies and mints HS256 tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option applies a configuration option to the Authenticator.
type Option func(*Authenticator)

// WithIssuer sets the expected and minted iss claim.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		a.issuer = issuer
	}
}

// WithTTL sets the lifetime of minted tokens.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator returns an Authenticator keyed by secret.
func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret: []byte(secret),
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Verify resolves a raw token to a principal. Every failure wraps
// model.ErrNotAuthenticated.
func (a *Authenticator) Verify(_ context.Context, token string) (model.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Principal{}, fmt.Errorf("%w: missing token", model.ErrNotAuthenticated)
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.Principal{}, fmt.Errorf("%w: %w", model.ErrNotAuthenticated, errors.Join(err, errInvalidToken))
	}

	now := a.now()
	switch {
	case claims.ExpiresAt == nil:
		return model.Principal{}, fmt.Errorf("%w: exp missing", model.ErrNotAuthenticated)
	case !claims.VerifyExpiresAt(now, true):
		return model.Principal{}, fmt.Errorf("%w: token expired", model.ErrNotAuthenticated)
	case !claims.VerifyNotBefore(now, false):
		return model.Principal{}, fmt.Errorf("%w: token not yet valid", model.ErrNotAuthenticated)
	case a.issuer != "" && !claims.VerifyIssuer(a.issuer, true):
		return model.Principal{}, fmt.Errorf("%w: unexpected issuer", model.ErrNotAuthenticated)
	case claims.Subject == "":
		return model.Principal{}, fmt.Errorf("%w: subject missing", model.ErrNotAuthenticated)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return model.Principal{UserID: claims.Subject, Username: username}, nil
}

// Issue mints a token for userID. Used by the token CLI and tests.
func (a *Authenticator) Issue(userID, username string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", model.ErrInvalidInput)
	}
	now := a.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

var errInvalidToken = errors.New("invalid token")

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok && p.Authenticated()
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
