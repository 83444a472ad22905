package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/cache"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims is the access token payload.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID is the subject.
func (c *Claims) UserID() string { return c.Subject }

// TokenConfig configures HS256 access tokens.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Tokens issues, verifies and revokes access tokens. Revoked token ids are
// kept in the cache until the token would have expired anyway.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoked cache.Cache
	now     func() time.Time
}

func NewTokens(cfg TokenConfig, revoked cache.Cache) (*Tokens, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Tokens{
		secret:  []byte(cfg.Secret),
		ttl:     cfg.TTL,
		issuer:  cfg.Issuer,
		revoked: revoked,
		now:     time.Now,
	}, nil
}

// Issue signs a token for u.
func (t *Tokens) Issue(u *store.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := &Claims{
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse checks signature, expiry and issuer. It does not consult revocation.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify parses raw and rejects revoked tokens.
func (t *Tokens) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := t.Parse(raw)
	if err != nil {
		return nil, err
	}
	if t.revoked != nil && claims.ID != "" {
		revoked, err := t.revoked.Exists(ctx, revocationKey(claims.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke blocks the token's id for the rest of its lifetime.
func (t *Tokens) Revoke(ctx context.Context, claims *Claims) error {
	if t.revoked == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(t.now())
	if ttl <= 0 {
		return nil
	}
	return t.revoked.Set(ctx, revocationKey(claims.ID), []byte("1"), ttl)
}

func revocationKey(jti string) string { return "revoked:" + jti }

// Authenticate verifies raw and returns its subject. It lets the socket
// handler authenticate without knowing about claims.
func (t *Tokens) Authenticate(ctx context.Context, raw string) (string, error) {
	claims, err := t.Verify(ctx, raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
