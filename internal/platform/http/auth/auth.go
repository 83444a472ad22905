// Package auth provides the access token gate for the REST API.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

// CookieName is the cookie carrying the access token for browser clients.
const CookieName = "accessToken"

const (
	msgUnauthorized = "Unauthorized request"
	msgInvalidToken = "Invalid access token"
)

type claimsKey struct{}

// TokenVerifier validates an access token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*identity.Claims, error)
}

// GateConfig configures the auth gate.
type GateConfig struct {
	// RequireAuth reports whether a path needs a token. Built by the server
	// from the mounted services' unprotected paths.
	RequireAuth func(path string) bool

	Log *slog.Logger

	// Tokens verifies access tokens. A nil verifier rejects every protected request.
	Tokens TokenVerifier
}

// NewGate returns middleware that rejects protected requests without a valid
// access token. Accepted requests get the claims, the user id and a logger
// carrying user_id in their context.
func NewGate(cfg GateConfig) func(http.Handler) http.Handler {
	log := logutil.NoopIfNil(cfg.Log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			raw := ExtractToken(r)
			if raw == "" || cfg.Tokens == nil {
				api.WriteError(w, r, apperr.Unauthenticated(msgUnauthorized))
				return
			}

			claims, err := cfg.Tokens.Verify(r.Context(), raw)
			switch {
			case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrTokenRevoked):
				api.WriteError(w, r, apperr.Unauthenticated(msgInvalidToken))
				return
			case err != nil:
				log.Error("token verification failed", "error", err)
				api.WriteError(w, r, apperr.Internal(err, "failed to verify token"))
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("user_id", claims.UserID()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractToken returns the bearer token, falling back to the access token cookie.
func ExtractToken(r *http.Request) string {
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// WithClaims stores verified claims and their subject in ctx.
func WithClaims(ctx context.Context, claims *identity.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return appctx.WithUserID(ctx, claims.UserID())
}

// ClaimsFromContext returns the claims of the authenticated request, or nil.
func ClaimsFromContext(ctx context.Context) *identity.Claims {
	c, _ := ctx.Value(claimsKey{}).(*identity.Claims)
	return c
}
