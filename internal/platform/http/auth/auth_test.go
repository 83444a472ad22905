package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
)

// fakeVerifier accepts the tokens in its map.
type fakeVerifier struct {
	valid map[string]string
	err   error
}

func (f fakeVerifier) Verify(_ context.Context, raw string) (*identity.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.valid[raw]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &identity.Claims{Username: id, RegisteredClaims: jwt.RegisteredClaims{Subject: id}}, nil
}

// attrHandler collects attrs attached with With.
type attrHandler struct {
	attrs map[string]any
}

func (h *attrHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *attrHandler) Handle(context.Context, slog.Record) error { return nil }
func (h *attrHandler) WithGroup(string) slog.Handler             { return h }
func (h *attrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &attrHandler{attrs: map[string]any{}}
	for k, v := range h.attrs {
		next.attrs[k] = v
	}
	for _, a := range attrs {
		next.attrs[a.Key] = a.Value.Any()
	}
	return next
}

func gate(v TokenVerifier, seen *context.Context) http.Handler {
	mw := NewGate(GateConfig{
		RequireAuth: func(path string) bool { return !strings.HasPrefix(path, "/public") },
		Tokens:      v,
	})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestGate(t *testing.T) {
	v := fakeVerifier{valid: map[string]string{"good": "u1"}}

	tests := []struct {
		name   string
		path   string
		header string
		cookie string
		status int
		userID string
	}{
		{"public path needs nothing", "/public/x", "", "", 204, ""},
		{"missing token", "/chats", "", "", 401, ""},
		{"bearer token", "/chats", "Bearer good", "", 204, "u1"},
		{"cookie token", "/chats", "", "good", 204, "u1"},
		{"invalid token", "/chats", "Bearer bad", "", 401, ""},
		{"empty bearer falls back to cookie", "/chats", "Bearer  ", "good", 204, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen context.Context
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			gate(v, &seen).ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status != 204 {
				if !strings.Contains(w.Body.String(), `"success":false`) {
					t.Errorf("body = %s", w.Body.String())
				}
				return
			}
			if got := appctx.UserID(seen); got != tt.userID {
				t.Errorf("user id = %q, want %q", got, tt.userID)
			}
			if tt.userID != "" && ClaimsFromContext(seen) == nil {
				t.Error("claims missing from context")
			}
		})
	}
}

func TestGate_VerifierFailureIs500(t *testing.T) {
	var seen context.Context
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/chats", nil)
	req.Header.Set("Authorization", "Bearer good")
	gate(fakeVerifier{err: errors.New("cache down")}, &seen).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "cache down") {
		t.Error("internal error leaked to client")
	}
}

func TestGate_RevokedToken(t *testing.T) {
	var seen context.Context
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/chats", nil)
	req.Header.Set("Authorization", "Bearer good")
	gate(fakeVerifier{err: identity.ErrTokenRevoked}, &seen).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGate_EnrichesLoggerWithUserID(t *testing.T) {
	base := &attrHandler{attrs: map[string]any{}}
	var seen context.Context
	req := httptest.NewRequest("GET", "/chats", nil)
	req.Header.Set("Authorization", "Bearer good")
	req = req.WithContext(appctx.WithLogger(req.Context(), slog.New(base)))

	gate(fakeVerifier{valid: map[string]string{"good": "u7"}}, &seen).ServeHTTP(httptest.NewRecorder(), req)

	l, ok := appctx.LoggerFromContext(seen)
	if !ok {
		t.Fatal("no logger in context")
	}
	h, ok := l.Handler().(*attrHandler)
	if !ok {
		t.Fatalf("handler type %T", l.Handler())
	}
	if h.attrs["user_id"] != "u7" {
		t.Errorf("user_id = %v", h.attrs["user_id"])
	}
}
