// Package users implements the account endpoints: registration, login,
// logout, the caller's profile and user discovery.
package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/http/auth"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

// Accounts is the identity surface the handler uses.
type Accounts interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.Account, error)
	Login(ctx context.Context, in identity.LoginInput) (identity.Session, error)
	Logout(ctx context.Context, claims *identity.Claims) error
	Me(ctx context.Context, userID string) (identity.Account, error)
	AvailableUsers(ctx context.Context, requesterID string) ([]identity.Profile, error)
	SearchUsers(ctx context.Context, requesterID, query string) ([]identity.Profile, error)
}

// Handler serves the account endpoints.
type Handler struct {
	accounts     Accounts
	secureCookie bool
	log          *slog.Logger
}

// NewHandler creates the handler. secureCookie marks the access token cookie Secure.
func NewHandler(accounts Accounts, secureCookie bool, log *slog.Logger) *Handler {
	return &Handler{accounts: accounts, secureCookie: secureCookie, log: logutil.NoopIfNil(log)}
}

// HandleRegister handles POST /users/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in identity.RegisterInput
	if err := api.ReadJSON(r, &in); err != nil {
		api.WriteError(w, r, err)
		return
	}
	account, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusCreated, map[string]any{"user": account}, "Users registered successfully.")
}

// HandleLogin handles POST /users/login. The token is returned in the body
// and set as an HttpOnly cookie.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in identity.LoginInput
	if err := api.ReadJSON(r, &in); err != nil {
		api.WriteError(w, r, err)
		return
	}
	session, err := h.accounts.Login(r.Context(), in)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	http.SetCookie(w, h.cookie(session.AccessToken, session.ExpiresAt))
	appctx.GetLogger(r.Context()).Info("user logged in", "user_id", session.User.ID)
	api.WriteSuccess(w, http.StatusOK, session, "User logged in successfully")
}

// HandleLogout handles POST /users/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		api.WriteError(w, r, apperr.Unauthenticated("Unauthorized request"))
		return
	}
	if err := h.accounts.Logout(r.Context(), claims); err != nil {
		api.WriteError(w, r, err)
		return
	}
	http.SetCookie(w, h.cookie("", time.Unix(0, 0)))
	api.WriteSuccess(w, http.StatusOK, map[string]any{}, "User logged out")
}

// HandleMe handles GET /users/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Me(r.Context(), appctx.UserID(r.Context()))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, account, "Current user fetched successfully")
}

// HandleAvailable handles GET /chats/users.
func (h *Handler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.AvailableUsers(r.Context(), appctx.UserID(r.Context()))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, users, "Users fetched successfully")
}

// HandleSearch handles GET /chats/search?query=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.SearchUsers(r.Context(), appctx.UserID(r.Context()), r.URL.Query().Get("query"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, users, "Users fetched successfully")
}

func (h *Handler) cookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}
