// Package identity manages accounts: registration, login, access tokens,
// logout and user lookup. It is also the source of the public Profile view
// the chat components embed in their responses.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/validation"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// searchLimit caps SearchUsers results.
const searchLimit = 50

// Profile is the public view of a user. It never carries credentials.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

// ProfileOf projects a user row.
func ProfileOf(u *store.User) Profile {
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email, AvatarURL: u.AvatarURL}
}

// Account is the owner's view of their own user.
type Account struct {
	Profile
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func accountOf(u *store.User) Account {
	return Account{
		Profile:   ProfileOf(u),
		Role:      u.Role,
		CreatedAt: time.UnixMilli(u.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(u.UpdatedAt).UTC(),
	}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=3,max=32,lowercase"`
	Password string `json:"password" validate:"required,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=ADMIN USER"`
}

// LoginInput identifies the account by username or email.
type LoginInput struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
}

// Session is the result of a successful login.
type Session struct {
	User        Account   `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Service implements the account operations.
type Service struct {
	users  store.UserStore
	hasher *Hasher
	tokens *Tokens
	log    *slog.Logger
}

func NewService(users store.UserStore, hasher *Hasher, tokens *Tokens, log *slog.Logger) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens, log: logutil.NoopIfNil(log)}
}

// Tokens exposes the token issuer for the auth middleware.
func (s *Service) Tokens() *Tokens { return s.tokens }

func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	in.Password = strings.TrimSpace(in.Password)
	if err := validation.Struct(in); err != nil {
		return Account{}, err
	}
	if in.Role == "" {
		in.Role = RoleUser
	}

	taken, err := s.taken(ctx, in.Username, in.Email)
	if err != nil {
		return Account{}, err
	}
	if taken {
		return Account{}, apperr.Conflict("User with email or username already exists")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Account{}, apperr.Internal(err, "Something went wrong while registering the user")
	}
	u := &store.User{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Account{}, apperr.Conflict("User with email or username already exists")
		}
		return Account{}, apperr.Internal(err, "Something went wrong while registering the user")
	}
	s.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	return accountOf(u), nil
}

func (s *Service) taken(ctx context.Context, username, email string) (bool, error) {
	for _, lookup := range []func() (*store.User, error){
		func() (*store.User, error) { return s.users.GetUserByUsername(ctx, username) },
		func() (*store.User, error) { return s.users.GetUserByEmail(ctx, email) },
	} {
		_, err := lookup()
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, apperr.Internal(err, "failed to look up user")
		}
	}
	return false, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" && in.Email == "" {
		return Session{}, apperr.InvalidArgument("Username or email is required")
	}
	if err := validation.Struct(in); err != nil {
		return Session{}, err
	}

	var (
		u   *store.User
		err error
	)
	if in.Username != "" {
		u, err = s.users.GetUserByUsername(ctx, in.Username)
	} else {
		u, err = s.users.GetUserByEmail(ctx, in.Email)
	}
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return Session{}, apperr.Internal(err, "failed to look up user")
	}

	if err := s.hasher.Verify(u.PasswordHash, in.Password); err != nil {
		s.log.Debug("login rejected", "user_id", u.ID)
		return Session{}, apperr.Unauthenticated("Invalid user credentials")
	}

	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, apperr.Internal(err, "Something went wrong while generating the access token")
	}
	return Session{User: accountOf(u), AccessToken: token, ExpiresAt: exp}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return apperr.Internal(err, "failed to log out")
	}
	return nil
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, userID string) (Account, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Account{}, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return Account{}, apperr.Internal(err, "failed to load user")
	}
	return accountOf(u), nil
}

// AvailableUsers lists everyone except the requester.
func (s *Service) AvailableUsers(ctx context.Context, requesterID string) ([]Profile, error) {
	return s.list(ctx, requesterID, "", 0)
}

// SearchUsers matches username or email case-insensitively.
func (s *Service) SearchUsers(ctx context.Context, requesterID, query string) ([]Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidArgument("search query is required")
	}
	return s.list(ctx, requesterID, query, searchLimit)
}

func (s *Service) list(ctx context.Context, requesterID, query string, limit int) ([]Profile, error) {
	users, err := s.users.ListUsers(ctx, requesterID, query, limit)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list users")
	}
	return lo.Map(users, func(u store.User, _ int) Profile { return ProfileOf(&u) }), nil
}
