package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

// AdminSeed describes the bootstrap admin account.
type AdminSeed struct {
	Username string
	Email    string
	Password string
}

// EnsureAdmin creates the bootstrap admin when no user with that username
// exists. An empty password is replaced by a generated one that is logged
// once. An existing account is left untouched unless rotate is set, in which
// case its password is replaced.
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed, rotate bool) error {
	if seed.Username == "" {
		seed.Username = "admin"
	}
	seed.Username = strings.ToLower(seed.Username)
	if seed.Email == "" {
		seed.Email = seed.Username + "@localhost"
	}

	existing, err := s.users.GetUserByUsername(ctx, seed.Username)
	switch {
	case err == nil:
		if !rotate || seed.Password == "" {
			return nil
		}
		hash, err := s.hasher.Hash(seed.Password)
		if err != nil {
			return err
		}
		existing.PasswordHash = hash
		existing.Role = RoleAdmin
		if err := s.users.UpdateUser(ctx, existing); err != nil {
			return fmt.Errorf("failed to rotate admin password: %w", err)
		}
		s.log.Info("admin password rotated", "username", existing.Username)
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	generated := false
	if seed.Password == "" {
		seed.Password = randomPassword()
		generated = true
	}
	hash, err := s.hasher.Hash(seed.Password)
	if err != nil {
		return err
	}
	admin := &store.User{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Username:     seed.Username,
		Email:        strings.ToLower(seed.Email),
		PasswordHash: hash,
		Role:         RoleAdmin,
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	if generated {
		s.log.Info("admin created with auto-generated password",
			"username", admin.Username, "password", seed.Password, "user_id", admin.ID)
	} else {
		s.log.Info("admin created", "username", admin.Username, "user_id", admin.ID)
	}
	return nil
}

func randomPassword() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "changeme-" + uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
