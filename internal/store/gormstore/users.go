package gormstore

import (
	"context"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Store) UpdateUser(ctx context.Context, u *store.User) error {
	res := s.db.WithContext(ctx).Model(&store.User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"role":          u.Role,
		"avatar_url":    u.AvatarURL,
		"updated_at":    nowMilli(),
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	var u store.User
	if err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	if err := s.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) ([]store.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []store.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) ListUsers(ctx context.Context, excludeID, query string, limit int) ([]store.User, error) {
	db := s.db.WithContext(ctx).Model(&store.User{})
	if excludeID != "" {
		db = db.Where("id <> ?", excludeID)
	}
	if query != "" {
		// Usernames and emails are written lowercased, so LOWER only has to
		// cover ASCII rows created outside the identity service.
		p := likePattern(query)
		db = db.Where(`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, p, p)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	var users []store.User
	if err := db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
