// Package gormstore implements store.Store on top of GORM. The sqlite and
// postgres drivers open a *gorm.DB and delegate to it.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

// Store holds the GORM handle. It has no name of its own; drivers embed it.
type Store struct {
	db *gorm.DB
}

// New wraps an opened database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(store.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps GORM errors to store sentinels. Drivers open GORM with
// TranslateError so unique violations arrive as gorm.ErrDuplicatedKey.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrAlreadyExists
	default:
		return err
	}
}

func nowMilli() int64 { return time.Now().UnixMilli() }

// likePattern builds a LIKE pattern for a lowercase substring match, escaping
// the wildcard characters of the input.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

// bumpVersion is the optimistic-lock step shared by invitation mutations.
func bumpVersion(tx *gorm.DB, userID string, expected int64) error {
	res := tx.Model(&store.User{}).
		Where("id = ? AND version = ?", userID, expected).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := tx.Model(&store.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func preloadMessage(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Reads", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") })
}

func preloadChat(db *gorm.DB) *gorm.DB {
	return db.Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
}

var doNothing = clause.OnConflict{DoNothing: true}
