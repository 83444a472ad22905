package gormstore

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

func (s *Store) CreateMessage(ctx context.Context, m *store.Message) error {
	m.ContentFolded = strings.ToLower(m.Content)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(m).Error; err != nil {
			return translate(err)
		}
		if len(m.Attachments) > 0 {
			for i := range m.Attachments {
				m.Attachments[i].MessageID = m.ID
				m.Attachments[i].Position = i
			}
			if err := tx.Create(&m.Attachments).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&store.Chat{}).Where("id = ?", m.ChatID).Updates(map[string]any{
			"last_message_id": m.ID,
			"updated_at":      nowMilli(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	var m store.Message
	if err := preloadMessage(s.db.WithContext(ctx)).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]store.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []store.Message
	if err := preloadMessage(s.db.WithContext(ctx)).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string, q store.MessageQuery) ([]store.Message, error) {
	db := preloadMessage(s.db.WithContext(ctx)).Where("chat_id = ?", chatID)
	if q.Search != "" {
		db = db.Where(`content_folded LIKE ? ESCAPE '\'`, likePattern(q.Search))
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	var out []store.Message
	if err := db.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteMessage(ctx context.Context, chatID, messageID string) (*store.Message, error) {
	var m store.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := preloadMessage(tx).First(&m, "id = ? AND chat_id = ?", messageID, chatID).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&store.MessageRead{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&store.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&store.Message{}, "id = ?", messageID).Error; err != nil {
			return err
		}

		var c store.Chat
		if err := tx.First(&c, "id = ?", chatID).Error; err != nil {
			return translate(err)
		}
		if c.LastMessageID == nil || *c.LastMessageID != messageID {
			return nil
		}

		var next []store.Message
		if err := tx.Where("chat_id = ?", chatID).Order("created_at DESC, id DESC").Limit(1).Find(&next).Error; err != nil {
			return err
		}
		var last any
		if len(next) > 0 {
			last = next[0].ID
		}
		return tx.Model(&store.Chat{}).Where("id = ?", chatID).Updates(map[string]any{
			"last_message_id": last,
			"updated_at":      nowMilli(),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) MarkRead(ctx context.Context, messageID, userID string) error {
	r := store.MessageRead{MessageID: messageID, UserID: userID}
	return s.db.WithContext(ctx).Clauses(doNothing).Create(&r).Error
}
