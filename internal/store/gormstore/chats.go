package gormstore

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

func (s *Store) CreateChat(ctx context.Context, c *store.Chat) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
			return translate(err)
		}
		if len(c.Participants) == 0 {
			return nil
		}
		for i := range c.Participants {
			c.Participants[i].ChatID = c.ID
			c.Participants[i].Position = i
		}
		return translate(tx.Create(&c.Participants).Error)
	})
}

func (s *Store) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	var c store.Chat
	if err := preloadChat(s.db.WithContext(ctx)).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) FindChatByPairKey(ctx context.Context, pairKey string) (*store.Chat, error) {
	var c store.Chat
	err := preloadChat(s.db.WithContext(ctx)).
		First(&c, "pair_key = ? AND is_group_chat = ?", pairKey, false).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListChatsForUser(ctx context.Context, userID string) ([]store.Chat, error) {
	sub := s.db.Model(&store.ChatParticipant{}).Select("chat_id").Where("user_id = ?", userID)

	var chats []store.Chat
	err := preloadChat(s.db.WithContext(ctx)).
		Where("id IN (?)", sub).
		Order("updated_at DESC, id DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *Store) DeleteChat(ctx context.Context, id string) ([]store.Attachment, error) {
	var removed []store.Attachment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c store.Chat
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		var messageIDs []string
		if err := tx.Model(&store.Message{}).Where("chat_id = ?", id).Pluck("id", &messageIDs).Error; err != nil {
			return err
		}
		if len(messageIDs) > 0 {
			if err := tx.Where("message_id IN ?", messageIDs).Order("message_id, position").Find(&removed).Error; err != nil {
				return err
			}
			if err := tx.Where("message_id IN ?", messageIDs).Delete(&store.MessageRead{}).Error; err != nil {
				return err
			}
			if err := tx.Where("message_id IN ?", messageIDs).Delete(&store.Attachment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("chat_id = ?", id).Delete(&store.Message{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("chat_id = ?", id).Delete(&store.ChatParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&store.Chat{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
