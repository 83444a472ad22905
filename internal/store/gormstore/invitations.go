package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

func (s *Store) GetInvitation(ctx context.Context, receiverID, senderID string) (*store.Invitation, error) {
	var inv store.Invitation
	err := s.db.WithContext(ctx).
		First(&inv, "receiver_id = ? AND sender_id = ?", receiverID, senderID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

func (s *Store) ListInvitations(ctx context.Context, receiverID, status string) ([]store.Invitation, error) {
	db := s.db.WithContext(ctx).Where("receiver_id = ?", receiverID)
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var out []store.Invitation
	if err := db.Order("created_at DESC, sender_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateInvitation(ctx context.Context, inv *store.Invitation, receiverVersion int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&store.Invitation{}).
			Where("receiver_id = ? AND sender_id = ?", inv.ReceiverID, inv.SenderID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return store.ErrAlreadyExists
		}
		if err := bumpVersion(tx, inv.ReceiverID, receiverVersion); err != nil {
			return err
		}
		return translate(tx.Create(inv).Error)
	})
}

func (s *Store) ResolveInvitation(ctx context.Context, receiverID, senderID, status string, receiverVersion int64, connect bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpVersion(tx, receiverID, receiverVersion); err != nil {
			return err
		}
		res := tx.Model(&store.Invitation{}).
			Where("receiver_id = ? AND sender_id = ?", receiverID, senderID).
			Updates(map[string]any{"status": status, "updated_at": nowMilli()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		if !connect {
			return nil
		}

		// The sender's aggregate changes too; bump it without a guard so
		// concurrent readers of its version see the change.
		res = tx.Model(&store.User{}).Where("id = ?", senderID).
			UpdateColumn("version", gorm.Expr("version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}

		edges := []store.Connection{
			{UserID: receiverID, PeerID: senderID},
			{UserID: senderID, PeerID: receiverID},
		}
		return tx.Clauses(doNothing).Create(&edges).Error
	})
}

func (s *Store) ListConnections(ctx context.Context, userID string) ([]string, error) {
	var peers []string
	err := s.db.WithContext(ctx).Model(&store.Connection{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("peer_id", &peers).Error
	if err != nil {
		return nil, err
	}
	return peers, nil
}

func (s *Store) IsConnected(ctx context.Context, userID, peerID string) (bool, error) {
	var c store.Connection
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND peer_id = ?", userID, peerID).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
