// Package store defines the persistence contract for users, invitations,
// chats and messages, plus the driver registry used to select a backend.
package store

import (
	"context"
	"errors"
)

// Common errors returned by drivers.
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrClosed          = errors.New("store closed")
)

// Driver is the lifecycle part of a persistence backend.
type Driver interface {
	// Init opens the backend and migrates the schema.
	Init(ctx context.Context) error

	// Close releases resources.
	Close() error

	// Name returns the registered driver name.
	Name() string
}

// Store is a fully featured persistence backend.
type Store interface {
	Driver
	UserStore
	InvitationStore
	ChatStore
	MessageStore
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts u. Returns ErrAlreadyExists on a duplicate username or email.
	CreateUser(ctx context.Context, u *User) error
	// UpdateUser saves profile, credential and role fields of u.
	UpdateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUsers returns the users that exist among ids, in no particular order.
	GetUsers(ctx context.Context, ids []string) ([]User, error)
	// ListUsers returns users other than excludeID, optionally filtered by a
	// case-insensitive username/email substring, ordered by username.
	ListUsers(ctx context.Context, excludeID, query string, limit int) ([]User, error)
}

// InvitationStore persists invitations (owned by the receiver) and the
// symmetric connection edges created on acceptance.
//
// Every mutation bumps the receiver's version with a compare-and-set against
// receiverVersion and fails with ErrVersionConflict when it lost a race.
type InvitationStore interface {
	GetInvitation(ctx context.Context, receiverID, senderID string) (*Invitation, error)
	// ListInvitations returns the receiver's invitations, newest first.
	// An empty status lists all of them.
	ListInvitations(ctx context.Context, receiverID, status string) ([]Invitation, error)
	// CreateInvitation returns ErrAlreadyExists if the pair already has one.
	CreateInvitation(ctx context.Context, inv *Invitation, receiverVersion int64) error
	// ResolveInvitation sets the status and, when connect is set, writes both
	// connection edges in the same transaction.
	ResolveInvitation(ctx context.Context, receiverID, senderID, status string, receiverVersion int64, connect bool) error
	ListConnections(ctx context.Context, userID string) ([]string, error)
	IsConnected(ctx context.Context, userID, peerID string) (bool, error)
}

// ChatStore persists chats and their participants.
type ChatStore interface {
	// CreateChat inserts c with its participants. Returns ErrAlreadyExists when
	// a one-to-one chat with the same pair key exists.
	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	FindChatByPairKey(ctx context.Context, pairKey string) (*Chat, error)
	// ListChatsForUser returns the user's chats, most recently updated first.
	ListChatsForUser(ctx context.Context, userID string) ([]Chat, error)
	// DeleteChat removes the chat, its participants, messages, attachment rows
	// and read receipts, and returns the removed attachments so their files
	// can be cleaned up.
	DeleteChat(ctx context.Context, id string) ([]Attachment, error)
}

// MessageStore persists messages.
type MessageStore interface {
	// CreateMessage inserts m with its attachments and points the chat's
	// last message at it.
	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessages(ctx context.Context, ids []string) ([]Message, error)
	// ListMessages returns messages of a chat, newest first.
	ListMessages(ctx context.Context, chatID string, q MessageQuery) ([]Message, error)
	// DeleteMessage removes a message of the chat and re-points the chat's last
	// message to the newest remaining one (or none). Returns the removed message.
	DeleteMessage(ctx context.Context, chatID, messageID string) (*Message, error)
	// MarkRead records userID in the message's read set. Idempotent.
	MarkRead(ctx context.Context, messageID, userID string) error
}

// MessageQuery narrows ListMessages.
type MessageQuery struct {
	// Search is a case-insensitive content substring; empty matches all.
	Search string
	// Limit caps the result; 0 means no cap.
	Limit  int
	Offset int
}
