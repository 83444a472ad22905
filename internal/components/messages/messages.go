// Package messages is the message repository: listing, sending with
// attachments, deleting, searching and read receipts within a chat.
package messages

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vedesh-padal/tal-chat-app/internal/components/attachments"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

const (
	DefaultMaxContentRunes = 5000
	DefaultMaxFiles        = 5
	DefaultSearchLimit     = 50
	MaxPageLimit           = 200
)

// Limits bound what a single message may carry.
type Limits struct {
	MaxContentRunes int
	MaxFiles        int
}

func (l *Limits) applyDefaults() {
	if l.MaxContentRunes <= 0 {
		l.MaxContentRunes = DefaultMaxContentRunes
	}
	if l.MaxFiles <= 0 {
		l.MaxFiles = DefaultMaxFiles
	}
}

// Upload is one attachment to store with a new message.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Page selects a window of a newest-first listing. A zero Limit means no cap.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) query(search string, defaultLimit int) store.MessageQuery {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return store.MessageQuery{
		Search: search,
		Limit:  min(limit, MaxPageLimit),
		Offset: max(p.Offset, 0),
	}
}

// Store is the persistence the repository needs.
type Store interface {
	chats.ProjectionStore
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	CreateMessage(ctx context.Context, m *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListMessages(ctx context.Context, chatID string, q store.MessageQuery) ([]store.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) (*store.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) error
}

// Repository implements the message operations.
type Repository struct {
	store   Store
	files   attachments.Storage
	emitter presence.Emitter
	proj    *chats.Projector
	limits  Limits
	log     *slog.Logger
}

func NewRepository(s Store, files attachments.Storage, emitter presence.Emitter, limits Limits, log *slog.Logger) *Repository {
	if emitter == nil {
		emitter = presence.Discard
	}
	limits.applyDefaults()
	return &Repository{
		store:   s,
		files:   files,
		emitter: emitter,
		proj:    chats.NewProjector(s),
		limits:  limits,
		log:     logutil.NoopIfNil(log),
	}
}

// List returns the chat's messages, newest first.
func (r *Repository) List(ctx context.Context, requesterID, chatID string, page Page) ([]chats.MessageView, error) {
	if _, err := r.chat(ctx, requesterID, chatID); err != nil {
		return nil, err
	}
	// Plain listing has no default cap; an explicit limit is still bounded.
	q := store.MessageQuery{Offset: max(page.Offset, 0)}
	if page.Limit > 0 {
		q.Limit = min(page.Limit, MaxPageLimit)
	}
	rows, err := r.store.ListMessages(ctx, chatID, q)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list messages")
	}
	return r.proj.Messages(ctx, rows)
}

// Send stores the uploads, creates the message, moves the chat's last
// message pointer to it and notifies the other participants.
func (r *Repository) Send(ctx context.Context, senderID, chatID, content string, uploads []Upload) (chats.MessageView, error) {
	if strings.TrimSpace(content) == "" && len(uploads) == 0 {
		return chats.MessageView{}, apperr.InvalidArgument("Message content or attachment is required")
	}
	if n := utf8.RuneCountInString(content); n > r.limits.MaxContentRunes {
		return chats.MessageView{}, apperr.InvalidArgument("Message content must be at most %d characters", r.limits.MaxContentRunes)
	}
	if len(uploads) > r.limits.MaxFiles {
		return chats.MessageView{}, apperr.InvalidArgument("At most %d attachments are allowed", r.limits.MaxFiles)
	}
	chat, err := r.chat(ctx, senderID, chatID)
	if err != nil {
		return chats.MessageView{}, err
	}

	stored, err := r.storeUploads(ctx, uploads)
	if err != nil {
		return chats.MessageView{}, err
	}

	msg := &store.Message{
		ID:       uuid.Must(uuid.NewV7()).String(),
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
		Attachments: lo.Map(stored, func(s attachments.Stored, _ int) store.Attachment {
			return store.Attachment{URL: s.URL, LocalPath: s.LocalPath, ContentType: s.ContentType, Size: s.Size}
		}),
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		r.removeStored(ctx, stored)
		if errors.Is(err, store.ErrNotFound) {
			return chats.MessageView{}, apperr.NotFound("Chat does not exist")
		}
		return chats.MessageView{}, apperr.Internal(err, "failed to save message")
	}

	saved, err := r.store.GetMessage(ctx, msg.ID)
	if err != nil {
		return chats.MessageView{}, apperr.Internal(err, "Internal server error")
	}
	view, err := r.proj.Message(ctx, saved)
	if err != nil {
		return chats.MessageView{}, err
	}

	r.notifyOthers(chat, senderID, presence.EventMessageReceived, view)
	r.log.Debug("message sent", "chat_id", chatID, "message_id", msg.ID, "attachments", len(stored))
	return view, nil
}

// storeUploads writes every upload; on failure the ones already written are
// removed again.
func (r *Repository) storeUploads(ctx context.Context, uploads []Upload) ([]attachments.Stored, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if r.files == nil {
		return nil, apperr.InvalidArgument("attachments are not enabled")
	}
	stored := make([]attachments.Stored, 0, len(uploads))
	for _, u := range uploads {
		s, err := r.files.Store(ctx, u.Reader, u.Name)
		if err != nil {
			r.removeStored(ctx, stored)
			return nil, err
		}
		stored = append(stored, s)
	}
	return stored, nil
}

func (r *Repository) removeStored(ctx context.Context, stored []attachments.Stored) {
	for _, s := range stored {
		r.removeFile(ctx, s.LocalPath)
	}
}

func (r *Repository) removeFile(ctx context.Context, path string) {
	if r.files == nil {
		return
	}
	if err := r.files.Remove(ctx, path); err != nil {
		r.log.Warn("failed to remove attachment file", "path", path, "error", err)
	}
}

// Delete removes a message sent by the requester.
func (r *Repository) Delete(ctx context.Context, requesterID, chatID, messageID string) (chats.MessageView, error) {
	chat, err := r.chat(ctx, requesterID, chatID)
	if apperr.IsKind(err, apperr.KindForbidden) {
		// Non-participants cannot tell the chat exists.
		return chats.MessageView{}, apperr.NotFound("Chat does not exist")
	}
	if err != nil {
		return chats.MessageView{}, err
	}
	msg, err := r.message(ctx, chatID, messageID)
	if err != nil {
		return chats.MessageView{}, err
	}
	if msg.SenderID != requesterID {
		return chats.MessageView{}, apperr.Forbidden("You are not authorised to delete the message, you are not the sender")
	}
	view, err := r.proj.Message(ctx, msg)
	if err != nil {
		return chats.MessageView{}, err
	}

	removed, err := r.store.DeleteMessage(ctx, chatID, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return chats.MessageView{}, apperr.NotFound("Message does not exist")
	}
	if err != nil {
		return chats.MessageView{}, apperr.Internal(err, "failed to delete message")
	}
	for _, a := range removed.Attachments {
		r.removeFile(ctx, a.LocalPath)
	}

	r.notifyOthers(chat, requesterID, presence.EventMessageDeleted, view)
	return view, nil
}

// Search matches message content case-insensitively, newest first.
func (r *Repository) Search(ctx context.Context, requesterID, chatID, query string, page Page) ([]chats.MessageView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidArgument("search query is required")
	}
	if _, err := r.chat(ctx, requesterID, chatID); err != nil {
		return nil, err
	}
	rows, err := r.store.ListMessages(ctx, chatID, page.query(query, DefaultSearchLimit))
	if err != nil {
		return nil, apperr.Internal(err, "failed to search messages")
	}
	return r.proj.Messages(ctx, rows)
}

// MarkRead adds the requester to the message's read set.
func (r *Repository) MarkRead(ctx context.Context, requesterID, chatID, messageID string) (chats.MessageView, error) {
	if _, err := r.chat(ctx, requesterID, chatID); err != nil {
		return chats.MessageView{}, err
	}
	if _, err := r.message(ctx, chatID, messageID); err != nil {
		return chats.MessageView{}, err
	}
	if err := r.store.MarkRead(ctx, messageID, requesterID); err != nil {
		return chats.MessageView{}, apperr.Internal(err, "failed to mark message as read")
	}
	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		return chats.MessageView{}, apperr.Internal(err, "failed to reload message")
	}
	return r.proj.Message(ctx, msg)
}

func (r *Repository) notifyOthers(chat *store.Chat, originID string, event presence.EventKind, payload any) {
	for _, id := range chat.ParticipantIDs() {
		if id != originID {
			r.emitter.Emit(id, event, payload)
		}
	}
}

func (r *Repository) chat(ctx context.Context, userID, chatID string) (*store.Chat, error) {
	chat, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Chat does not exist")
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load chat")
	}
	if !chat.HasParticipant(userID) {
		return nil, apperr.Forbidden("User is not part of this chat")
	}
	return chat, nil
}

func (r *Repository) message(ctx context.Context, chatID, messageID string) (*store.Message, error) {
	msg, err := r.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && msg.ChatID != chatID) {
		return nil, apperr.NotFound("Message does not exist")
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load message")
	}
	return msg, nil
}
