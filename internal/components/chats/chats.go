// Package chats is the chat repository: one-to-one chats gated by
// connections, listed and deleted with their messages and files.
package chats

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/vedesh-padal/tal-chat-app/internal/components/attachments"
	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

// Store is the persistence the repository needs.
type Store interface {
	store.UserStore
	store.InvitationStore
	store.ChatStore
	store.MessageStore
}

// Repository implements the chat operations.
type Repository struct {
	store   Store
	files   attachments.Storage
	emitter presence.Emitter
	proj    *Projector
	log     *slog.Logger
}

func NewRepository(s Store, files attachments.Storage, emitter presence.Emitter, log *slog.Logger) *Repository {
	if emitter == nil {
		emitter = presence.Discard
	}
	return &Repository{
		store:   s,
		files:   files,
		emitter: emitter,
		proj:    NewProjector(s),
		log:     logutil.NoopIfNil(log),
	}
}

// PairKey identifies the unordered pair {a, b}.
func PairKey(a, b string) string {
	ids := []string{a, b}
	slices.Sort(ids)
	return strings.Join(ids, ":")
}

// FindOrCreateOneOnOne returns the chat between initiator and counterpart,
// creating it when none exists. created reports whether this call made it.
func (r *Repository) FindOrCreateOneOnOne(ctx context.Context, initiatorID, counterpartID string) (ChatView, bool, error) {
	counterpart, err := r.user(ctx, counterpartID, "Receiver does not exist")
	if err != nil {
		return ChatView{}, false, err
	}
	if counterpartID == initiatorID {
		return ChatView{}, false, apperr.InvalidArgument("You cannot chat with yourself")
	}
	initiator, err := r.user(ctx, initiatorID, "User does not exist")
	if err != nil {
		return ChatView{}, false, err
	}

	ok, err := r.connected(ctx, initiatorID, counterpartID)
	if err != nil {
		return ChatView{}, false, err
	}
	if !ok {
		return ChatView{}, false, apperr.Forbidden("You can only chat with users who accepted your invitation")
	}

	key := PairKey(initiatorID, counterpartID)
	if existing, err := r.store.FindChatByPairKey(ctx, key); err == nil {
		v, err := r.proj.Chat(ctx, existing)
		return v, false, err
	} else if !errors.Is(err, store.ErrNotFound) {
		return ChatView{}, false, apperr.Internal(err, "failed to look up chat")
	}

	chat := &store.Chat{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Name:    initiator.Username + " & " + counterpart.Username,
		AdminID: initiatorID,
		PairKey: &key,
		Participants: []store.ChatParticipant{
			{UserID: initiatorID},
			{UserID: counterpartID},
		},
	}
	if err := r.store.CreateChat(ctx, chat); err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			return ChatView{}, false, apperr.Internal(err, "failed to create chat")
		}
		// Lost a concurrent create; the winner's chat is the one.
		winner, err := r.store.FindChatByPairKey(ctx, key)
		if err != nil {
			return ChatView{}, false, apperr.Internal(err, "failed to load chat")
		}
		v, err := r.proj.Chat(ctx, winner)
		return v, false, err
	}

	created, err := r.store.GetChat(ctx, chat.ID)
	if err != nil {
		return ChatView{}, false, apperr.Internal(err, "Internal server error")
	}
	view, err := r.proj.Chat(ctx, created)
	if err != nil {
		return ChatView{}, false, err
	}

	for _, id := range view.ParticipantIDs() {
		if id != initiatorID {
			r.emitter.Emit(id, presence.EventNewChat, view)
		}
	}
	r.log.Info("chat created", "chat_id", chat.ID, "initiator_id", initiatorID, "counterpart_id", counterpartID)
	return view, true, nil
}

// connected reports whether the pair may chat: a connection edge, or an
// accepted invitation in either direction.
func (r *Repository) connected(ctx context.Context, a, b string) (bool, error) {
	ok, err := r.store.IsConnected(ctx, a, b)
	if err != nil {
		return false, apperr.Internal(err, "failed to check connection")
	}
	if ok {
		return true, nil
	}
	for _, pair := range [][2]string{{b, a}, {a, b}} {
		inv, err := r.store.GetInvitation(ctx, pair[0], pair[1])
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, apperr.Internal(err, "failed to check invitation")
		}
		if inv.Status == store.InvitationAccepted {
			return true, nil
		}
	}
	return false, nil
}

// DeleteOneOnOne deletes a chat the requester takes part in, with all its
// messages and attachment files, and tells the other participant.
func (r *Repository) DeleteOneOnOne(ctx context.Context, requesterID, chatID string) (ChatView, error) {
	chat, err := r.participantChat(ctx, requesterID, chatID)
	if err != nil {
		return ChatView{}, err
	}
	view, err := r.proj.Chat(ctx, chat)
	if err != nil {
		return ChatView{}, err
	}

	removed, err := r.store.DeleteChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ChatView{}, apperr.NotFound("Chat does not exist")
	}
	if err != nil {
		return ChatView{}, apperr.Internal(err, "failed to delete chat")
	}
	r.removeFiles(ctx, removed)

	for _, id := range view.ParticipantIDs() {
		if id != requesterID {
			r.emitter.Emit(id, presence.EventLeaveChat, view)
		}
	}
	r.log.Info("chat deleted", "chat_id", chatID, "requester_id", requesterID, "files", len(removed))
	return view, nil
}

func (r *Repository) removeFiles(ctx context.Context, files []store.Attachment) {
	if r.files == nil {
		return
	}
	for _, a := range files {
		if err := r.files.Remove(ctx, a.LocalPath); err != nil {
			r.log.Warn("failed to remove attachment file", "path", a.LocalPath, "error", err)
		}
	}
}

// List returns the user's chats, most recently updated first.
func (r *Repository) List(ctx context.Context, userID string) ([]ChatView, error) {
	rows, err := r.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list chats")
	}
	return r.proj.Chats(ctx, rows)
}

// Get returns one chat of the requester.
func (r *Repository) Get(ctx context.Context, requesterID, chatID string) (ChatView, error) {
	chat, err := r.participantChat(ctx, requesterID, chatID)
	if err != nil {
		return ChatView{}, err
	}
	return r.proj.Chat(ctx, chat)
}

// IsParticipant reports whether userID takes part in chatID. A missing chat
// is simply false.
func (r *Repository) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	chat, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return chat.HasParticipant(userID), nil
}

func (r *Repository) participantChat(ctx context.Context, userID, chatID string) (*store.Chat, error) {
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

func (r *Repository) user(ctx context.Context, id, missing string) (*store.User, error) {
	u, err := r.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("%s", missing)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load user")
	}
	return u, nil
}
