package chats

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

// ChatView is a chat with participants and last message resolved.
type ChatView struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	IsGroupChat  bool               `json:"isGroupChat"`
	Admin        string             `json:"admin"`
	Participants []identity.Profile `json:"participants"`
	LastMessage  *MessageView       `json:"lastMessage"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// ParticipantIDs returns the ids of the resolved participants.
func (v ChatView) ParticipantIDs() []string {
	return lo.Map(v.Participants, func(p identity.Profile, _ int) string { return p.ID })
}

// AttachmentView is the client view of a stored file.
type AttachmentView struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// MessageView is a message with its sender resolved.
type MessageView struct {
	ID          string           `json:"id"`
	Sender      identity.Profile `json:"sender"`
	Content     string           `json:"content"`
	Attachments []AttachmentView `json:"attachments"`
	Chat        string           `json:"chat"`
	ReadBy      []string         `json:"readBy"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// ProjectionStore is what the projector reads.
type ProjectionStore interface {
	GetUsers(ctx context.Context, ids []string) ([]store.User, error)
	GetMessages(ctx context.Context, ids []string) ([]store.Message, error)
}

// Projector builds views, resolving users and last messages in bulk.
type Projector struct {
	store ProjectionStore
}

func NewProjector(s ProjectionStore) *Projector {
	return &Projector{store: s}
}

// Chats projects rows, preserving their order.
func (p *Projector) Chats(ctx context.Context, chats []store.Chat) ([]ChatView, error) {
	lastIDs := lo.FilterMap(chats, func(c store.Chat, _ int) (string, bool) {
		if c.LastMessageID == nil {
			return "", false
		}
		return *c.LastMessageID, true
	})
	var last []store.Message
	if len(lastIDs) > 0 {
		var err error
		if last, err = p.store.GetMessages(ctx, lastIDs); err != nil {
			return nil, apperr.Internal(err, "failed to load last messages")
		}
	}

	userIDs := lo.FlatMap(chats, func(c store.Chat, _ int) []string { return c.ParticipantIDs() })
	userIDs = append(userIDs, lo.Map(last, func(m store.Message, _ int) string { return m.SenderID })...)
	profiles, err := p.profiles(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	lastByID := lo.KeyBy(last, func(m store.Message) string { return m.ID })

	views := make([]ChatView, 0, len(chats))
	for i := range chats {
		c := &chats[i]
		v := ChatView{
			ID:          c.ID,
			Name:        c.Name,
			IsGroupChat: c.IsGroupChat,
			Admin:       c.AdminID,
			Participants: lo.Map(c.ParticipantIDs(), func(id string, _ int) identity.Profile {
				return profileOr(profiles, id)
			}),
			CreatedAt: time.UnixMilli(c.CreatedAt).UTC(),
			UpdatedAt: time.UnixMilli(c.UpdatedAt).UTC(),
		}
		if c.LastMessageID != nil {
			if m, ok := lastByID[*c.LastMessageID]; ok {
				mv := messageView(&m, profiles)
				v.LastMessage = &mv
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// Chat projects a single row.
func (p *Projector) Chat(ctx context.Context, c *store.Chat) (ChatView, error) {
	views, err := p.Chats(ctx, []store.Chat{*c})
	if err != nil {
		return ChatView{}, err
	}
	return views[0], nil
}

// Messages projects rows, preserving their order.
func (p *Projector) Messages(ctx context.Context, msgs []store.Message) ([]MessageView, error) {
	profiles, err := p.profiles(ctx, lo.Map(msgs, func(m store.Message, _ int) string { return m.SenderID }))
	if err != nil {
		return nil, err
	}
	return lo.Map(msgs, func(m store.Message, _ int) MessageView { return messageView(&m, profiles) }), nil
}

// Message projects a single row.
func (p *Projector) Message(ctx context.Context, m *store.Message) (MessageView, error) {
	views, err := p.Messages(ctx, []store.Message{*m})
	if err != nil {
		return MessageView{}, err
	}
	return views[0], nil
}

func (p *Projector) profiles(ctx context.Context, ids []string) (map[string]identity.Profile, error) {
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return map[string]identity.Profile{}, nil
	}
	users, err := p.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load users")
	}
	out := make(map[string]identity.Profile, len(users))
	for i := range users {
		out[users[i].ID] = identity.ProfileOf(&users[i])
	}
	return out, nil
}

// profileOr falls back to an id-only profile for users that vanished.
func profileOr(profiles map[string]identity.Profile, id string) identity.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return identity.Profile{ID: id}
}

func messageView(m *store.Message, profiles map[string]identity.Profile) MessageView {
	return MessageView{
		ID:      m.ID,
		Sender:  profileOr(profiles, m.SenderID),
		Content: m.Content,
		Attachments: lo.Map(m.Attachments, func(a store.Attachment, _ int) AttachmentView {
			return AttachmentView{URL: a.URL, ContentType: a.ContentType, Size: a.Size}
		}),
		Chat:      m.ChatID,
		ReadBy:    lo.Map(m.Reads, func(r store.MessageRead, _ int) string { return r.UserID }),
		CreatedAt: time.UnixMilli(m.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(m.UpdatedAt).UTC(),
	}
}
