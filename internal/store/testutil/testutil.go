// Package testutil provides shared helpers for store driver and component tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/vedesh-padal/tal-chat-app/internal/store"
	_ "github.com/vedesh-padal/tal-chat-app/internal/store/sqlite"
)

// OpenSQLite returns an initialized sqlite store in a temp dir, closed on cleanup.
func OpenSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(&store.DriverConfig{Driver: "sqlite", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create sqlite driver: %v", err)
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("failed to init sqlite driver: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewID returns a time-ordered id like the components use.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CreateUser inserts a user with the given username and returns it.
func CreateUser(t *testing.T, s store.UserStore, username string) *store.User {
	t.Helper()
	u := &store.User{
		ID:       NewID(),
		Username: username,
		Email:    username + "@example.com",
		Role:     "USER",
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", username, err)
	}
	return u
}

// RunDriverTests runs the standard suite against an initialized store.
func RunDriverTests(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("Users", func(t *testing.T) { testUsers(t, ctx, s) })
	t.Run("Invitations", func(t *testing.T) { testInvitations(t, ctx, s) })
	t.Run("ChatsAndMessages", func(t *testing.T) { testChatsAndMessages(t, ctx, s) })
}

func testUsers(t *testing.T, ctx context.Context, s store.Store) {
	alice := CreateUser(t, s, "alice")
	CreateUser(t, s, "alfred")
	CreateUser(t, s, "bob")

	dup := &store.User{ID: NewID(), Username: "alice", Email: "other@example.com", Role: "USER"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate username, got %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil || got.ID != alice.ID {
		t.Fatalf("GetUserByEmail() = %v, %v", got, err)
	}
	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	matches, err := s.ListUsers(ctx, alice.ID, "AL", 0)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Username != "alfred" {
		t.Errorf("expected only alfred, got %+v", matches)
	}

	elodie := CreateUser(t, s, "élodie")
	matches, err = s.ListUsers(ctx, "", "ÉLO", 0)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != elodie.ID {
		t.Errorf("expected élodie for a non-ASCII query, got %+v", matches)
	}

	// Wildcards in the query are literal.
	matches, err = s.ListUsers(ctx, "", "%", 0)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no match for a literal %%, got %d", len(matches))
	}
}

func testInvitations(t *testing.T, ctx context.Context, s store.Store) {
	sender := CreateUser(t, s, "inv-sender")
	receiver := CreateUser(t, s, "inv-receiver")

	inv := &store.Invitation{ReceiverID: receiver.ID, SenderID: sender.ID, Status: store.InvitationPending}
	if err := s.CreateInvitation(ctx, inv, receiver.Version); err != nil {
		t.Fatalf("CreateInvitation failed: %v", err)
	}

	again := &store.Invitation{ReceiverID: receiver.ID, SenderID: sender.ID, Status: store.InvitationPending}
	if err := s.CreateInvitation(ctx, again, receiver.Version+1); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// Stale version loses.
	err := s.ResolveInvitation(ctx, receiver.ID, sender.ID, store.InvitationAccepted, receiver.Version, true)
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	fresh, err := s.GetUser(ctx, receiver.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ResolveInvitation(ctx, receiver.ID, sender.ID, store.InvitationAccepted, fresh.Version, true); err != nil {
		t.Fatalf("ResolveInvitation failed: %v", err)
	}

	for _, pair := range [][2]string{{receiver.ID, sender.ID}, {sender.ID, receiver.ID}} {
		ok, err := s.IsConnected(ctx, pair[0], pair[1])
		if err != nil || !ok {
			t.Errorf("IsConnected(%s, %s) = %v, %v", pair[0], pair[1], ok, err)
		}
	}

	accepted, err := s.ListInvitations(ctx, receiver.ID, store.InvitationAccepted)
	if err != nil || len(accepted) != 1 {
		t.Fatalf("ListInvitations(accepted) = %v, %v", accepted, err)
	}
	pending, err := s.ListInvitations(ctx, receiver.ID, store.InvitationPending)
	if err != nil || len(pending) != 0 {
		t.Errorf("ListInvitations(pending) = %v, %v", pending, err)
	}
}

func testChatsAndMessages(t *testing.T, ctx context.Context, s store.Store) {
	a := CreateUser(t, s, "chat-a")
	b := CreateUser(t, s, "chat-b")

	key := fmt.Sprintf("%s:%s", a.ID, b.ID)
	chat := &store.Chat{
		ID:           NewID(),
		Name:         "a and b",
		AdminID:      a.ID,
		PairKey:      &key,
		Participants: []store.ChatParticipant{{UserID: a.ID}, {UserID: b.ID}},
	}
	if err := s.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	twin := &store.Chat{ID: NewID(), PairKey: &key, Participants: []store.ChatParticipant{{UserID: a.ID}}}
	if err := s.CreateChat(ctx, twin); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate pair key, got %v", err)
	}

	first := &store.Message{ID: NewID(), ChatID: chat.ID, SenderID: a.ID, Content: "Hello there"}
	second := &store.Message{
		ID: NewID(), ChatID: chat.ID, SenderID: b.ID,
		Attachments: []store.Attachment{{URL: "http://x/f1", LocalPath: "/tmp/f1"}},
	}
	for _, m := range []*store.Message{first, second} {
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	got, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageID == nil || *got.LastMessageID != second.ID {
		t.Errorf("expected last message %s, got %v", second.ID, got.LastMessageID)
	}
	if len(got.Participants) != 2 || !got.HasParticipant(b.ID) {
		t.Errorf("unexpected participants %+v", got.Participants)
	}

	list, err := s.ListMessages(ctx, chat.ID, store.MessageQuery{})
	if err != nil || len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("ListMessages() = %v, %v", list, err)
	}
	if len(list[0].Attachments) != 1 {
		t.Errorf("expected attachments to be preloaded")
	}

	found, err := s.ListMessages(ctx, chat.ID, store.MessageQuery{Search: "hello"})
	if err != nil || len(found) != 1 || found[0].ID != first.ID {
		t.Errorf("search = %v, %v", found, err)
	}

	if err := s.MarkRead(ctx, first.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkRead(ctx, first.ID, b.ID); err != nil {
		t.Fatalf("MarkRead must be idempotent: %v", err)
	}

	if _, err := s.DeleteMessage(ctx, chat.ID, second.ID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	got, _ = s.GetChat(ctx, chat.ID)
	if got.LastMessageID == nil || *got.LastMessageID != first.ID {
		t.Errorf("expected last message re-pointed to %s, got %v", first.ID, got.LastMessageID)
	}

	removed, err := s.DeleteChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("DeleteChat failed: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected no attachments left, got %d", len(removed))
	}
	if _, err := s.GetMessage(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected messages to be cascaded, got %v", err)
	}
	if _, err := s.GetChat(ctx, chat.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected chat gone, got %v", err)
	}
}
