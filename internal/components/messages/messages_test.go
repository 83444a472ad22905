package messages_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/vedesh-padal/tal-chat-app/internal/components/attachments"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/components/invitations"
	"github.com/vedesh-padal/tal-chat-app/internal/components/messages"
	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
	"github.com/vedesh-padal/tal-chat-app/internal/components/presence/presencetest"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/apperr"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
	"github.com/vedesh-padal/tal-chat-app/internal/store/testutil"
)

type fixture struct {
	store  store.Store
	repo   *messages.Repository
	files  *attachments.Local
	events *presencetest.Recorder

	alice, bob, carol *store.User
	chat              chats.ChatView
}

// newFixture connects alice and bob and opens their chat. carol is a stranger.
func newFixture(t *testing.T, maxFileBytes int64) *fixture {
	t.Helper()
	ctx := context.Background()
	s := testutil.OpenSQLite(t)
	files, err := attachments.NewLocal(attachments.Config{
		Dir:          t.TempDir(),
		PublicOrigin: "http://localhost:8080",
		MaxFileBytes: maxFileBytes,
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		store:  s,
		files:  files,
		events: &presencetest.Recorder{},
		alice:  testutil.CreateUser(t, s, "alice"),
		bob:    testutil.CreateUser(t, s, "bob"),
		carol:  testutil.CreateUser(t, s, "carol"),
	}

	inv := invitations.NewEngine(s, nil)
	if _, err := inv.Send(ctx, f.alice.ID, f.bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := inv.Respond(ctx, f.bob.ID, f.alice.ID, invitations.Accept); err != nil {
		t.Fatal(err)
	}
	f.chat, _, err = chats.NewRepository(s, files, nil, nil).FindOrCreateOneOnOne(ctx, f.alice.ID, f.bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	f.repo = messages.NewRepository(s, files, f.events, messages.Limits{}, nil)
	return f
}

func (f *fixture) lastMessageID(t *testing.T) string {
	t.Helper()
	c, err := f.store.GetChat(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessageID == nil {
		return ""
	}
	return *c.LastMessageID
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestSendListDelete(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	m1, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, "hi", nil)
	if err != nil {
		t.Fatalf("send m1: %v", err)
	}
	if m1.Sender.ID != f.alice.ID || m1.Content != "hi" || m1.Chat != f.chat.ID {
		t.Errorf("unexpected m1 %+v", m1)
	}
	m2, err := f.repo.Send(ctx, f.bob.ID, f.chat.ID, "yo", nil)
	if err != nil {
		t.Fatalf("send m2: %v", err)
	}
	if got := f.lastMessageID(t); got != m2.ID {
		t.Errorf("last message = %s, want m2 %s", got, m2.ID)
	}

	list, err := f.repo.List(ctx, f.alice.ID, f.chat.ID, messages.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != m2.ID || list[1].ID != m1.ID {
		t.Errorf("expected [m2, m1], got %+v", list)
	}

	received := f.events.Of(presence.EventMessageReceived)
	if len(received) != 2 || received[0].Room != f.bob.ID || received[1].Room != f.alice.ID {
		t.Errorf("messageReceived should go to the other participant, got %+v", received)
	}

	if _, err := f.repo.Delete(ctx, f.alice.ID, f.chat.ID, m2.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("deleting someone else's message: expected Forbidden, got %v", err)
	}
	if _, err := f.repo.Delete(ctx, f.bob.ID, f.chat.ID, m2.ID); err != nil {
		t.Fatalf("delete m2: %v", err)
	}
	if got := f.lastMessageID(t); got != m1.ID {
		t.Errorf("last message after delete = %s, want m1 %s", got, m1.ID)
	}
	deleted := f.events.Of(presence.EventMessageDeleted)
	if len(deleted) != 1 || deleted[0].Room != f.alice.ID {
		t.Errorf("expected one messageDeleted to alice, got %+v", deleted)
	}

	if _, err := f.repo.Delete(ctx, f.bob.ID, f.chat.ID, m2.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("second delete: expected NotFound, got %v", err)
	}
	if _, err := f.repo.Delete(ctx, f.alice.ID, f.chat.ID, m1.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.lastMessageID(t); got != "" {
		t.Errorf("last message should be cleared, got %s", got)
	}
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		sender  string
		chat    string
		content string
		uploads []messages.Upload
		kind    apperr.Kind
	}{
		{"empty", f.alice.ID, f.chat.ID, "   ", nil, apperr.KindInvalidArgument},
		{"too long", f.alice.ID, f.chat.ID, strings.Repeat("é", messages.DefaultMaxContentRunes+1), nil, apperr.KindInvalidArgument},
		{"too many files", f.alice.ID, f.chat.ID, "", make([]messages.Upload, messages.DefaultMaxFiles+1), apperr.KindInvalidArgument},
		{"missing chat", f.alice.ID, "missing", "hi", nil, apperr.KindNotFound},
		{"outsider", f.carol.ID, f.chat.ID, "hi", nil, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.repo.Send(ctx, tt.sender, tt.chat, tt.content, tt.uploads)
			if !apperr.IsKind(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}

	if _, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, strings.Repeat("é", messages.DefaultMaxContentRunes), nil); err != nil {
		t.Errorf("content at the limit should be accepted: %v", err)
	}
	if n := len(f.events.Of(presence.EventMessageReceived)); n != 1 {
		t.Errorf("only the accepted message should emit, got %d", n)
	}
}

func TestSend_Attachments(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 4)...)
	msg, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, "", []messages.Upload{
		{Name: "Pic One.png", Reader: bytes.NewReader(png)},
	})
	if err != nil {
		t.Fatalf("send with attachment: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	a := msg.Attachments[0]
	if !strings.HasPrefix(a.URL, "http://localhost:8080"+attachments.FilesPath+"pic-one") || a.ContentType != "image/png" {
		t.Errorf("unexpected attachment %+v", a)
	}
	if dirEntries(t, f.files.Dir()) != 1 {
		t.Fatal("expected the stored file on disk")
	}

	// The second upload is over the limit; the first must not be left behind.
	_, err = f.repo.Send(ctx, f.alice.ID, f.chat.ID, "two files", []messages.Upload{
		{Name: "small.txt", Reader: strings.NewReader("ok")},
		{Name: "big.txt", Reader: strings.NewReader(strings.Repeat("x", 64))},
	})
	if !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument for oversized file, got %v", err)
	}
	if n := dirEntries(t, f.files.Dir()); n != 1 {
		t.Errorf("failed send left %d files, want 1", n)
	}

	if _, err := f.repo.Delete(ctx, f.alice.ID, f.chat.ID, msg.ID); err != nil {
		t.Fatal(err)
	}
	if n := dirEntries(t, f.files.Dir()); n != 0 {
		t.Errorf("delete should remove attachment files, %d left", n)
	}
}

func TestDelete_NonParticipantSeesNotFound(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	m, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, "secret", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.Delete(ctx, f.carol.ID, f.chat.ID, m.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := f.repo.Delete(ctx, f.alice.ID, f.chat.ID, "missing"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound for missing message, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for _, c := range []string{"Hello there", "nothing", "say HELLO", "100% sure"} {
		if _, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, c, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.repo.Search(ctx, f.bob.ID, f.chat.ID, "hello", messages.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "say HELLO" || got[1].Content != "Hello there" {
		t.Errorf("unexpected results %+v", got)
	}

	got, err = f.repo.Search(ctx, f.bob.ID, f.chat.ID, "0%", messages.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("wildcards must match literally, got %d results", len(got))
	}

	got, err = f.repo.Search(ctx, f.bob.ID, f.chat.ID, "hello", messages.Page{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "Hello there" {
		t.Errorf("paged result = %+v", got)
	}

	if _, err := f.repo.Search(ctx, f.bob.ID, f.chat.ID, " ", messages.Page{}); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Errorf("empty query: expected InvalidArgument, got %v", err)
	}
	if _, err := f.repo.Search(ctx, f.carol.ID, f.chat.ID, "hello", messages.Page{}); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("outsider: expected Forbidden, got %v", err)
	}
}

func TestSearch_NonASCII(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	sent, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, "Ünïcode ÉCOLE", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, "ecole without accent", nil); err != nil {
		t.Fatal(err)
	}

	for _, query := range []string{"ÉCOLE", "école", "École", "ünïcode", "ÜNÏCODE É"} {
		got, err := f.repo.Search(ctx, f.bob.ID, f.chat.ID, query, messages.Page{})
		if err != nil {
			t.Fatalf("Search(%q): %v", query, err)
		}
		if len(got) != 1 || got[0].ID != sent.ID {
			t.Errorf("Search(%q) = %+v, want only %q", query, got, sent.Content)
		}
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	m, err := f.repo.Send(ctx, f.alice.ID, f.chat.ID, "read me", nil)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		v, err := f.repo.MarkRead(ctx, f.bob.ID, f.chat.ID, m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(v.ReadBy) != 1 || v.ReadBy[0] != f.bob.ID {
			t.Errorf("readBy = %v, want [bob]", v.ReadBy)
		}
	}
	if _, err := f.repo.MarkRead(ctx, f.carol.ID, f.chat.ID, m.ID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("outsider: expected Forbidden, got %v", err)
	}
}

type failingStorage struct{ attachments.Storage }

func (failingStorage) Store(context.Context, io.Reader, string) (attachments.Stored, error) {
	return attachments.Stored{}, apperr.Internal(io.ErrUnexpectedEOF, "failed to store attachment")
}

func TestSend_StorageFailure(t *testing.T) {
	f := newFixture(t, 0)
	repo := messages.NewRepository(f.store, failingStorage{f.files}, f.events, messages.Limits{}, nil)

	_, err := repo.Send(context.Background(), f.alice.ID, f.chat.ID, "x", []messages.Upload{{Name: "a.txt", Reader: strings.NewReader("a")}})
	if !apperr.IsKind(err, apperr.KindInternal) {
		t.Errorf("expected Internal, got %v", err)
	}
	if got := f.lastMessageID(t); got != "" {
		t.Errorf("no message should be saved, last = %s", got)
	}
}
