package presence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type tokenAuth map[string]string

func (a tokenAuth) Authenticate(_ context.Context, token string) (string, error) {
	if id, ok := a[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

// members maps chat id to participant ids.
type members map[string][]string

func (m members) IsParticipant(_ context.Context, userID, chatID string) (bool, error) {
	for _, id := range m[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type harness struct {
	hub *Hub
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub := NewHub(nil)
	auth := tokenAuth{"tok-alice": "alice", "tok-bob": "bob", "tok-carol": "carol"}
	chats := members{"chat-1": {"alice", "bob"}}
	srv := httptest.NewServer(NewHandler(hub, auth, chats, Config{}, nil))
	t.Cleanup(srv.Close)
	return &harness{hub: hub, srv: srv}
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	if token != "" {
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event, data string) {
	t.Helper()
	frame := `{"event":"` + event + `"`
	if data != "" {
		frame += `,"data":` + data
	}
	frame += "}"
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return f
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	f := read(t, conn)
	if f.Event != EventSocketError {
		t.Fatalf("expected socketError, got %s", f.Event)
	}
	var msg string
	json.Unmarshal(f.Data, &msg)
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseEventKind(t *testing.T) {
	for k, name := range eventNames {
		got, err := ParseEventKind(name)
		if err != nil || got != k {
			t.Errorf("ParseEventKind(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseEventKind("shout"); err == nil {
		t.Error("unknown event should not parse")
	}

	var f Frame
	if err := json.Unmarshal([]byte(`{"event":"shout"}`), &f); err == nil {
		t.Error("frame with unknown event should not decode")
	}
}

func TestChatIDOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"chat-1"`, "chat-1"},
		{`{"chatId":"chat-2"}`, "chat-2"},
		{`42`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		if got := chatIDOf(json.RawMessage(tt.in)); got != tt.want {
			t.Errorf("chatIDOf(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConnect_JoinsPersonalRoom(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tok-alice")

	if f := read(t, conn); f.Event != EventConnected {
		t.Fatalf("first frame = %s, want connected", f.Event)
	}
	waitFor(t, "personal room", func() bool { return h.hub.RoomSize("alice") == 1 })

	h.hub.Emit("alice", EventNewChat, map[string]string{"id": "chat-9"})
	f := read(t, conn)
	if f.Event != EventNewChat || !strings.Contains(string(f.Data), "chat-9") {
		t.Errorf("unexpected frame %s %s", f.Event, f.Data)
	}
}

func TestConnect_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t, "")
	if msg := readError(t, conn); msg != msgTokenMissing {
		t.Errorf("got %q, want %q", msg, msgTokenMissing)
	}
	// Every later event is refused the same way.
	send(t, conn, "joinChat", `"chat-1"`)
	if msg := readError(t, conn); msg != msgTokenMissing {
		t.Errorf("got %q, want %q", msg, msgTokenMissing)
	}

	bad := h.dial(t, "forged")
	if msg := readError(t, bad); msg != msgTokenInvalid {
		t.Errorf("got %q, want %q", msg, msgTokenInvalid)
	}
}

func TestCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/socket?token=from-query", nil)
	r.AddCookie(&http.Cookie{Name: "accessToken", Value: "from-cookie"})
	r.Header.Set("Authorization", "Bearer from-header")
	if got := Credential(r); got != "from-header" {
		t.Errorf("header should win, got %q", got)
	}
	r.Header.Del("Authorization")
	if got := Credential(r); got != "from-query" {
		t.Errorf("query should beat cookie, got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/socket", nil)
	r.AddCookie(&http.Cookie{Name: "accessToken", Value: "from-cookie"})
	if got := Credential(r); got != "from-cookie" {
		t.Errorf("got %q", got)
	}
}

func TestJoinChat_RequiresParticipation(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tok-carol")
	read(t, conn)

	send(t, conn, "joinChat", `"chat-1"`)
	if msg := readError(t, conn); msg != "You are not a participant of this chat" {
		t.Errorf("unexpected error %q", msg)
	}
	send(t, conn, "joinChat", `{}`)
	if msg := readError(t, conn); msg != "chatId is required" {
		t.Errorf("unexpected error %q", msg)
	}
	send(t, conn, "messageReceived", `"chat-1"`)
	readError(t, conn)
	if n := h.hub.RoomSize("chat-1"); n != 0 {
		t.Errorf("chat room should be empty, has %d", n)
	}
}

func TestTyping_RelaysToOthersInRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "tok-alice")
	bob := h.dial(t, "tok-bob")
	read(t, alice)
	read(t, bob)

	send(t, alice, "joinChat", `"chat-1"`)
	send(t, bob, "joinChat", `{"chatId":"chat-1"}`)
	waitFor(t, "both joined", func() bool { return h.hub.RoomSize("chat-1") == 2 })

	send(t, alice, "typing", `"chat-1"`)
	f := read(t, bob)
	if f.Event != EventTyping || string(f.Data) != `"chat-1"` {
		t.Fatalf("bob got %s %s", f.Event, f.Data)
	}

	// alice must not have received her own typing: the next frame she sees
	// is the one emitted now.
	h.hub.Emit("alice", EventStopTyping, "marker")
	if f := read(t, alice); f.Event != EventStopTyping || string(f.Data) != `"marker"` {
		t.Errorf("alice got %s %s", f.Event, f.Data)
	}

	send(t, bob, "leaveChat", `"chat-1"`)
	waitFor(t, "bob left", func() bool { return h.hub.RoomSize("chat-1") == 1 })
}

func TestDisconnect_LeavesRooms(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "tok-alice")
	read(t, conn)
	send(t, conn, "joinChat", `"chat-1"`)
	waitFor(t, "joined", func() bool { return h.hub.RoomSize("chat-1") == 1 })

	send(t, conn, "disconnect", "")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected a normal close, got %v", err)
	}
	waitFor(t, "rooms released", func() bool {
		return h.hub.RoomSize("chat-1") == 0 && h.hub.RoomSize("alice") == 0
	})
}

func TestEmit_Discard(t *testing.T) {
	Discard.Emit("anyone", EventNewChat, nil)
	NewHub(nil).Emit("nobody", EventNewChat, struct{}{})
}
