// Package presence is the live notification channel: authenticated socket
// sessions join rooms (their own user id and the chats they opened), and
// the repositories emit domain events into those rooms.
package presence

import (
	"log/slog"
	"sync"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

// Emitter is the only way the repositories reach live sessions. Emit is
// fire-and-forget: it never blocks and reports nothing back.
type Emitter interface {
	Emit(room string, event EventKind, payload any)
}

// Hub tracks room membership of live sessions in process memory.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Session]struct{}),
		log:   logutil.NoopIfNil(log),
	}
}

// Emit delivers the event to every session in room.
func (h *Hub) Emit(room string, event EventKind, payload any) {
	h.broadcast(room, event, payload, nil)
}

// broadcast encodes the frame once and queues it for each member except skip.
func (h *Hub) broadcast(room string, event EventKind, payload any, skip *Session) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Warn("dropping event with unencodable payload", "room", room, "event", event.String(), "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		if s != skip {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(frame) {
			h.log.Warn("session send queue full, dropping frame",
				"room", room, "event", event.String(), "user_id", s.UserID())
		}
	}
}

func (h *Hub) join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
}

func (h *Hub) leave(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, s)
}

func (h *Hub) leaveLocked(room string, s *Session) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) inRoom(room string, s *Session) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][s]
	return ok
}

// drop removes s from every room it is in.
func (h *Hub) drop(s *Session, rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		h.leaveLocked(room, s)
	}
}

// RoomSize returns the number of sessions in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(string, EventKind, any) {}
