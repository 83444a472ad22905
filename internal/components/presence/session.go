package presence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

// Config tunes the socket transport.
type Config struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	SendQueue       int
	// AllowedOrigins lists browser origins allowed to connect. Empty means
	// same-origin only; "*" allows any.
	AllowedOrigins []string
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// Authenticator resolves a bearer credential to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// ParticipantChecker authorizes joining a chat room.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, userID, chatID string) (bool, error)
}

const (
	msgTokenMissing = "Un-authorized handshake. Token is missing."
	msgTokenInvalid = "Un-authorized handshake. Token is invalid."
)

// Session is one socket connection.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	cfg  Config
	log  *slog.Logger

	// userID is empty until authenticated; authErr then explains why.
	userID  string
	authErr string

	mu     sync.Mutex
	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

// UserID returns the authenticated user, or "".
func (s *Session) UserID() string { return s.userID }

// enqueue queues a frame without blocking. It reports false when the queue is full.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) emit(event EventKind, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		s.log.Warn("failed to encode frame", "event", event.String(), "error", err)
		return
	}
	if !s.enqueue(frame) {
		s.log.Warn("session send queue full, dropping frame", "event", event.String())
	}
}

func (s *Session) socketError(msg string) {
	s.emit(EventSocketError, msg)
}

func (s *Session) joinRoom(room string) {
	s.hub.join(room, s)
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) leaveRoom(room string) {
	s.hub.leave(room, s)
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

// close leaves every room and stops the writer.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rooms := lo.Keys(s.rooms)
	s.rooms = map[string]struct{}{}
	close(s.send)
	s.mu.Unlock()

	s.hub.drop(s, rooms)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(ctx context.Context, chats ParticipantChecker) {
	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("socket read failed", "error", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.socketError("malformed frame or unknown event")
			continue
		}
		if f.Event == EventDisconnect {
			return
		}
		s.handle(ctx, f, chats)
	}
}

func (s *Session) handle(ctx context.Context, f Frame, chats ParticipantChecker) {
	if s.userID == "" {
		s.socketError(s.authErr)
		return
	}

	switch f.Event {
	case EventJoinChat, EventLeaveChat, EventTyping, EventStopTyping:
	default:
		s.socketError("event " + f.Event.String() + " cannot be sent by clients")
		return
	}

	chatID := chatIDOf(f.Data)
	if chatID == "" {
		s.socketError("chatId is required")
		return
	}

	switch f.Event {
	case EventJoinChat:
		ok, err := chats.IsParticipant(ctx, s.userID, chatID)
		if err != nil {
			s.log.Error("failed to authorize chat join", "chat_id", chatID, "error", err)
			s.socketError("failed to join chat")
			return
		}
		if !ok {
			s.socketError("You are not a participant of this chat")
			return
		}
		s.joinRoom(chatID)
		s.log.Debug("joined chat", "chat_id", chatID)
	case EventLeaveChat:
		s.leaveRoom(chatID)
	case EventTyping, EventStopTyping:
		// Only sessions that joined the chat may signal in it.
		if !s.hub.inRoom(chatID, s) {
			return
		}
		s.hub.broadcast(chatID, f.Event, chatID, s)
	}
}

// chatIDOf accepts either a bare JSON string or {"chatId": "..."}.
func chatIDOf(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.ChatID)
	}
	return ""
}

// Handler upgrades requests to socket sessions.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	chats    ParticipantChecker
	cfg      Config
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, chats ParticipantChecker, cfg Config, log *slog.Logger) *Handler {
	cfg.ApplyDefaults()
	h := &Handler{hub: hub, auth: auth, chats: chats, cfg: cfg, log: logutil.NoopIfNil(log)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(cfg.AllowedOrigins, "*") || lo.Contains(cfg.AllowedOrigins, origin)
		}
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := Credential(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("socket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	s := &Session{
		hub:   h.hub,
		conn:  conn,
		cfg:   h.cfg,
		log:   h.log,
		send:  make(chan []byte, h.cfg.SendQueue),
		rooms: make(map[string]struct{}),
	}
	go s.writePump()
	defer s.close()

	switch userID, err := h.authenticate(ctx, token); {
	case err != nil:
		s.authErr = err.Error()
		s.socketError(s.authErr)
	default:
		s.userID = userID
		s.log = h.log.With("user_id", userID)
		s.joinRoom(userID)
		s.emit(EventConnected, nil)
		s.log.Info("socket connected")
		defer s.log.Info("socket disconnected")
	}

	s.readPump(ctx, h.chats)
}

func (h *Handler) authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.New(msgTokenMissing)
	}
	userID, err := h.auth.Authenticate(ctx, token)
	if err != nil || userID == "" {
		return "", errors.New(msgTokenInvalid)
	}
	return userID, nil
}

// Credential extracts the access token from the Authorization header, the
// token query parameter or the accessToken cookie, in that order.
func Credential(r *http.Request) string {
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	if c, err := r.Cookie("accessToken"); err == nil {
		return c.Value
	}
	return ""
}
