// Package realtime provides the socket endpoint of the presence channel.
package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
	"github.com/vedesh-padal/tal-chat-app/internal/frameworks/service"
	svccfg "github.com/vedesh-padal/tal-chat-app/internal/frameworks/service/cfg"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/deps"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

func init() {
	service.MustRegister("realtime", New)
}

// Config is [http.services.realtime].
type Config struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	SendQueue       int           `mapstructure:"send_queue"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	pc := c.presence()
	pc.ApplyDefaults()
	*c = Config(pc)
}

func (c *Config) presence() presence.Config {
	return presence.Config(*c)
}

// Service serves the socket.
type Service struct {
	handler http.Handler
}

// New creates the realtime service from the shared deps.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "realtime", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Hub == nil || d.Tokens == nil || d.Chats == nil {
		return nil, errors.New("realtime: shared deps are incomplete")
	}

	return &Service{
		handler: presence.NewHandler(d.Hub, d.Tokens, d.Chats, c.presence(), log.With("service", "realtime")),
	}, nil
}

// Handler returns the socket handler.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "socket"
}

// Unprotected is empty: the route group skips the REST gate and the
// handshake is authenticated by the socket itself.
func (s *Service) Unprotected() []string {
	return nil
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
