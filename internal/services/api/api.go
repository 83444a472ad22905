// Package api provides the REST endpoints under /api/v1.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	chatsapi "github.com/vedesh-padal/tal-chat-app/internal/components/api/chats"
	filesapi "github.com/vedesh-padal/tal-chat-app/internal/components/api/files"
	invitationsapi "github.com/vedesh-padal/tal-chat-app/internal/components/api/invitations"
	messagesapi "github.com/vedesh-padal/tal-chat-app/internal/components/api/messages"
	usersapi "github.com/vedesh-padal/tal-chat-app/internal/components/api/users"
	"github.com/vedesh-padal/tal-chat-app/internal/frameworks/service"
	svccfg "github.com/vedesh-padal/tal-chat-app/internal/frameworks/service/cfg"
	"github.com/vedesh-padal/tal-chat-app/internal/interceptors"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/deps"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"

	// registers the ratelimit interceptor
	_ "github.com/vedesh-padal/tal-chat-app/internal/interceptors/ratelimit"
)

func init() {
	service.MustRegister("api", New)
}

// formOverhead is allowed on top of the attachment budget of a send request.
const formOverhead = 1 << 20

// Config holds api service configuration.
type Config struct {
	// Ratelimit opts the login route into a ratelimit profile.
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig names a profile from [http.interceptors.ratelimit.profiles].
type RatelimitConfig struct {
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	log    *slog.Logger
}

// New creates the API service from the shared deps.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Config == nil || d.Identity == nil || d.Invitations == nil || d.Chats == nil || d.Messages == nil || d.Files == nil {
		return nil, errors.New("api: shared deps are incomplete")
	}

	loginLimit := func(next http.Handler) http.Handler { return next }
	if c.Ratelimit.Profile != "" {
		mw, err := interceptors.Build(d.Config.HTTP.Interceptors, "ratelimit", c.Ratelimit.Profile, log)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		loginLimit = mw
	}

	att := d.Config.Attachments
	maxSendBody := int64(att.MaxFiles)*att.MaxFileBytes + formOverhead

	users := usersapi.NewHandler(d.Identity, d.Config.Auth.CookieSecure, log)
	invites := invitationsapi.NewHandler(d.Invitations, log)
	chats := chatsapi.NewHandler(d.Chats)
	messages := messagesapi.NewHandler(d.Messages, maxSendBody, log)
	files := filesapi.NewHandler(d.Files)

	r := chi.NewRouter()

	r.Get("/healthz", api.HealthHandler)

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", users.HandleRegister)
		r.With(loginLimit).Post("/login", users.HandleLogin)
		r.Post("/logout", users.HandleLogout)
		r.Get("/me", users.HandleMe)
	})

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", chats.HandleList)
		r.Get("/users", users.HandleAvailable)
		r.Get("/search", users.HandleSearch)

		r.Get("/invitations", invites.HandleListAll)
		r.Post("/invitations/send/{receiverId}", invites.HandleSend)
		r.Post("/invitations/respond", invites.HandleRespond)
		r.Get("/users/{status}", invites.HandleListByStatus)
		r.Get("/connections", invites.HandleConnections)

		r.Post("/c/{id}", chats.HandleFindOrCreate)
		r.Get("/c/{id}", chats.HandleGet)
		r.Delete("/remove/{id}", chats.HandleDelete)
	})

	r.Route("/messages/{chatId}", func(r chi.Router) {
		r.Get("/", messages.HandleList)
		r.Post("/", messages.HandleSend)
		r.Get("/search", messages.HandleSearch)
		r.Delete("/{messageId}", messages.HandleDelete)
		r.Patch("/{messageId}/read", messages.HandleMarkRead)
	})

	r.Method(http.MethodGet, "/files/{name}", files)

	return &Service{router: r, log: log}, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api/v1"
}

// Unprotected returns paths that skip the auth gate.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/users/register", "/users/login", "/files/"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
