// Package deps holds the dependencies shared by every mounted service. The
// server entry point builds them once and services read them in their
// constructors.
package deps

import (
	"sync"

	"github.com/vedesh-padal/tal-chat-app/internal/components/attachments"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/components/invitations"
	"github.com/vedesh-padal/tal-chat-app/internal/components/messages"
	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/cache"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/config"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/http/realip"
	"github.com/vedesh-padal/tal-chat-app/internal/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds shared dependencies for all services.
type Deps struct {
	Config *config.Config

	Store store.Store

	// Cache backs token revocation and rate limiting.
	Cache cache.CacheWithCounter

	// RealIP is the single source of client addresses for logs and rate limits.
	RealIP *realip.TrustedProxies

	Identity    *identity.Service
	Tokens      *identity.Tokens
	Invitations *invitations.Engine
	Chats       *chats.Repository
	Messages    *messages.Repository
	Files       *attachments.Local

	// Hub fans events out to socket sessions.
	Hub *presence.Hub
}

// SetDeps sets the shared dependencies. Only the first call has an effect.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies, or nil before SetDeps.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
