// Package interceptors is a registry of named HTTP middleware that services
// attach to selected routes, configured through named profiles.
package interceptors

import (
	"log/slog"
	"net/http"
)

// Middleware is an HTTP middleware function.
type Middleware func(http.Handler) http.Handler

// NewInterceptor builds a middleware from one profile table.
type NewInterceptor func(conf map[string]any, log *slog.Logger) (Middleware, error)
