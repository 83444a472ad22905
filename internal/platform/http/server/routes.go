package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	"github.com/vedesh-padal/tal-chat-app/internal/frameworks/service"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/deps"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/http/auth"
	httpmw "github.com/vedesh-padal/tal-chat-app/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group with its auth requirement.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups is the single source of truth for gating decisions.
var routeGroups = []RouteGroup{
	// REST API: token required, exceptions via Service.Unprotected().
	{Name: "api", PathPrefix: "/api", RequiresAuth: true},
	// The socket authenticates its own handshake.
	{Name: "realtime", PathPrefix: "/socket", RequiresAuth: false},
}

// GetRouteGroups returns the route group table.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired reports whether path must pass the auth gate. Paths outside
// every group require auth.
func IsAuthRequired(path string, mountedServices []service.Service) bool {
	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		base := ""
		if prefix := svc.Prefix(); prefix != "" {
			base = "/" + prefix
		}
		for _, unprotected := range svc.Unprotected() {
			if subtree, ok := strings.CutSuffix(unprotected, "/"); ok {
				if pathMatchesPrefix(path, base+subtree) {
					return false
				}
				continue
			}
			if path == base+unprotected {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}

// setupRoutes builds the root router. Middleware order is fixed:
// RequestID, request logger, access log, recoverer, auth gate.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLogger(s.logger, d.RealIP))
	r.Use(httpmw.AccessLog(s.logger, d.RealIP))
	r.Use(chimw.Recoverer)

	var tokens auth.TokenVerifier
	if d.Tokens != nil {
		tokens = d.Tokens
	}
	// The closure reads mountedServices at request time.
	r.Use(auth.NewGate(auth.GateConfig{
		RequireAuth: func(path string) bool { return IsAuthRequired(path, s.mountedServices) },
		Log:         s.logger,
		Tokens:      tokens,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteStatus(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteStatus(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	for _, name := range s.mountOrder() {
		s.mountService(r, s.services[name])
	}
	return r
}

// mountService mounts svc under its prefix and tracks it for Close.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	prefix := svc.Prefix()
	if prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}
