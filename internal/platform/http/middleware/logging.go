// Package middleware holds the always-on transport middleware of the HTTP server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vedesh-padal/tal-chat-app/internal/platform/appctx"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/http/realip"
)

// RequestLogger stores a logger carrying request_id, method, path and
// client_ip in the request context. It must run after chimw.RequestID.
func RequestLogger(base *slog.Logger, proxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := baseFields(base, proxies, r)
			next.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), reqLogger)))
		})
	}
}

// AccessLog writes one "request" record per request with status, bytes and
// duration_ms. Server errors are logged at error level, client errors at warn.
// The base logger and proxies are used only when RequestLogger did not run.
func AccessLog(base *slog.Logger, proxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = baseFields(base, proxies, r)
				}
				status := ww.Status()
				if status == 0 {
					// hijacked (websocket) or nothing written
					status = http.StatusOK
				}
				level := slog.LevelInfo
				switch {
				case status >= 500:
					level = slog.LevelError
				case status >= 400:
					level = slog.LevelWarn
				}
				logger.Log(r.Context(), level, "request",
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func baseFields(base *slog.Logger, proxies *realip.TrustedProxies, r *http.Request) *slog.Logger {
	clientIP := "unknown"
	if proxies != nil {
		clientIP = proxies.GetClientIPString(r)
	}
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", clientIP,
	)
}
