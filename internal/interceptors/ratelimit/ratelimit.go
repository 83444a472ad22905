// Package ratelimit is a fixed-window rate limiting interceptor keyed by
// client address and backed by the cache counter.
package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vedesh-padal/tal-chat-app/internal/components/api"
	svccfg "github.com/vedesh-padal/tal-chat-app/internal/frameworks/service/cfg"
	"github.com/vedesh-padal/tal-chat-app/internal/interceptors"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/cache"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/deps"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config is one [http.interceptors.ratelimit.profiles.<name>] table.
type Config struct {
	// Name namespaces the counters so profiles do not share budgets.
	Name              string `mapstructure:"name"`
	RequestsPerWindow int64  `mapstructure:"requests_per_window"`
	WindowSeconds     int    `mapstructure:"window_seconds"`
}

// ApplyDefaults sets unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
}

// Limiter rejects clients that exceed the request budget of a window.
type Limiter struct {
	counter cache.Counter
	keyFunc func(*http.Request) string
	prefix  string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New builds the interceptor from a profile table, taking the counter and
// the client address resolver from the shared deps.
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	d := deps.GetDeps()
	if d == nil || d.Cache == nil || d.RealIP == nil {
		return nil, errors.New("ratelimit requires the shared cache and client address resolver")
	}
	return NewLimiter(d.Cache, d.RealIP.GetClientIPString, c, log).Wrap, nil
}

// NewLimiter creates a limiter. c must have had defaults applied.
func NewLimiter(counter cache.Counter, keyFunc func(*http.Request) string, c Config, log *slog.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		keyFunc: keyFunc,
		prefix:  "ratelimit:" + c.Name + ":",
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}
}

// Wrap applies the limit. Counter failures let the request through.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, resetAt, err := l.counter.Increment(r.Context(), l.prefix+l.keyFunc(r), 1, l.window)
		if err != nil {
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := max(int(time.Until(resetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteStatus(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}
