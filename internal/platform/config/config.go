// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the public origin (scheme + host + port) clients reach
	// this instance at. Attachment URLs are built from it.
	// Example: "https://chat.example.com"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// Store selects and configures the persistence driver.
	Store StoreConfig `toml:"store"`

	// Attachments configures message attachment storage.
	Attachments AttachmentsConfig `toml:"attachments"`

	// Auth configures access tokens.
	Auth AuthConfig `toml:"auth"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`

	// Interceptors maps interceptor names to their raw config maps.
	// Ratelimit profiles live at [http.interceptors.ratelimit.profiles.<name>].
	// Per-service opt-in is [http.services.<svc>.ratelimit] with profile = "<name>".
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, secrets).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// DriverConfig returns the raw config map of the selected cache driver.
func (c CacheConfig) DriverConfig() map[string]any {
	raw, _ := c.Drivers[c.Driver].(map[string]any)
	return raw
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `toml:"driver"`

	// DataDir holds the sqlite database file.
	DataDir string `toml:"data_dir"`

	// DSN is the postgres connection string. Secret; prefer TALCHAT_STORE_DSN.
	DSN string `toml:"dsn"`
}

// AttachmentsConfig bounds and locates message attachments.
type AttachmentsConfig struct {
	// Dir is where uploaded files are written.
	Dir string `toml:"dir"`

	// MaxFiles caps attachments per message. Default: 5
	MaxFiles int `toml:"max_files"`

	// MaxFileBytes caps a single file. Default: 5000000
	MaxFileBytes int64 `toml:"max_file_bytes"`

	// MaxContentRunes caps message text. Default: 5000
	MaxContentRunes int `toml:"max_content_runes"`
}

// AuthConfig configures access token issuance.
type AuthConfig struct {
	// TokenSecret signs access tokens (HS256), at least 32 bytes.
	// Secret; prefer TALCHAT_TOKEN_SECRET.
	TokenSecret string `toml:"token_secret"`

	// TokenTTLSeconds is the access token lifetime. Default: 86400
	TokenTTLSeconds int `toml:"token_ttl_seconds"`

	// Issuer is the iss claim. Default: "talchat"
	Issuer string `toml:"issuer"`

	// CookieSecure marks the accessToken cookie Secure.
	// Default: true in strict mode, false in dev mode.
	CookieSecure bool `toml:"cookie_secure"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// X-Forwarded-For and X-Real-IP are only honored from these addresses.
	// Default: ["127.0.0.0/8", "::1/128"]
	TrustedProxies []string `toml:"trusted_proxies"`

	// MaxConnections caps concurrently accepted connections. 0 = unlimited.
	MaxConnections int `toml:"max_connections"`

	// BootstrapAdmin holds admin bootstrap configuration.
	BootstrapAdmin BootstrapAdminConfig `toml:"bootstrap_admin"`
}

// BootstrapAdminConfig holds bootstrap admin credentials.
type BootstrapAdminConfig struct {
	// Username for the admin. Empty disables bootstrapping.
	Username string `toml:"username"`

	// Email for the admin. Default: <username>@localhost
	Email string `toml:"email"`

	// Password for the admin. If empty on first boot, a random password is generated.
	Password string `toml:"password"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	// Return a copy to prevent mutation
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

func redact(s string) string {
	if s == "" {
		return `""`
	}
	return "[REDACTED]"
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  PublicOrigin: %q,\n", c.PublicOrigin)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	sb.WriteString("  Server: {\n")
	fmt.Fprintf(&sb, "    TrustedProxies: %v,\n", c.Server.TrustedProxies)
	fmt.Fprintf(&sb, "    MaxConnections: %d,\n", c.Server.MaxConnections)
	fmt.Fprintf(&sb, "    BootstrapAdmin: {Username: %q, Email: %q, Password: %s},\n",
		c.Server.BootstrapAdmin.Username, c.Server.BootstrapAdmin.Email, redact(c.Server.BootstrapAdmin.Password))
	sb.WriteString("  },\n")
	fmt.Fprintf(&sb, "  Store: {Driver: %q, DataDir: %q, DSN: %s},\n", c.Store.Driver, c.Store.DataDir, redact(c.Store.DSN))
	fmt.Fprintf(&sb, "  Attachments: {Dir: %q, MaxFiles: %d, MaxFileBytes: %d, MaxContentRunes: %d},\n",
		c.Attachments.Dir, c.Attachments.MaxFiles, c.Attachments.MaxFileBytes, c.Attachments.MaxContentRunes)
	fmt.Fprintf(&sb, "  Auth: {TokenSecret: %s, TokenTTLSeconds: %d, Issuer: %q, CookieSecure: %v},\n",
		redact(c.Auth.TokenSecret), c.Auth.TokenTTLSeconds, c.Auth.Issuer, c.Auth.CookieSecure)
	fmt.Fprintf(&sb, "  Cache: {Driver: %q, DriversCount: %d},\n", c.Cache.Driver, len(c.Cache.Drivers))
	fmt.Fprintf(&sb, "  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive)
	services := make([]string, 0, len(c.HTTP.Services))
	for name := range c.HTTP.Services {
		services = append(services, name)
	}
	sort.Strings(services)
	fmt.Fprintf(&sb, "  HTTP: {Services: %q},\n", services)
	sb.WriteString("}")
	return sb.String()
}
