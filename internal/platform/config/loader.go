package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TALCHAT"

// minTokenSecret is the shortest accepted HS256 secret.
const minTokenSecret = 32

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr    *string
	PublicOrigin  *string
	StoreDriver   *string
	DataDir       *string
	CacheDriver   *string
	AdminUsername *string
	AdminPassword *string
	LoggingLevel  *string
}

// envSecrets are the values taken from the environment. They win over the
// file and lose to flags.
type envSecrets struct {
	TokenSecret   string `envconfig:"TOKEN_SECRET"`
	StoreDSN      string `envconfig:"STORE_DSN"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	PublicOrigin  string `envconfig:"PUBLIC_ORIGIN"`
	ListenAddr    string `envconfig:"LISTEN_ADDR"`
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode         string `toml:"mode"`
	PublicOrigin string `toml:"public_origin"`
	ListenAddr   string `toml:"listen_addr"`

	Server      *serverConfig      `toml:"server"`
	Store       *StoreConfig       `toml:"store"`
	Attachments *AttachmentsConfig `toml:"attachments"`
	Auth        *authConfig        `toml:"auth"`
	Cache       *CacheConfig       `toml:"cache"`
	Logging     *LoggingConfig     `toml:"logging"`
	HTTP        *HTTPConfig        `toml:"http"`
}

type serverConfig struct {
	TrustedProxies []string              `toml:"trusted_proxies"`
	MaxConnections int                   `toml:"max_connections"`
	BootstrapAdmin *BootstrapAdminConfig `toml:"bootstrap_admin"`
}

type authConfig struct {
	TokenSecret     string `toml:"token_secret"`
	TokenTTLSeconds int    `toml:"token_ttl_seconds"`
	Issuer          string `toml:"issuer"`
	CookieSecure    *bool  `toml:"cookie_secure"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay TALCHAT_* environment variables
//  5. Overlay CLI flags
//  6. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown TOML keys produce a warning.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)
	overlayFileConfig(cfg, &fc)

	var env envSecrets
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read %s_* environment: %w", EnvPrefix, err)
	}
	overlayEnv(cfg, env)
	overlayFlags(cfg, opts.FlagOverrides)

	if cfg.Auth.TokenSecret == "" && mode == ModeDev {
		cfg.Auth.TokenSecret = randomSecret()
		logger.Warn("auth.token_secret not set, using a random secret; tokens will not survive a restart")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func randomSecret() string {
	b := make([]byte, minTokenSecret)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe strict defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "https://localhost:8080",
		ListenAddr:   ":8080",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
			MaxConnections: 4096,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".talchat/data",
		},
		Attachments: AttachmentsConfig{
			Dir:             ".talchat/files",
			MaxFiles:        5,
			MaxFileBytes:    5 * 1000 * 1000,
			MaxContentRunes: 5000,
		},
		Auth: AuthConfig{
			TokenTTLSeconds: 86400,
			Issuer:          "talchat",
			CookieSecure:    true,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Services: map[string]map[string]any{
				"api": {"ratelimit": map[string]any{"profile": "login"}},
			},
			Interceptors: map[string]map[string]any{
				"ratelimit": {"profiles": map[string]any{
					"login": map[string]any{"name": "login", "requests_per_window": 10, "window_seconds": 60},
				}},
			},
		},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.PublicOrigin = "http://localhost:8080"
	cfg.Auth.CookieSecure = false
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if len(fc.Server.TrustedProxies) > 0 {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
		if fc.Server.MaxConnections != 0 {
			cfg.Server.MaxConnections = fc.Server.MaxConnections
		}
		if fc.Server.BootstrapAdmin != nil {
			cfg.Server.BootstrapAdmin = *fc.Server.BootstrapAdmin
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if fc.Store.DSN != "" {
			cfg.Store.DSN = fc.Store.DSN
		}
	}

	if fc.Attachments != nil {
		if fc.Attachments.Dir != "" {
			cfg.Attachments.Dir = fc.Attachments.Dir
		}
		if fc.Attachments.MaxFiles != 0 {
			cfg.Attachments.MaxFiles = fc.Attachments.MaxFiles
		}
		if fc.Attachments.MaxFileBytes != 0 {
			cfg.Attachments.MaxFileBytes = fc.Attachments.MaxFileBytes
		}
		if fc.Attachments.MaxContentRunes != 0 {
			cfg.Attachments.MaxContentRunes = fc.Attachments.MaxContentRunes
		}
	}

	if fc.Auth != nil {
		if fc.Auth.TokenSecret != "" {
			cfg.Auth.TokenSecret = fc.Auth.TokenSecret
		}
		if fc.Auth.TokenTTLSeconds != 0 {
			cfg.Auth.TokenTTLSeconds = fc.Auth.TokenTTLSeconds
		}
		if fc.Auth.Issuer != "" {
			cfg.Auth.Issuer = fc.Auth.Issuer
		}
		if fc.Auth.CookieSecure != nil {
			cfg.Auth.CookieSecure = *fc.Auth.CookieSecure
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		// AllowSensitive is a bool, overlay when section present
		cfg.Logging.AllowSensitive = fc.Logging.AllowSensitive
	}

	if fc.HTTP != nil {
		if len(fc.HTTP.Services) > 0 {
			if cfg.HTTP.Services == nil {
				cfg.HTTP.Services = make(map[string]map[string]any)
			}
			for name, svcCfg := range fc.HTTP.Services {
				cfg.HTTP.Services[name] = svcCfg
			}
		}
		if len(fc.HTTP.Interceptors) > 0 {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			for name, intCfg := range fc.HTTP.Interceptors {
				cfg.HTTP.Interceptors[name] = intCfg
			}
		}
	}
}

func overlayEnv(cfg *Config, env envSecrets) {
	if env.TokenSecret != "" {
		cfg.Auth.TokenSecret = env.TokenSecret
	}
	if env.StoreDSN != "" {
		cfg.Store.DSN = env.StoreDSN
	}
	if env.AdminPassword != "" {
		cfg.Server.BootstrapAdmin.Password = env.AdminPassword
	}
	if env.PublicOrigin != "" {
		cfg.PublicOrigin = env.PublicOrigin
	}
	if env.ListenAddr != "" {
		cfg.ListenAddr = env.ListenAddr
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Store.DataDir, f.DataDir)
	set(&cfg.Cache.Driver, f.CacheDriver)
	set(&cfg.Server.BootstrapAdmin.Username, f.AdminUsername)
	set(&cfg.Server.BootstrapAdmin.Password, f.AdminPassword)
	set(&cfg.Logging.Level, f.LoggingLevel)
}

func validate(cfg *Config) error {
	if err := validateEnums(cfg); err != nil {
		return err
	}
	if err := validatePublicOrigin(cfg); err != nil {
		return err
	}

	if len(cfg.Auth.TokenSecret) < minTokenSecret {
		return fmt.Errorf("auth.token_secret must be at least %d bytes (set %s_TOKEN_SECRET)", minTokenSecret, EnvPrefix)
	}
	if cfg.Auth.TokenTTLSeconds <= 0 {
		return fmt.Errorf("auth.token_ttl_seconds must be positive")
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the postgres driver (set %s_STORE_DSN)", EnvPrefix)
	}
	if cfg.Attachments.Dir == "" {
		return fmt.Errorf("attachments.dir must not be empty")
	}
	if cfg.Attachments.MaxFiles < 0 || cfg.Attachments.MaxFileBytes < 0 || cfg.Attachments.MaxContentRunes < 0 {
		return fmt.Errorf("attachments limits must not be negative")
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	return nil
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of sqlite, postgres", cfg.Store.Driver)
	}

	// cache.driver (empty defaults to memory)
	switch cfg.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "memory"
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	return validateRatelimitConfig(cfg)
}

// validateRatelimitConfig validates ratelimit interceptor configuration.
// Profiles are defined at [http.interceptors.ratelimit.profiles.<name>].
// Services opt-in via [http.services.<svc>.ratelimit] with profile = "<name>".
// If a service references a profile, that profile must exist.
func validateRatelimitConfig(cfg *Config) error {
	profiles := make(map[string]bool)
	if rlCfg, ok := cfg.HTTP.Interceptors["ratelimit"]; ok {
		if profilesRaw, ok := rlCfg["profiles"]; ok {
			profilesMap, ok := profilesRaw.(map[string]any)
			if !ok {
				return fmt.Errorf("http.interceptors.ratelimit.profiles must be a map")
			}
			for name, profile := range profilesMap {
				if _, ok := profile.(map[string]any); !ok {
					return fmt.Errorf("http.interceptors.ratelimit.profiles.%s must be a map", name)
				}
				profiles[name] = true
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		rlMap, ok := svcCfg["ratelimit"].(map[string]any)
		if !ok {
			continue
		}
		if profileStr, ok := rlMap["profile"].(string); ok && !profiles[profileStr] {
			return fmt.Errorf("http.services.%s.ratelimit references undefined profile %q", svcName, profileStr)
		}
	}
	return nil
}

// validatePublicOrigin checks the public_origin config value when set.
// Must be an absolute URL with http/https scheme, a host, no userinfo,
// query, fragment, or path. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	if cfg.PublicOrigin == "" {
		return nil
	}

	origin := cfg.PublicOrigin
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("invalid public_origin %q: must be an absolute URL with http or https scheme", origin)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https, got %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}
	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string", origin)
	}
	if u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a fragment", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}
	return nil
}
