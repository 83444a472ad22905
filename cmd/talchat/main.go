// Package main is the entrypoint for the talchat server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vedesh-padal/tal-chat-app/internal/components/attachments"
	"github.com/vedesh-padal/tal-chat-app/internal/components/chats"
	"github.com/vedesh-padal/tal-chat-app/internal/components/identity"
	"github.com/vedesh-padal/tal-chat-app/internal/components/invitations"
	"github.com/vedesh-padal/tal-chat-app/internal/components/messages"
	"github.com/vedesh-padal/tal-chat-app/internal/components/presence"
	"github.com/vedesh-padal/tal-chat-app/internal/frameworks/service"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/cache"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/config"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/deps"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/http/realip"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/http/server"
	"github.com/vedesh-padal/tal-chat-app/internal/platform/logutil"
	"github.com/vedesh-padal/tal-chat-app/internal/store"

	// Register cache drivers
	_ "github.com/vedesh-padal/tal-chat-app/internal/platform/cache/loader"
	// Register HTTP services
	_ "github.com/vedesh-padal/tal-chat-app/internal/services/loader"
	// Register store drivers
	_ "github.com/vedesh-padal/tal-chat-app/internal/store/postgres"
	_ "github.com/vedesh-padal/tal-chat-app/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin used in attachment URLs (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite or postgres (overrides config)")
	dataDir := flag.String("data-dir", "", "SQLite data directory (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	adminUsername := flag.String("admin-username", "", "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors
	bootstrapLogger := logutil.NewJSON(os.Stdout, "info")

	// mode preset -> TOML file -> environment -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:    listenAddr,
			PublicOrigin:  publicOrigin,
			StoreDriver:   storeDriver,
			DataDir:       dataDir,
			CacheDriver:   cacheDriver,
			AdminUsername: adminUsername,
			AdminPassword: adminPassword,
			LoggingLevel:  loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logutil.NewJSON(os.Stdout, cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	st, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		DSN:     cfg.Store.DSN,
	})
	if err != nil {
		return err
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()
	if err := st.Init(initCtx); err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store ready", "driver", st.Name())

	cacheInstance, err := cache.New(cfg.Cache.Driver, cfg.Cache.DriverConfig())
	if err != nil {
		return err
	}
	defer cacheInstance.Close()

	tokens, err := identity.NewTokens(identity.TokenConfig{
		Secret: cfg.Auth.TokenSecret,
		TTL:    time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second,
		Issuer: cfg.Auth.Issuer,
	}, cacheInstance)
	if err != nil {
		return err
	}
	accounts := identity.NewService(st, identity.NewHasher(identity.DefaultHashParams), tokens, logger.With("component", "identity"))

	if admin := cfg.Server.BootstrapAdmin; admin.Username != "" {
		seed := identity.AdminSeed{Username: admin.Username, Email: admin.Email, Password: admin.Password}
		// An explicit password is re-applied on every boot.
		if err := accounts.EnsureAdmin(initCtx, seed, admin.Password != ""); err != nil {
			return err
		}
	}

	files, err := attachments.NewLocal(attachments.Config{
		Dir:          cfg.Attachments.Dir,
		PublicOrigin: cfg.PublicOrigin,
		MaxFileBytes: cfg.Attachments.MaxFileBytes,
	})
	if err != nil {
		return err
	}

	hub := presence.NewHub(logger.With("component", "presence"))

	deps.SetDeps(&deps.Deps{
		Config:      cfg,
		Store:       st,
		Cache:       cacheInstance,
		RealIP:      realip.NewTrustedProxies(cfg.Server.TrustedProxies),
		Identity:    accounts,
		Tokens:      tokens,
		Invitations: invitations.NewEngine(st, logger.With("component", "invitations")),
		Chats:       chats.NewRepository(st, files, hub, logger.With("component", "chats")),
		Messages: messages.NewRepository(st, files, hub, messages.Limits{
			MaxContentRunes: cfg.Attachments.MaxContentRunes,
			MaxFiles:        cfg.Attachments.MaxFiles,
		}, logger.With("component", "messages")),
		Files: files,
		Hub:   hub,
	})

	services := make(map[string]service.Service)
	for _, name := range service.CoreServices {
		factory := service.Get(name)
		if factory == nil {
			logger.Warn("core service not registered", "service", name)
			continue
		}
		svc, err := factory(cfg.BuildServiceConfig(name), logger)
		if err != nil {
			return err
		}
		services[name] = svc
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("server started, press Ctrl+C to stop", "addr", cfg.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
