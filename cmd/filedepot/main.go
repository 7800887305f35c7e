// Package main is the entrypoint for the filedepot server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/cache"
	"github.com/mkarimof/filedepot/internal/components/auth"
	"github.com/mkarimof/filedepot/internal/components/dashboard"
	filesapi "github.com/mkarimof/filedepot/internal/components/files"
	"github.com/mkarimof/filedepot/internal/components/folders"
	"github.com/mkarimof/filedepot/internal/components/shares"
	"github.com/mkarimof/filedepot/internal/config"
	filesvc "github.com/mkarimof/filedepot/internal/files"
	"github.com/mkarimof/filedepot/internal/foldertree"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/ratelimit"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/sharing"
	"github.com/mkarimof/filedepot/internal/store"
	"github.com/mkarimof/filedepot/internal/webdav"

	// Register store drivers
	_ "github.com/mkarimof/filedepot/internal/store/memory"
	_ "github.com/mkarimof/filedepot/internal/store/sqlite"

	// Register blob drivers
	_ "github.com/mkarimof/filedepot/internal/blob/localdisk"
	_ "github.com/mkarimof/filedepot/internal/blob/minio"

	// Register cache drivers
	_ "github.com/mkarimof/filedepot/internal/cache/loader"
)

// envDefault returns the value of an environment variable, or fallback if
// unset. A .env file loaded at startup feeds these.
func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func main() {
	// Load .env if present so flag defaults can come from the environment.
	// Missing file is fine; explicit flags still win.
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", envDefault("FILEDEPOT_CONFIG", ""), "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", envDefault("FILEDEPOT_MODE", ""), "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", envDefault("FILEDEPOT_LISTEN", ""), "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", envDefault("FILEDEPOT_PUBLIC_ORIGIN", ""), "Public origin for share links (overrides config)")
	tlsMode := flag.String("tls-mode", envDefault("FILEDEPOT_TLS_MODE", ""), "TLS mode: off, static, selfsigned, or acme (overrides config)")
	storeDriver := flag.String("store-driver", envDefault("FILEDEPOT_STORE_DRIVER", ""), "Store driver: sqlite or memory (overrides config)")
	dataDir := flag.String("data-dir", envDefault("FILEDEPOT_DATA_DIR", ""), "Data directory for the sqlite store (overrides config)")
	blobDriver := flag.String("blob-driver", envDefault("FILEDEPOT_BLOB_DRIVER", ""), "Blob driver: localdisk or minio (overrides config)")
	blobRoot := flag.String("blob-root", envDefault("FILEDEPOT_BLOB_ROOT", ""), "Content directory for the localdisk blob driver (overrides config)")
	cacheDriver := flag.String("cache-driver", envDefault("FILEDEPOT_CACHE_DRIVER", ""), "Cache driver: memory or valkey (overrides config)")
	cacheAddr := flag.String("cache-addr", envDefault("FILEDEPOT_CACHE_ADDR", ""), "Valkey address host:port (overrides config)")
	adminUsername := flag.String("admin-username", envDefault("FILEDEPOT_ADMIN_USERNAME", ""), "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", envDefault("FILEDEPOT_ADMIN_PASSWORD", ""), "Bootstrap admin password (overrides config)")
	loggingLevel := flag.String("logging-level", envDefault("FILEDEPOT_LOGGING_LEVEL", ""), "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:    listenAddr,
			PublicOrigin:  publicOrigin,
			TLSMode:       tlsMode,
			StoreDriver:   storeDriver,
			DataDir:       dataDir,
			BlobDriver:    blobDriver,
			BlobRootDir:   blobRoot,
			CacheDriver:   cacheDriver,
			CacheAddr:     cacheAddr,
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

	// Create logger with configured level
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	// Create the metadata store
	stores, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	// Create the blob store
	blobs, err := blob.New(&blob.Config{
		Driver:    cfg.Blob.Driver,
		RootDir:   cfg.Blob.RootDir,
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		Bucket:    cfg.Blob.Bucket,
		UseSSL:    cfg.Blob.UseSSL,
	})
	if err != nil {
		logger.Error("failed to create blob store", "driver", cfg.Blob.Driver, "error", err)
		os.Exit(1)
	}

	// Create the cache (sessions, share resolution)
	cacheStore, err := cache.New(&cache.Config{
		Driver:            cfg.Cache.Driver,
		Addr:              cfg.Cache.Addr,
		Password:          cfg.Cache.Password,
		DB:                cfg.Cache.DB,
		DefaultTTLSeconds: cfg.Cache.DefaultTTLSeconds,
	})
	if err != nil {
		logger.Error("failed to create cache", "driver", cfg.Cache.Driver, "error", err)
		os.Exit(1)
	}
	defer cacheStore.Close()

	// Create identity components
	userAuth := identity.NewUserAuth(stores, 12) // bcrypt cost
	sessions := identity.NewCacheSessionRepo(cacheStore)

	// Bootstrap admin user
	created, err := identity.NewBootstrap(stores, userAuth, logger).Run(
		context.Background(),
		identity.SeededUser{
			Username: cfg.Server.BootstrapAdmin.Username,
			Password: cfg.Server.BootstrapAdmin.Password,
		},
		nil,
	)
	if err != nil {
		logger.Error("failed to bootstrap admin", "error", err)
		os.Exit(1)
	}
	if created > 0 {
		logger.Info("bootstrapped users", "created", created)
	}

	// Create domain services
	folderService := foldertree.NewService(stores, blobs)
	fileService := filesvc.NewService(stores, blobs)
	shareService := sharing.NewService(stores)

	// Build the router with the middleware chain
	router, err := server.NewRouter(server.RouterOptions{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		Users:    stores,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	// Mount handlers
	router.Get("/api/health", server.HealthHandler())

	// Throttle credential endpoints by client IP
	proxies, err := server.NewTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy config", "error", err)
		os.Exit(1)
	}
	loginLimiter := ratelimit.New(cacheStore, &ratelimit.Config{
		AttemptsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:login:",
		KeyFunc:           proxies.ClientIPString,
	})

	secureCookies := cfg.TLS.Mode != "off"
	auth.NewHandler(userAuth, sessions, cfg.Sessions.TTL(), secureCookies, logger).
		WithLimiter(loginLimiter).
		Routes(router)
	folders.NewHandler(folderService, logger).Routes(router)
	filesapi.NewHandler(fileService, cfg.Uploads.MaxUploadBytes, logger).Routes(router)
	shares.NewHandler(shareService, fileService, cfg.PublicOrigin, logger).Routes(router)
	dashboard.NewHandler(folderService, fileService, stores, logger).Routes(router)

	// Mount the WebDAV share export
	davSettings, err := webdav.DecodeSettings(cfg.BuildServiceConfig("webdav"))
	if err != nil {
		logger.Error("invalid webdav settings", "error", err)
		os.Exit(1)
	}
	router.Handle("/webdav/share/*", webdav.NewHandler(shareService, fileService, cacheStore, davSettings, logger))

	// Create and start server
	srv := server.New(cfg, router, logger)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
