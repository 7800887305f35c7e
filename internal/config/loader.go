// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
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
	TLSMode       *string
	StoreDriver   *string
	DataDir       *string
	BlobDriver    *string
	BlobRootDir   *string
	CacheDriver   *string
	CacheAddr     *string
	AdminUsername *string
	AdminPassword *string
	LoggingLevel  *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode         string `toml:"mode"`
	PublicOrigin string `toml:"public_origin"`
	ListenAddr   string `toml:"listen_addr"`

	Server   *serverConfig   `toml:"server"`
	TLS      *TLSConfig      `toml:"tls"`
	Store    *StoreConfig    `toml:"store"`
	Blob     *BlobConfig     `toml:"blob"`
	Cache    *CacheConfig    `toml:"cache"`
	Sessions *SessionsConfig `toml:"sessions"`
	Uploads  *UploadsConfig  `toml:"uploads"`
	CORS     *CORSConfig     `toml:"cors"`
	Logging  *LoggingConfig  `toml:"logging"`
	HTTP     *httpFileConfig `toml:"http"`
}

type httpFileConfig struct {
	Services map[string]map[string]any `toml:"services"`
}

type serverConfig struct {
	TrustedProxies []string        `toml:"trusted_proxies"`
	BootstrapAdmin *bootstrapAdmin `toml:"bootstrap_admin"`
}

type bootstrapAdmin struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load.
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

	modeStr := "prod"
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

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return ProdConfig()
}

// ProdConfig returns production-safe defaults.
func ProdConfig() *Config {
	return &Config{
		Mode:         string(ModeProd),
		PublicOrigin: "https://localhost:9400",
		ListenAddr:   ":9400",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
			BootstrapAdmin: BootstrapAdminConfig{
				Username: "admin",
			},
		},
		TLS: TLSConfig{
			Mode:          "selfsigned",
			HTTPPort:      9480,
			HTTPSPort:     9400,
			SelfSignedDir: ".filedepot/certs",
			ACME: ACMEConfig{
				Directory:  "https://acme-v02.api.letsencrypt.org/directory",
				StorageDir: ".filedepot/acme",
				UseStaging: false,
			},
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".filedepot/data",
		},
		Blob: BlobConfig{
			Driver:  "localdisk",
			RootDir: ".filedepot/blobs",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Sessions: SessionsConfig{
			TTLHours: 24,
		},
		Uploads: UploadsConfig{
			MaxUploadBytes: 100 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := ProdConfig()
	cfg.Mode = string(ModeDev)
	cfg.PublicOrigin = "http://localhost:9400"
	cfg.TLS.Mode = "off"
	cfg.TLS.ACME.Directory = "https://acme-staging-v02.api.letsencrypt.org/directory"
	cfg.TLS.ACME.UseStaging = true
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
		if fc.Server.BootstrapAdmin != nil {
			if fc.Server.BootstrapAdmin.Username != "" {
				cfg.Server.BootstrapAdmin.Username = fc.Server.BootstrapAdmin.Username
			}
			cfg.Server.BootstrapAdmin.Password = fc.Server.BootstrapAdmin.Password
		}
	}

	if fc.TLS != nil {
		if fc.TLS.Mode != "" {
			cfg.TLS.Mode = fc.TLS.Mode
		}
		if fc.TLS.CertFile != "" {
			cfg.TLS.CertFile = fc.TLS.CertFile
		}
		if fc.TLS.KeyFile != "" {
			cfg.TLS.KeyFile = fc.TLS.KeyFile
		}
		if fc.TLS.HTTPPort != 0 {
			cfg.TLS.HTTPPort = fc.TLS.HTTPPort
		}
		if fc.TLS.HTTPSPort != 0 {
			cfg.TLS.HTTPSPort = fc.TLS.HTTPSPort
		}
		if fc.TLS.SelfSignedDir != "" {
			cfg.TLS.SelfSignedDir = fc.TLS.SelfSignedDir
		}
		if fc.TLS.ACME.Email != "" {
			cfg.TLS.ACME.Email = fc.TLS.ACME.Email
		}
		if fc.TLS.ACME.Domain != "" {
			cfg.TLS.ACME.Domain = fc.TLS.ACME.Domain
		}
		if fc.TLS.ACME.Directory != "" {
			cfg.TLS.ACME.Directory = fc.TLS.ACME.Directory
		}
		if fc.TLS.ACME.StorageDir != "" {
			cfg.TLS.ACME.StorageDir = fc.TLS.ACME.StorageDir
		}
		// UseStaging is a bool, overlay when the section is present
		cfg.TLS.ACME.UseStaging = fc.TLS.ACME.UseStaging
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
	}

	if fc.Blob != nil {
		if fc.Blob.Driver != "" {
			cfg.Blob.Driver = fc.Blob.Driver
		}
		if fc.Blob.RootDir != "" {
			cfg.Blob.RootDir = fc.Blob.RootDir
		}
		if fc.Blob.Endpoint != "" {
			cfg.Blob.Endpoint = fc.Blob.Endpoint
		}
		if fc.Blob.AccessKey != "" {
			cfg.Blob.AccessKey = fc.Blob.AccessKey
		}
		if fc.Blob.SecretKey != "" {
			cfg.Blob.SecretKey = fc.Blob.SecretKey
		}
		if fc.Blob.Bucket != "" {
			cfg.Blob.Bucket = fc.Blob.Bucket
		}
		cfg.Blob.UseSSL = fc.Blob.UseSSL
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.Addr != "" {
			cfg.Cache.Addr = fc.Cache.Addr
		}
		if fc.Cache.Password != "" {
			cfg.Cache.Password = fc.Cache.Password
		}
		if fc.Cache.DB != 0 {
			cfg.Cache.DB = fc.Cache.DB
		}
		if fc.Cache.DefaultTTLSeconds != 0 {
			cfg.Cache.DefaultTTLSeconds = fc.Cache.DefaultTTLSeconds
		}
	}

	if fc.Sessions != nil && fc.Sessions.TTLHours != 0 {
		cfg.Sessions.TTLHours = fc.Sessions.TTLHours
	}
	if fc.Uploads != nil && fc.Uploads.MaxUploadBytes != 0 {
		cfg.Uploads.MaxUploadBytes = fc.Uploads.MaxUploadBytes
	}
	if fc.CORS != nil && len(fc.CORS.AllowedOrigins) > 0 {
		cfg.CORS.AllowedOrigins = fc.CORS.AllowedOrigins
	}
	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}

	if fc.HTTP != nil && len(fc.HTTP.Services) > 0 {
		if cfg.HTTP.Services == nil {
			cfg.HTTP.Services = make(map[string]map[string]any)
		}
		for name, svcCfg := range fc.HTTP.Services {
			cfg.HTTP.Services[name] = svcCfg
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	setStr := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}
	setStr(&cfg.ListenAddr, f.ListenAddr)
	setStr(&cfg.PublicOrigin, f.PublicOrigin)
	setStr(&cfg.TLS.Mode, f.TLSMode)
	setStr(&cfg.Store.Driver, f.StoreDriver)
	setStr(&cfg.Store.DataDir, f.DataDir)
	setStr(&cfg.Blob.Driver, f.BlobDriver)
	setStr(&cfg.Blob.RootDir, f.BlobRootDir)
	setStr(&cfg.Cache.Driver, f.CacheDriver)
	setStr(&cfg.Cache.Addr, f.CacheAddr)
	setStr(&cfg.Server.BootstrapAdmin.Username, f.AdminUsername)
	setStr(&cfg.Server.BootstrapAdmin.Password, f.AdminPassword)
	setStr(&cfg.Logging.Level, f.LoggingLevel)
}

func validateEnum(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

// validateEnums checks every enum-valued field, failing fast on typos.
func validateEnums(cfg *Config) error {
	if err := validateEnum("mode", cfg.Mode, "prod", "dev"); err != nil {
		return err
	}
	if err := validateEnum("tls.mode", cfg.TLS.Mode, "off", "static", "selfsigned", "acme"); err != nil {
		return err
	}
	if err := validateEnum("store.driver", cfg.Store.Driver, "sqlite", "memory"); err != nil {
		return err
	}
	if err := validateEnum("blob.driver", cfg.Blob.Driver, "localdisk", "minio"); err != nil {
		return err
	}
	if err := validateEnum("cache.driver", cfg.Cache.Driver, "memory", "valkey"); err != nil {
		return err
	}
	if err := validateEnum("logging.level", cfg.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if cfg.TLS.Mode == "static" && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls.mode %q requires cert_file and key_file", cfg.TLS.Mode)
	}
	if cfg.TLS.Mode == "acme" && cfg.TLS.ACME.Domain == "" {
		return fmt.Errorf("tls.mode %q requires acme.domain", cfg.TLS.Mode)
	}
	if cfg.Cache.Driver == "valkey" && cfg.Cache.Addr == "" {
		return fmt.Errorf("cache.driver %q requires cache.addr", cfg.Cache.Driver)
	}
	return nil
}

// validatePublicOrigin fails fast on an unparseable public origin.
func validatePublicOrigin(cfg *Config) error {
	if cfg.PublicOrigin == "" {
		return nil
	}
	u, err := url.Parse(cfg.PublicOrigin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must be scheme://host[:port]", cfg.PublicOrigin)
	}
	return nil
}

// LogLevel converts the configured level string to a slog.Level.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
