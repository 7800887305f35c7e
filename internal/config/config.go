// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the public origin (scheme + host + port) used when
	// building share links. Example: "https://files.example.com"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on.
	// Example: ":9400"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// TLS configuration
	TLS TLSConfig `toml:"tls"`

	// Store configuration (metadata persistence)
	Store StoreConfig `toml:"store"`

	// Blob configuration (content storage)
	Blob BlobConfig `toml:"blob"`

	// Cache configuration (sessions, transient state)
	Cache CacheConfig `toml:"cache"`

	// Sessions configuration
	Sessions SessionsConfig `toml:"sessions"`

	// Uploads configuration
	Uploads UploadsConfig `toml:"uploads"`

	// CORS configuration
	CORS CORSConfig `toml:"cors"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// HTTP holds per-service HTTP configuration.
	// Services are configured under [http.services.<svcname>].
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config from the map it is handed.
	Services map[string]map[string]any `toml:"services"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// X-Forwarded-* headers are only honored from these addresses.
	// Default: ["127.0.0.0/8", "::1/128"]
	TrustedProxies []string `toml:"trusted_proxies"`

	// BootstrapAdmin holds admin bootstrap configuration.
	BootstrapAdmin BootstrapAdminConfig `toml:"bootstrap_admin"`
}

// BootstrapAdminConfig holds bootstrap admin credentials.
type BootstrapAdminConfig struct {
	// Username for the admin. Default: "admin"
	Username string `toml:"username"`

	// Password for the admin. Required on first boot when set.
	Password string `toml:"password"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// HTTPPort for HTTP listener (used for ACME challenges and redirects)
	HTTPPort int `toml:"http_port"`

	// HTTPSPort for HTTPS listener
	HTTPSPort int `toml:"https_port"`

	// SelfSignedDir is where self-signed certs are stored
	SelfSignedDir string `toml:"self_signed_dir"`

	// ACME configuration
	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME/Let's Encrypt settings.
type ACMEConfig struct {
	// Email for ACME registration
	Email string `toml:"email"`

	// Domain is the domain to obtain a certificate for
	Domain string `toml:"domain"`

	// Directory is the ACME server URL (default: Let's Encrypt production)
	Directory string `toml:"directory"`

	// StorageDir is where ACME certificates and account info are stored
	StorageDir string `toml:"storage_dir"`

	// UseStaging uses Let's Encrypt staging (for testing)
	UseStaging bool `toml:"use_staging"`
}

// StoreConfig holds metadata persistence settings.
type StoreConfig struct {
	// Driver is the store driver name: sqlite, memory
	Driver string `toml:"driver"`

	// DataDir is the directory for data files (sqlite db)
	DataDir string `toml:"data_dir"`
}

// BlobConfig holds content storage settings.
type BlobConfig struct {
	// Driver is the blob driver name: localdisk, minio
	Driver string `toml:"driver"`

	// RootDir is the content directory (localdisk)
	RootDir string `toml:"root_dir"`

	// Endpoint, AccessKey, SecretKey, Bucket, UseSSL configure minio
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: memory, valkey
	Driver string `toml:"driver"`

	// Addr is the server address for the valkey driver (host:port)
	Addr string `toml:"addr"`

	// Password is the optional server password (valkey)
	Password string `toml:"password"`

	// DB is the database number (valkey)
	DB int `toml:"db"`

	// DefaultTTLSeconds applies to cache entries written without a TTL
	DefaultTTLSeconds int `toml:"default_ttl_seconds"`
}

// SessionsConfig holds login session settings.
type SessionsConfig struct {
	// TTLHours is the session lifetime in hours. Default: 24.
	TTLHours int `toml:"ttl_hours"`
}

// TTL returns the session lifetime as a duration.
func (s *SessionsConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(s.TTLHours) * time.Hour
}

// UploadsConfig holds upload limits.
type UploadsConfig struct {
	// MaxUploadBytes caps the size of a single upload. Default: 100 MiB.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	// AllowedOrigins lists origins permitted to call the API.
	// Default: none (same-origin only).
	AllowedOrigins []string `toml:"allowed_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info in prod mode, debug in dev mode.
	Level string `toml:"level"`
}

// BuildServiceConfig returns the raw service config map for a given service
// name, or nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	// Return a copy to prevent mutation
	result := make(map[string]any)
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  PublicOrigin: %q,\n", c.PublicOrigin))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString("  Server: {\n")
	sb.WriteString(fmt.Sprintf("    TrustedProxies: %v,\n", c.Server.TrustedProxies))
	sb.WriteString("    BootstrapAdmin: {\n")
	sb.WriteString(fmt.Sprintf("      Username: %q,\n", c.Server.BootstrapAdmin.Username))
	sb.WriteString("      Password: [REDACTED],\n")
	sb.WriteString("    },\n")
	sb.WriteString("  },\n")
	sb.WriteString("  TLS: {\n")
	sb.WriteString(fmt.Sprintf("    Mode: %q,\n", c.TLS.Mode))
	sb.WriteString(fmt.Sprintf("    CertFile: %q,\n", c.TLS.CertFile))
	sb.WriteString(fmt.Sprintf("    KeyFile: %q,\n", c.TLS.KeyFile))
	sb.WriteString(fmt.Sprintf("    HTTPPort: %d,\n", c.TLS.HTTPPort))
	sb.WriteString(fmt.Sprintf("    HTTPSPort: %d,\n", c.TLS.HTTPSPort))
	sb.WriteString(fmt.Sprintf("    SelfSignedDir: %q,\n", c.TLS.SelfSignedDir))
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Store.DataDir))
	sb.WriteString("  },\n")
	sb.WriteString("  Blob: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Blob.Driver))
	sb.WriteString(fmt.Sprintf("    RootDir: %q,\n", c.Blob.RootDir))
	sb.WriteString(fmt.Sprintf("    Endpoint: %q,\n", c.Blob.Endpoint))
	sb.WriteString(fmt.Sprintf("    Bucket: %q,\n", c.Blob.Bucket))
	sb.WriteString("    AccessKey: [REDACTED],\n")
	sb.WriteString("    SecretKey: [REDACTED],\n")
	sb.WriteString(fmt.Sprintf("    UseSSL: %v,\n", c.Blob.UseSSL))
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString(fmt.Sprintf("    Addr: %q,\n", c.Cache.Addr))
	sb.WriteString("    Password: [REDACTED],\n")
	sb.WriteString(fmt.Sprintf("    DB: %d,\n", c.Cache.DB))
	sb.WriteString(fmt.Sprintf("    DefaultTTLSeconds: %d,\n", c.Cache.DefaultTTLSeconds))
	sb.WriteString("  },\n")
	sb.WriteString(fmt.Sprintf("  Sessions: { TTLHours: %d },\n", c.Sessions.TTLHours))
	sb.WriteString(fmt.Sprintf("  Uploads: { MaxUploadBytes: %d },\n", c.Uploads.MaxUploadBytes))
	sb.WriteString(fmt.Sprintf("  CORS: { AllowedOrigins: %v },\n", c.CORS.AllowedOrigins))
	sb.WriteString(fmt.Sprintf("  Logging: { Level: %q },\n", c.Logging.Level))
	sb.WriteString("  HTTP: {\n")
	sb.WriteString(fmt.Sprintf("    ServicesCount: %d,\n", len(c.HTTP.Services)))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}
