// Package cache provides TTL key-value storage behind a named driver
// registry. It backs session storage and share resolution caching.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Counter provides atomic increment operations.
type Counter interface {
	// Increment adds delta to the counter and returns the new value.
	// If the key doesn't exist, it's created with the given TTL.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// GetCount returns the current counter value. Returns 0 if not found.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset sets the counter to 0.
	Reset(ctx context.Context, key string) error
}

// Store combines Cache and Counter.
type Store interface {
	Cache
	Counter
}

// Default TTLs for cache categories.
const (
	TTLSession      = 24 * time.Hour  // Login session lifetime
	TTLShareResolve = 1 * time.Minute // Cached public share listings
)

// Config holds configuration for driver selection and initialization.
type Config struct {
	// Driver is the driver name: memory, valkey
	Driver string `json:"driver"`

	// Addr is the server address for the valkey driver (host:port)
	Addr string `json:"addr"`

	// Password is the optional server password (valkey)
	Password string `json:"password"`

	// DB is the database number (valkey)
	DB int `json:"db"`

	// DefaultTTLSeconds applies when Set is called with TTL 0
	DefaultTTLSeconds int `json:"default_ttl_seconds"`
}

// DefaultTTL returns the configured default TTL, falling back to the
// session lifetime.
func (c *Config) DefaultTTL() time.Duration {
	if c.DefaultTTLSeconds > 0 {
		return time.Duration(c.DefaultTTLSeconds) * time.Second
	}
	return TTLSession
}

// Factory is a function that creates a cache store instance.
type Factory func(cfg *Config) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register registers a cache driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a cache store instance based on the configuration.
func New(cfg *Config) (Store, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}

	return factory(cfg)
}

// AvailableDrivers returns the list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}
