// Package blob abstracts content storage behind a named driver registry.
// File metadata lives in the store; blob holds only the bytes, addressed by
// an opaque key the files service mints.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotFound is returned when no content exists under the given key.
var ErrNotFound = errors.New("blob not found")

// Store defines the interface for a content storage backend.
type Store interface {
	// Init prepares the backend (create directories, ensure bucket).
	Init(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error

	// Name returns the driver name (localdisk, minio).
	Name() string

	// Put stores content under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the content stored under key. The caller must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// Config holds configuration for driver selection and initialization.
type Config struct {
	// Driver is the driver name: localdisk, minio
	Driver string `json:"driver"`

	// RootDir is the content directory (localdisk)
	RootDir string `json:"root_dir"`

	// Endpoint, AccessKey, SecretKey, Bucket, UseSSL configure minio
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// Factory is a function that creates a blob store instance.
type Factory func(cfg *Config) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register registers a blob driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a blob store instance based on the configuration.
func New(cfg *Config) (Store, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown blob driver: %s", cfg.Driver)
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
