// Package valkey provides a Valkey/Redis cache driver.
package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/mkarimof/filedepot/internal/cache"
)

func init() {
	cache.Register("valkey", func(cfg *cache.Config) (cache.Store, error) {
		return New(cfg)
	})
}

// Store implements cache.Store on a Valkey server.
type Store struct {
	client     valkey.Client
	defaultTTL time.Duration
}

// New connects to the configured server and verifies it with a ping.
func New(cfg *cache.Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr is required for valkey driver")
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
		// Server-assisted client-side caching is unnecessary for this
		// workload and unsupported by some compatible servers.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping failed: %w", err)
	}

	return &Store{
		client:     client,
		defaultTTL: cfg.DefaultTTL(),
	}, nil
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(ttl).Build(),
	).Error()
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to the counter and returns the new value.
// The TTL is attached when the increment created the key.
func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	n, err := s.client.Do(ctx, s.client.B().Incrby().Key(key).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, err
	}
	if n == delta {
		if err := s.client.Do(ctx,
			s.client.B().Expire().Key(key).Seconds(int64(ttl/time.Second)).Build(),
		).Error(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// GetCount returns the current counter value.
func (s *Store) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsInt64()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Reset sets the counter to 0.
func (s *Store) Reset(ctx context.Context, key string) error {
	return s.Delete(ctx, key)
}

// Close releases the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

var _ cache.Store = (*Store)(nil)
