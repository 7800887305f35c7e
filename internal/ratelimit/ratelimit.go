// Package ratelimit throttles requests using the cache subsystem's atomic
// counters. Limits are shared across instances when the cache is backed by
// valkey.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/cache"
)

// Config defines rate limiting parameters.
type Config struct {
	// AttemptsPerWindow is the maximum requests allowed per window.
	AttemptsPerWindow int64

	// Window is the time window for rate limiting.
	Window time.Duration

	// KeyPrefix is prepended to all rate limit keys.
	KeyPrefix string

	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// peer address with the port stripped. Deployments behind a proxy should
	// supply a trusted-proxy aware extractor.
	KeyFunc func(r *http.Request) string
}

// DefaultConfig returns defaults suitable for credential endpoints.
func DefaultConfig() *Config {
	return &Config{
		AttemptsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:",
	}
}

// Limiter counts requests per key in a sliding window backed by the cache.
type Limiter struct {
	counters cache.Counter
	config   *Config
}

// New creates a rate limiter over the given counter backend.
func New(c cache.Counter, cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = peerAddr
	}
	return &Limiter{
		counters: c,
		config:   cfg,
	}
}

// Result contains the rate limit check result.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Allow records an attempt for the key and reports whether it is within the
// window's budget.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	count, err := l.counters.Increment(ctx, l.config.KeyPrefix+key, 1, l.config.Window)
	if err != nil {
		return nil, err
	}

	remaining := l.config.AttemptsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= l.config.AttemptsPerWindow,
		Remaining: remaining,
		ResetAt:   time.Now().Add(l.config.Window),
	}, nil
}

// Reset clears the recorded attempts for a key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.counters.Reset(ctx, l.config.KeyPrefix+key)
}

// Middleware throttles requests by the configured key. Counter backend
// failures let the request through; availability beats strictness here.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.config.KeyFunc(r)
		result, err := l.Allow(r.Context(), key)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", l.config.AttemptsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(result.ResetAt).Seconds())))
			api.WriteError(w, http.StatusTooManyRequests, api.ReasonRateLimited, "too many attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// peerAddr strips the port from RemoteAddr.
func peerAddr(r *http.Request) string {
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
