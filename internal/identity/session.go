package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/mkarimof/filedepot/internal/cache"
)

// Session represents an active user session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionRepo provides session storage operations.
type SessionRepo interface {
	// Create creates a new session for the user.
	Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error)

	// Get retrieves a session by token. Returns ErrSessionNotFound if not
	// found and ErrSessionExpired if past its expiry.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes a session (logout).
	Delete(ctx context.Context, token string) error
}

// GenerateToken creates a cryptographically secure random token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

const sessionKeyPrefix = "session:"

// CacheSessionRepo stores sessions in the cache layer, so sessions survive
// restarts when the cache driver is a server and expire by TTL either way.
type CacheSessionRepo struct {
	cache cache.Cache
}

// NewCacheSessionRepo creates a session repository on the given cache.
func NewCacheSessionRepo(c cache.Cache) *CacheSessionRepo {
	return &CacheSessionRepo{cache: c}
}

func (r *CacheSessionRepo) Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, sessionKeyPrefix+token, data, ttl); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *CacheSessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	data, err := r.cache.Get(ctx, sessionKeyPrefix+token)
	if err != nil {
		if errors.Is(err, cache.ErrExpired) {
			return nil, ErrSessionExpired
		}
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	// The cache TTL normally handles expiry; the explicit check covers
	// drivers with coarser eviction.
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &session, nil
}

func (r *CacheSessionRepo) Delete(ctx context.Context, token string) error {
	return r.cache.Delete(ctx, sessionKeyPrefix+token)
}

var _ SessionRepo = (*CacheSessionRepo)(nil)
