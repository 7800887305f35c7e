package webdav

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Settings holds WebDAV export configuration, decoded from the
// [http.services.webdav] config map.
type Settings struct {
	// ShareCacheTTLSeconds bounds how long a resolved share token is served
	// from cache before the store is consulted again. Deactivation takes at
	// most this long to propagate to WebDAV clients.
	ShareCacheTTLSeconds int `mapstructure:"share_cache_ttl_seconds"`
}

// ApplyDefaults sets defaults for unset fields.
func (s *Settings) ApplyDefaults() {
	if s.ShareCacheTTLSeconds <= 0 {
		s.ShareCacheTTLSeconds = 60
	}
}

// ShareCacheTTL returns the share cache TTL as a duration.
func (s *Settings) ShareCacheTTL() time.Duration {
	return time.Duration(s.ShareCacheTTLSeconds) * time.Second
}

// DecodeSettings builds Settings from the raw service config map, applying
// defaults for anything unset. A nil map yields pure defaults.
func DecodeSettings(raw map[string]any) (*Settings, error) {
	s := &Settings{}
	if raw != nil {
		if err := mapstructure.Decode(raw, s); err != nil {
			return nil, fmt.Errorf("invalid webdav settings: %w", err)
		}
	}
	s.ApplyDefaults()
	return s, nil
}
