// Package webdav exports valid folder shares as read-only WebDAV mounts at
// /webdav/share/{token}. It wraps golang.org/x/net/webdav with share token
// auth and a virtual filesystem over the shared subtree.
package webdav

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"github.com/mkarimof/filedepot/internal/cache"
	"github.com/mkarimof/filedepot/internal/sharing"
	"github.com/mkarimof/filedepot/internal/store"
)

const pathPrefix = "/webdav/share/"
const shareCachePrefix = "webdav:share:"

// Handler serves read-only WebDAV access to shared folder subtrees.
type Handler struct {
	shares   *sharing.Service
	contents ContentOpener
	cache    cache.Cache
	settings *Settings
	logger   *slog.Logger
}

// NewHandler creates a WebDAV handler. The cache short-circuits repeated
// token lookups; WebDAV clients issue bursts of requests per mount.
func NewHandler(shares *sharing.Service, contents ContentOpener, c cache.Cache, settings *Settings, logger *slog.Logger) *Handler {
	if settings == nil {
		settings = &Settings{}
		settings.ApplyDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		shares:   shares,
		contents: contents,
		cache:    c,
		settings: settings,
		logger:   logger,
	}
}

// ServeHTTP handles WebDAV requests at /webdav/share/{token}/...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r.URL.Path)
	if token == "" {
		http.Error(w, "share token required", http.StatusBadRequest)
		return
	}

	if isWriteMethod(r.Method) {
		h.logger.Debug("webdav write method rejected", "method", r.Method)
		http.Error(w, "share is read-only", http.StatusMethodNotAllowed)
		return
	}

	share, err := h.lookupShare(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, sharing.ErrShareInvalid):
			http.Error(w, "share expired or deactivated", http.StatusGone)
		default:
			h.logger.Error("webdav share lookup failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	resolved, err := h.shares.ResolveForTransport(r.Context(), share)
	if err != nil {
		h.logger.Error("webdav share assembly failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	dav := &webdav.Handler{
		Prefix:     pathPrefix + token,
		FileSystem: newShareFS(resolved, h.contents),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				h.logger.Debug("webdav operation", "method", r.Method, "error", err)
			}
		},
	}
	dav.ServeHTTP(w, r)
}

// lookupShare validates the token, serving recently seen shares from cache.
// Cached entries are re-checked for expiry; deactivation propagates within
// the cache TTL.
func (h *Handler) lookupShare(ctx context.Context, token string) (*store.FolderShare, error) {
	key := shareCachePrefix + token

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, key); err == nil {
			var share store.FolderShare
			if err := json.Unmarshal(data, &share); err == nil {
				if !share.Valid(time.Now()) {
					return nil, sharing.ErrShareInvalid
				}
				return &share, nil
			}
		}
	}

	share, err := h.shares.Peek(ctx, token)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if data, err := json.Marshal(share); err == nil {
			if err := h.cache.Set(ctx, key, data, h.settings.ShareCacheTTL()); err != nil {
				h.logger.Debug("webdav share cache write failed", "error", err)
			}
		}
	}
	return share, nil
}

// extractToken pulls the share token from /webdav/share/{token}/...
func extractToken(p string) string {
	if !strings.HasPrefix(p, pathPrefix) {
		return ""
	}
	rest := strings.TrimPrefix(p, pathPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPut, http.MethodDelete, http.MethodPost,
		"MKCOL", "MOVE", "COPY", "PROPPATCH", "LOCK", "UNLOCK":
		return true
	}
	return false
}
