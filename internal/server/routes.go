package server

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mkarimof/filedepot/internal/config"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/store"
)

// RouterOptions carries the dependencies the shared middleware chain needs.
type RouterOptions struct {
	Config   *config.Config
	Logger   *slog.Logger
	Sessions identity.SessionRepo
	Users    store.UserStore

	// RequireAuth overrides the default public path set when non-nil.
	RequireAuth func(r *http.Request) bool
}

// NewRouter builds the chi router with the full middleware chain applied.
// Handlers are mounted by the caller.
func NewRouter(opts RouterOptions) (*chi.Mux, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	proxies, err := NewTrustedProxies(opts.Config.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	requireAuth := opts.RequireAuth
	if requireAuth == nil {
		requireAuth = RequiresAuth
	}

	r := chi.NewRouter()

	// Order matters: the request ID must exist before the logger binds it,
	// and the recoverer must sit inside the access log so panics still get
	// an access line.
	r.Use(chimw.RequestID)
	r.Use(RequestLoggerMiddleware(logger))
	r.Use(AccessLogMiddleware(proxies))
	r.Use(chimw.Recoverer)

	if len(opts.Config.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   opts.Config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "PROPFIND"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Depth"},
			AllowCredentials: true,
		}).Handler)
	}

	r.Use(NewAuthGate(AuthGateConfig{
		RequireAuth: requireAuth,
		Sessions:    opts.Sessions,
		Users:       opts.Users,
	}))

	return r, nil
}

// RequiresAuth is the default auth policy: everything is protected except
// registration, login, health, the public share surfaces, and file downloads.
// Downloads pass the gate anonymously; the handler itself only serves files
// marked public to requests without a session.
func RequiresAuth(r *http.Request) bool {
	switch r.URL.Path {
	case "/api/health", "/api/auth/login", "/api/auth/register":
		return false
	}
	for _, prefix := range []string{"/share/", "/webdav/share/"} {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	if r.Method == http.MethodGet && downloadPathRe.MatchString(r.URL.Path) {
		return false
	}
	return true
}

var downloadPathRe = regexp.MustCompile(`^/api/files/[^/]+$`)

// HealthHandler reports liveness.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
