// Package auth implements the authentication HTTP handlers: register,
// login, logout, and the current-user endpoint.
package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/ratelimit"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/store"
)

// UserView is the safe view of a user for API responses.
type UserView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserView converts a user to its API view.
func NewUserView(u *store.User) UserView {
	return UserView{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

// LoginResponse is the response for successful register and login calls.
type LoginResponse struct {
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Handler handles authentication endpoints.
type Handler struct {
	auth       *identity.UserAuth
	sessions   identity.SessionRepo
	sessionTTL time.Duration
	secure     bool
	limiter    *ratelimit.Limiter
	log        *slog.Logger
}

// NewHandler creates an authentication handler. secure controls the Secure
// flag on session cookies and should be true whenever TLS is on.
func NewHandler(auth *identity.UserAuth, sessions identity.SessionRepo, sessionTTL time.Duration, secure bool, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		auth:       auth,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		secure:     secure,
		log:        log,
	}
}

// WithLimiter throttles the credential endpoints with the given limiter.
func (h *Handler) WithLimiter(l *ratelimit.Limiter) *Handler {
	h.limiter = l
	return h
}

// Routes mounts the auth endpoints on the given router. Register and login
// take credentials, so they go behind the rate limiter when one is set.
func (h *Handler) Routes(r chi.Router) {
	creds := r
	if h.limiter != nil {
		creds = r.With(h.limiter.Middleware)
	}
	creds.Post("/api/auth/register", h.HandleRegister)
	creds.Post("/api/auth/login", h.HandleLogin)
	r.Post("/api/auth/logout", h.HandleLogout)
	r.Get("/api/auth/me", h.HandleMe)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c credentialsRequest) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&c.Password, validation.Required, validation.Length(8, 128)),
	)
}

// HandleRegister handles POST /api/auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			api.WriteConflict(w, "username already taken")
			return
		}
		h.log.Error("failed to register user", "username", req.Username, "error", err)
		api.WriteInternalError(w, "failed to register user")
		return
	}

	h.issueSession(w, r, user, http.StatusCreated)
}

// HandleLogin handles POST /api/auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "username and password are required")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		// Unknown username and wrong password answer identically.
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, identity.ErrInvalidPassword) {
			api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid username or password")
			return
		}
		h.log.Error("failed to authenticate user", "username", req.Username, "error", err)
		api.WriteInternalError(w, "failed to authenticate")
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user *store.User, status int) {
	session, err := h.sessions.Create(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		h.log.Error("failed to create session", "user_id", user.ID, "error", err)
		api.WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	api.WriteJSON(w, status, LoginResponse{
		User:      NewUserView(user),
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

// HandleLogout handles POST /api/auth/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := server.GetSessionFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	if err := h.sessions.Delete(r.Context(), session.Token); err != nil {
		h.log.Error("failed to delete session", "error", err)
		api.WriteInternalError(w, "failed to log out")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleMe handles GET /api/auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	api.WriteJSON(w, http.StatusOK, NewUserView(user))
}
