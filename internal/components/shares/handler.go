// Package shares implements the share lifecycle HTTP handlers and the public
// share resolution endpoint.
package shares

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/sharing"
	"github.com/mkarimof/filedepot/internal/store"
)

// ShareView is the owner-facing view of a share, with the share URL and
// expiry state derived.
type ShareView struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folderId"`
	ShareToken  string    `json:"shareToken"`
	ShareURL    string    `json:"shareUrl"`
	IsActive    bool      `json:"isActive"`
	IsExpired   bool      `json:"isExpired"`
	ExpiresAt   time.Time `json:"expiresAt"`
	AccessCount int64     `json:"accessCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ContentOpener streams a file's content for an already authorized access.
type ContentOpener interface {
	OpenShared(ctx context.Context, id string) (*store.File, io.ReadCloser, error)
}

// Handler handles share endpoints.
type Handler struct {
	shares       *sharing.Service
	contents     ContentOpener
	publicOrigin string
	log          *slog.Logger
}

// NewHandler creates a share handler. publicOrigin is used to derive share
// URLs, e.g. "https://files.example.com".
func NewHandler(shares *sharing.Service, contents ContentOpener, publicOrigin string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{shares: shares, contents: contents, publicOrigin: publicOrigin, log: log}
}

// Routes mounts the share endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/shares", h.HandleCreate)
	r.Get("/api/shares", h.HandleList)
	r.Patch("/api/shares/{token}/deactivate", h.HandleDeactivate)
	r.Patch("/api/shares/{token}/extend", h.HandleExtend)
	r.Get("/share/{token}", h.HandleResolve)
	r.Get("/share/{token}/files/{fileId}", h.HandleDownload)
}

func (h *Handler) view(s *store.FolderShare) ShareView {
	return ShareView{
		ID:          s.ID,
		FolderID:    s.FolderID,
		ShareToken:  s.ShareToken,
		ShareURL:    h.publicOrigin + "/share/" + s.ShareToken,
		IsActive:    s.IsActive,
		IsExpired:   !time.Now().Before(s.ExpiresAt),
		ExpiresAt:   s.ExpiresAt,
		AccessCount: s.AccessCount,
		CreatedAt:   s.CreatedAt,
	}
}

type createRequest struct {
	FolderID string `json:"folderId"`
	Duration string `json:"duration"`
}

func (c createRequest) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FolderID, validation.Required),
		validation.Field(&c.Duration, validation.Required),
	)
}

// ConflictResponse is the 409 payload when a folder already has an active
// share: the standard envelope plus the existing share so clients can surface
// its token without a second round trip.
type ConflictResponse struct {
	Error api.ErrorDetail `json:"error"`
	Share ShareView       `json:"share"`
}

// HandleCreate handles POST /api/shares.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		api.WriteBadRequest(w, api.ReasonMissingField, err.Error())
		return
	}

	share, err := h.shares.Create(r.Context(), user.ID, req.FolderID, req.Duration)
	if err != nil {
		if errors.Is(err, sharing.ErrShareExists) {
			api.WriteJSON(w, http.StatusConflict, ConflictResponse{
				Error: api.ErrorDetail{
					Code:       http.StatusText(http.StatusConflict),
					ReasonCode: api.ReasonConflict,
					Message:    "folder already has an active share",
				},
				Share: h.view(share),
			})
			return
		}
		h.writeError(w, err, "failed to create share")
		return
	}
	api.WriteJSON(w, http.StatusCreated, h.view(share))
}

// SharesResponse wraps the share views returned by HandleList.
type SharesResponse struct {
	Shares []ShareView `json:"shares"`
}

// HandleList handles GET /api/shares: the owner's shares, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	shares, err := h.shares.List(r.Context(), user.ID)
	if err != nil {
		h.log.Error("failed to list shares", "error", err)
		api.WriteInternalError(w, "failed to list shares")
		return
	}

	views := make([]ShareView, 0, len(shares))
	for _, s := range shares {
		views = append(views, h.view(s))
	}
	api.WriteJSON(w, http.StatusOK, SharesResponse{Shares: views})
}

// HandleDeactivate handles PATCH /api/shares/{token}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	share, err := h.shares.Deactivate(r.Context(), user.ID, chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, err, "failed to deactivate share")
		return
	}
	api.WriteJSON(w, http.StatusOK, h.view(share))
}

type extendRequest struct {
	Duration string `json:"duration"`
}

// HandleExtend handles PATCH /api/shares/{token}/extend.
func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "invalid JSON body")
		return
	}

	share, err := h.shares.Extend(r.Context(), user.ID, chi.URLParam(r, "token"), req.Duration)
	if err != nil {
		h.writeError(w, err, "failed to extend share")
		return
	}
	api.WriteJSON(w, http.StatusOK, h.view(share))
}

// ResolveResponse is the public listing of a shared folder subtree.
type ResolveResponse struct {
	Folder  *store.Folder   `json:"folder"`
	Folders []*store.Folder `json:"folders"`
	Files   []*store.File   `json:"files"`
}

// HandleResolve handles GET /share/{token}: the public, access-counted read.
// Unknown tokens are 404; expired or deactivated shares are 410.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.shares.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			api.WriteNotFound(w, "share not found")
		case errors.Is(err, sharing.ErrShareInvalid):
			api.WriteGone(w, "share expired or deactivated")
		default:
			h.log.Error("failed to resolve share", "error", err)
			api.WriteInternalError(w, "failed to resolve share")
		}
		return
	}

	folders := resolved.Folders
	if folders == nil {
		folders = []*store.Folder{}
	}
	files := resolved.Files
	if files == nil {
		files = []*store.File{}
	}
	api.WriteJSON(w, http.StatusOK, ResolveResponse{
		Folder:  resolved.Folder,
		Folders: folders,
		Files:   files,
	})
}

// HandleDownload handles GET /share/{token}/files/{fileId}: content access
// through a valid share. Share access overrides per-file visibility, but only
// for files inside the shared subtree. Does not count an access; the listing
// resolve already did.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	share, err := h.shares.Peek(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			api.WriteNotFound(w, "share not found")
		case errors.Is(err, sharing.ErrShareInvalid):
			api.WriteGone(w, "share expired or deactivated")
		default:
			h.log.Error("failed to look up share", "error", err)
			api.WriteInternalError(w, "failed to look up share")
		}
		return
	}

	resolved, err := h.shares.ResolveForTransport(r.Context(), share)
	if err != nil {
		h.log.Error("failed to assemble share listing", "error", err)
		api.WriteInternalError(w, "failed to resolve share")
		return
	}

	fileID := chi.URLParam(r, "fileId")
	inSubtree := false
	for _, f := range resolved.Files {
		if f.ID == fileID {
			inSubtree = true
			break
		}
	}
	if !inSubtree {
		api.WriteNotFound(w, "file not found")
		return
	}

	file, rc, err := h.contents.OpenShared(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.WriteNotFound(w, "file not found")
			return
		}
		h.log.Error("failed to open shared file", "file_id", fileID, "error", err)
		api.WriteInternalError(w, "failed to open file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": file.OriginalName}))
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("download interrupted", "file_id", file.ID, "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.WriteNotFound(w, "share not found")
	case errors.Is(err, sharing.ErrInvalidDuration):
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "duration must match <number><d|h|m>, e.g. 7d")
	default:
		h.log.Error(fallback, "error", err)
		api.WriteInternalError(w, fallback)
	}
}
