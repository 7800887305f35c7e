// Package dashboard implements the aggregate read endpoints: dashboard
// listings and name search across folders and files.
package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/files"
	"github.com/mkarimof/filedepot/internal/foldertree"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/store"
)

const (
	recentWindow = 7 * 24 * time.Hour
	recentLimit  = 20
)

// Handler handles dashboard and search endpoints.
type Handler struct {
	folders *foldertree.Service
	files   *files.Service
	stores  store.Stores
	log     *slog.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(folders *foldertree.Service, files *files.Service, stores store.Stores, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{folders: folders, files: files, stores: stores, log: log}
}

// Routes mounts the dashboard endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/dashboard", h.HandleDashboard)
	r.Get("/api/search", h.HandleSearch)
}

// DashboardResponse is the combined listing for one dashboard view.
type DashboardResponse struct {
	Folders []*store.Folder `json:"folders"`
	Files   []*store.File   `json:"files"`
}

// HandleDashboard handles GET /api/dashboard. Without parameters it lists the
// root level; folderId scopes to one folder; type=recent and type=public
// return the corresponding file views.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	ctx := r.Context()

	switch view := r.URL.Query().Get("type"); view {
	case "", "folder":
	case "recent":
		recent, err := h.stores.ListRecentFiles(ctx, user.ID, time.Now().Add(-recentWindow), recentLimit)
		if err != nil {
			h.log.Error("failed to list recent files", "error", err)
			api.WriteInternalError(w, "failed to list recent files")
			return
		}
		api.WriteJSON(w, http.StatusOK, DashboardResponse{Folders: []*store.Folder{}, Files: emptyIfNil(recent)})
		return
	case "public":
		public, err := h.stores.ListPublicFiles(ctx, user.ID)
		if err != nil {
			h.log.Error("failed to list public files", "error", err)
			api.WriteInternalError(w, "failed to list public files")
			return
		}
		api.WriteJSON(w, http.StatusOK, DashboardResponse{Folders: []*store.Folder{}, Files: emptyIfNil(public)})
		return
	default:
		api.WriteBadRequest(w, api.ReasonInvalidField, "type must be folder, recent, or public")
		return
	}

	var folderID *string
	if v := r.URL.Query().Get("folderId"); v != "" {
		folderID = &v
	}

	folders, err := h.folders.List(ctx, user.ID, folderID)
	if err != nil {
		h.log.Error("failed to list folders", "error", err)
		api.WriteInternalError(w, "failed to list folders")
		return
	}
	fs, err := h.files.List(ctx, user.ID, folderID)
	if err != nil {
		h.log.Error("failed to list files", "error", err)
		api.WriteInternalError(w, "failed to list files")
		return
	}

	if folders == nil {
		folders = []*store.Folder{}
	}
	api.WriteJSON(w, http.StatusOK, DashboardResponse{Folders: folders, Files: emptyIfNil(fs)})
}

// SearchResponse is the combined name search result.
type SearchResponse struct {
	Query   string          `json:"query"`
	Folders []*store.Folder `json:"folders"`
	Files   []*store.File   `json:"files"`
}

// HandleSearch handles GET /api/search?q=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "q is required")
		return
	}

	folders, err := h.folders.Search(r.Context(), user.ID, q)
	if err != nil {
		h.log.Error("folder search failed", "error", err)
		api.WriteInternalError(w, "search failed")
		return
	}
	fs, err := h.files.Search(r.Context(), user.ID, q)
	if err != nil {
		h.log.Error("file search failed", "error", err)
		api.WriteInternalError(w, "search failed")
		return
	}

	if folders == nil {
		folders = []*store.Folder{}
	}
	api.WriteJSON(w, http.StatusOK, SearchResponse{Query: q, Folders: folders, Files: emptyIfNil(fs)})
}

func emptyIfNil(fs []*store.File) []*store.File {
	if fs == nil {
		return []*store.File{}
	}
	return fs
}
