// Package folders implements the folder hierarchy HTTP handlers: listing,
// create, rename, move, cascade delete, detail with breadcrumb, and the full
// tree view for move pickers.
package folders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/foldertree"
	"github.com/mkarimof/filedepot/internal/hierarchy"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/store"
)

// Handler handles folder endpoints.
type Handler struct {
	folders *foldertree.Service
	log     *slog.Logger
}

// NewHandler creates a folder handler.
func NewHandler(folders *foldertree.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{folders: folders, log: log}
}

// Routes mounts the folder endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/folders", h.HandleList)
	r.Post("/api/folders", h.HandleCreate)
	r.Get("/api/folders/tree", h.HandleTree)
	r.Get("/api/folders/{id}", h.HandleGet)
	r.Patch("/api/folders/{id}", h.HandleUpdate)
	r.Delete("/api/folders/{id}", h.HandleDelete)
}

type createRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
}

func (c createRequest) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, foldertree.MaxNameLength)),
	)
}

type updateRequest struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parentId"`

	// Move distinguishes "leave the parent alone" from "move to root level",
	// which ParentID alone cannot express.
	Move bool `json:"move"`
}

// ListResponse wraps the folder views returned by HandleList.
type ListResponse struct {
	Folders []*store.Folder `json:"folders"`
}

// DetailResponse is a folder with its breadcrumb and content counts.
type DetailResponse struct {
	Folder       *store.Folder   `json:"folder"`
	Breadcrumb   []*store.Folder `json:"breadcrumb"`
	SubfolderCnt int64           `json:"subfolderCount"`
	FileCnt      int64           `json:"fileCount"`
}

// HandleList handles GET /api/folders. Without parentId it returns the
// owner's root-level folders.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var parentID *string
	if p := r.URL.Query().Get("parentId"); p != "" {
		parentID = &p
	}

	folders, err := h.folders.List(r.Context(), user.ID, parentID)
	if err != nil {
		h.log.Error("failed to list folders", "error", err)
		api.WriteInternalError(w, "failed to list folders")
		return
	}
	if folders == nil {
		folders = []*store.Folder{}
	}
	api.WriteJSON(w, http.StatusOK, ListResponse{Folders: folders})
}

// HandleCreate handles POST /api/folders.
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
		api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
		return
	}

	folder, err := h.folders.Create(r.Context(), user.ID, req.Name, req.ParentID)
	if err != nil {
		h.writeError(w, err, "failed to create folder")
		return
	}
	api.WriteJSON(w, http.StatusCreated, folder)
}

// HandleGet handles GET /api/folders/{id}: detail, breadcrumb, and counts.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	details, err := h.folders.GetDetails(r.Context(), user.ID, id)
	if err != nil {
		h.writeError(w, err, "failed to get folder")
		return
	}
	crumb, err := h.folders.Breadcrumb(r.Context(), user.ID, id)
	if err != nil {
		h.writeError(w, err, "failed to build breadcrumb")
		return
	}

	api.WriteJSON(w, http.StatusOK, DetailResponse{
		Folder:       details.Folder,
		Breadcrumb:   crumb,
		SubfolderCnt: details.SubfolderCnt,
		FileCnt:      details.FileCnt,
	})
}

// HandleUpdate handles PATCH /api/folders/{id}: rename and/or move.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "invalid JSON body")
		return
	}
	if req.Name == nil && !req.Move {
		api.WriteBadRequest(w, api.ReasonMissingField, "nothing to update")
		return
	}

	var folder *store.Folder
	var err error
	if req.Name != nil {
		folder, err = h.folders.Rename(r.Context(), user.ID, id, *req.Name)
		if err != nil {
			h.writeError(w, err, "failed to rename folder")
			return
		}
	}
	if req.Move {
		folder, err = h.folders.Move(r.Context(), user.ID, id, req.ParentID)
		if err != nil {
			h.writeError(w, err, "failed to move folder")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, folder)
}

// HandleDelete handles DELETE /api/folders/{id}: cascade delete.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.folders.Delete(r.Context(), user.ID, id); err != nil {
		h.writeError(w, err, "failed to delete folder")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// TreeResponse wraps the folder forest returned by HandleTree.
type TreeResponse struct {
	Tree []*foldertree.Node `json:"tree"`
}

// HandleTree handles GET /api/folders/tree. An excludeId query prunes that
// folder and its subtree, for move-destination pickers.
func (h *Handler) HandleTree(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	tree, err := h.folders.Tree(r.Context(), user.ID)
	if err != nil {
		h.log.Error("failed to build folder tree", "error", err)
		api.WriteInternalError(w, "failed to build folder tree")
		return
	}
	if excludeID := r.URL.Query().Get("excludeId"); excludeID != "" {
		tree = pruneTree(tree, excludeID)
	}
	if tree == nil {
		tree = []*foldertree.Node{}
	}
	api.WriteJSON(w, http.StatusOK, TreeResponse{Tree: tree})
}

// pruneTree removes the node with the given id, along with its subtree.
func pruneTree(nodes []*foldertree.Node, id string) []*foldertree.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Folder.ID == id {
			continue
		}
		n.Children = pruneTree(n.Children, id)
		out = append(out, n)
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.WriteNotFound(w, "folder not found")
	case errors.Is(err, foldertree.ErrInvalidName):
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid folder name")
	case errors.Is(err, hierarchy.ErrCycle):
		api.WriteBadRequest(w, api.ReasonInvalidOperation, "cannot move a folder into itself or its descendants")
	case errors.Is(err, hierarchy.ErrIntegrity):
		h.log.Error("folder hierarchy integrity violation", "error", err)
		api.WriteError(w, http.StatusInternalServerError, api.ReasonIntegrityError, "folder hierarchy inconsistent")
	default:
		h.log.Error(fallback, "error", err)
		api.WriteInternalError(w, fallback)
	}
}
