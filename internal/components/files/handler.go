// Package files implements the file HTTP handlers: multipart upload,
// download, metadata updates, and delete.
package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/files"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/store"
)

// Handler handles file endpoints.
type Handler struct {
	files    *files.Service
	maxBytes int64
	log      *slog.Logger
}

// NewHandler creates a file handler. maxBytes caps a single upload.
func NewHandler(svc *files.Service, maxBytes int64, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{files: svc, maxBytes: maxBytes, log: log}
}

// Routes mounts the file endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/files", h.HandleUpload)
	r.Get("/api/files/{id}", h.HandleDownload)
	r.Get("/api/files/{id}/info", h.HandleInfo)
	r.Patch("/api/files/{id}", h.HandleUpdate)
	r.Delete("/api/files/{id}", h.HandleDelete)
}

// HandleUpload handles POST /api/files (multipart, field "file", optional
// "folderId").
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	// Small memory budget; larger parts spill to temp files.
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, api.ReasonInvalidField,
				fmt.Sprintf("upload exceeds %d bytes", h.maxBytes))
			return
		}
		api.WriteBadRequest(w, api.ReasonInvalidFormat, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		api.WriteBadRequest(w, api.ReasonMissingField, "file field is required")
		return
	}
	defer part.Close()

	var folderID *string
	if v := r.FormValue("folderId"); v != "" {
		folderID = &v
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := h.files.Upload(r.Context(), user.ID, header.Filename, mimeType, header.Size, part, folderID)
	if err != nil {
		h.writeError(w, err, "failed to upload file")
		return
	}
	api.WriteJSON(w, http.StatusCreated, file)
}

// HandleDownload handles GET /api/files/{id}. Owners stream their own files;
// anonymous requests only succeed for files marked public.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var file *store.File
	var rc io.ReadCloser
	var err error
	if user, ok := server.GetUserFromContext(r.Context()); ok {
		file, rc, err = h.files.Open(r.Context(), user.ID, id)
		if errors.Is(err, store.ErrNotFound) {
			// Not theirs, but possibly someone else's public file.
			file, rc, err = h.files.OpenPublic(r.Context(), id)
		}
	} else {
		file, rc, err = h.files.OpenPublic(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, err, "failed to open file")
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

// HandleInfo handles GET /api/files/{id}/info.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	file, err := h.files.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "failed to get file")
		return
	}
	api.WriteJSON(w, http.StatusOK, file)
}

type updateRequest struct {
	Name     *string `json:"name"`
	FolderID *string `json:"folderId"`
	IsPublic *bool   `json:"isPublic"`

	// Move distinguishes "leave the folder alone" from "move to root level".
	Move bool `json:"move"`
}

// HandleUpdate handles PATCH /api/files/{id}: rename, move, and visibility.
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
	if req.Name == nil && !req.Move && req.IsPublic == nil {
		api.WriteBadRequest(w, api.ReasonMissingField, "nothing to update")
		return
	}

	var file *store.File
	var err error
	if req.Name != nil {
		file, err = h.files.Rename(r.Context(), user.ID, id, *req.Name)
		if err != nil {
			h.writeError(w, err, "failed to rename file")
			return
		}
	}
	if req.Move {
		file, err = h.files.MoveToFolder(r.Context(), user.ID, id, req.FolderID)
		if err != nil {
			h.writeError(w, err, "failed to move file")
			return
		}
	}
	if req.IsPublic != nil {
		file, err = h.files.SetPublic(r.Context(), user.ID, id, *req.IsPublic)
		if err != nil {
			h.writeError(w, err, "failed to update file visibility")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, file)
}

// HandleDelete handles DELETE /api/files/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := server.GetUserFromContext(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	if err := h.files.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "failed to delete file")
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		api.WriteNotFound(w, "file not found")
	case errors.Is(err, files.ErrInvalidName):
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid file name")
	default:
		h.log.Error(fallback, "error", err)
		api.WriteInternalError(w, fallback)
	}
}
