// Package files implements file metadata and content operations. Metadata
// lives in the store, content in the blob store; the record is the source of
// truth, so every mutation orders its writes to keep that invariant.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarimof/filedepot/internal/appctx"
	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/store"
)

// ErrInvalidName is returned when a file name is empty or too long.
var ErrInvalidName = errors.New("invalid file name")

// MaxNameLength bounds file names.
const MaxNameLength = 255

// Service implements file operations over a store driver and a blob store.
type Service struct {
	stores store.Stores
	blobs  blob.Store
	now    func() time.Time
}

// NewService creates a file service.
func NewService(stores store.Stores, blobs blob.Store) *Service {
	return &Service{
		stores: stores,
		blobs:  blobs,
		now:    time.Now,
	}
}

func validName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}

// Upload stores content and creates the file record. The content is written
// first; if the folder turns out invalid or the record cannot be created, the
// stored content is removed again so no orphan blob survives a failed upload.
func (s *Service) Upload(ctx context.Context, ownerID, name, mimeType string, size int64, r io.Reader, folderID *string) (*store.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	key := uuid.NewString()
	if err := s.blobs.Put(ctx, key, r, size, mimeType); err != nil {
		return nil, fmt.Errorf("failed to store content: %w", err)
	}

	file, err := s.createRecord(ctx, ownerID, name, mimeType, size, key, folderID)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			appctx.GetLogger(ctx).Warn("failed to clean up content after rejected upload",
				"key", key, "error", delErr)
		}
		return nil, err
	}
	return file, nil
}

func (s *Service) createRecord(ctx context.Context, ownerID, name, mimeType string, size int64, key string, folderID *string) (*store.File, error) {
	if folderID != nil {
		if _, err := s.stores.GetFolder(ctx, *folderID, ownerID); err != nil {
			return nil, fmt.Errorf("destination folder: %w", err)
		}
	}

	now := s.now()
	file := &store.File{
		ID:           uuid.NewString(),
		OriginalName: strings.TrimSpace(name),
		StoredKey:    key,
		MimeType:     mimeType,
		Size:         size,
		OwnerID:      ownerID,
		FolderID:     folderID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.stores.CreateFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// Get returns the file record, owner-scoped.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*store.File, error) {
	file, err := s.stores.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return file, nil
}

// Open returns the file record and its content for the owner.
func (s *Service) Open(ctx context.Context, ownerID, id string) (*store.File, io.ReadCloser, error) {
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, file.StoredKey)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// OpenPublic returns the file record and content when the file is public.
// Non-public files are reported as not found, not as forbidden.
func (s *Service) OpenPublic(ctx context.Context, id string) (*store.File, io.ReadCloser, error) {
	file, err := s.stores.GetFile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !file.IsPublic {
		return nil, nil, store.ErrNotFound
	}
	rc, err := s.blobs.Get(ctx, file.StoredKey)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// OpenShared returns the file record and content without a public check.
// Callers must have already established access through a valid share.
func (s *Service) OpenShared(ctx context.Context, id string) (*store.File, io.ReadCloser, error) {
	file, err := s.stores.GetFile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, file.StoredKey)
	if err != nil {
		return nil, nil, err
	}
	return file, rc, nil
}

// Rename changes the file's display name.
func (s *Service) Rename(ctx context.Context, ownerID, id, name string) (*store.File, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	file.OriginalName = strings.TrimSpace(name)
	file.UpdatedAt = s.now()
	if err := s.stores.UpdateFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// MoveToFolder relocates the file to folderID (nil for root level). The
// destination must exist and belong to the owner.
func (s *Service) MoveToFolder(ctx context.Context, ownerID, id string, folderID *string) (*store.File, error) {
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if folderID != nil {
		if _, err := s.stores.GetFolder(ctx, *folderID, ownerID); err != nil {
			return nil, fmt.Errorf("destination folder: %w", err)
		}
	}
	file.FolderID = folderID
	file.UpdatedAt = s.now()
	if err := s.stores.UpdateFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// SetPublic toggles direct public downloads for the file.
func (s *Service) SetPublic(ctx context.Context, ownerID, id string, isPublic bool) (*store.File, error) {
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	file.IsPublic = isPublic
	file.UpdatedAt = s.now()
	if err := s.stores.UpdateFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// Delete removes the file record, then releases the content. The record
// delete comes first: once it succeeds the file is gone for every reader,
// and a leftover blob is only wasted space, logged for cleanup.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	file, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.stores.DeleteFile(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, file.StoredKey); err != nil {
		appctx.GetLogger(ctx).Warn("failed to delete blob content",
			"key", file.StoredKey, "error", err)
	}
	return nil
}

// List returns the owner's files in the given folder (nil for root level).
func (s *Service) List(ctx context.Context, ownerID string, folderID *string) ([]*store.File, error) {
	return s.stores.ListFiles(ctx, ownerID, folderID)
}

// Search returns the owner's files whose name contains q.
func (s *Service) Search(ctx context.Context, ownerID, q string) ([]*store.File, error) {
	return s.stores.SearchFiles(ctx, ownerID, q)
}
