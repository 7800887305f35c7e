// Package foldertree implements folder hierarchy operations: create, rename,
// move with cycle prevention, cascade delete, and tree/breadcrumb views.
package foldertree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarimof/filedepot/internal/appctx"
	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/hierarchy"
	"github.com/mkarimof/filedepot/internal/store"
)

// ErrInvalidName is returned when a folder name is empty or too long.
var ErrInvalidName = errors.New("invalid folder name")

// MaxNameLength bounds folder names.
const MaxNameLength = 255

// Service implements folder operations over a store driver and a blob store.
type Service struct {
	stores store.Stores
	blobs  blob.Store
	now    func() time.Time
}

// NewService creates a folder service.
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

// Create makes a new folder under parentID (nil for root level). The parent
// must exist and belong to the owner.
func (s *Service) Create(ctx context.Context, ownerID, name string, parentID *string) (*store.Folder, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if parentID != nil {
		if _, err := s.stores.GetFolder(ctx, *parentID, ownerID); err != nil {
			return nil, fmt.Errorf("parent folder: %w", err)
		}
	}

	now := s.now()
	folder := &store.Folder{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		OwnerID:   ownerID,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stores.CreateFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// Get returns the folder, owner-scoped.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*store.Folder, error) {
	return s.stores.GetFolder(ctx, id, ownerID)
}

// List returns the owner's folders under parentID (nil for root level).
func (s *Service) List(ctx context.Context, ownerID string, parentID *string) ([]*store.Folder, error) {
	return s.stores.ListFolders(ctx, ownerID, parentID)
}

// Rename changes the folder's name.
func (s *Service) Rename(ctx context.Context, ownerID, id, name string) (*store.Folder, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	folder, err := s.stores.GetFolder(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	folder.Name = strings.TrimSpace(name)
	folder.UpdatedAt = s.now()
	if err := s.stores.UpdateFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// Move re-parents the folder. The cycle check runs twice: once up front for a
// fast rejection, and again inside the store's unit of work so a concurrent
// move cannot slip a cycle past it.
func (s *Service) Move(ctx context.Context, ownerID, id string, newParentID *string) (*store.Folder, error) {
	if err := hierarchy.ValidateMove(ctx, s.stores, ownerID, id, newParentID); err != nil {
		return nil, err
	}
	return s.stores.MoveFolder(ctx, id, ownerID, newParentID, func(ctx context.Context, adj store.FolderAdjacency) error {
		return hierarchy.ValidateMove(ctx, adj, ownerID, id, newParentID)
	})
}

// Delete removes the folder, every descendant folder, and all file records
// inside them, then releases the stored contents. The descendant walk runs
// inside the store's unit of work, like the cycle check in Move, so a
// concurrent move cannot leave a survivor under a deleted parent. Blob
// deletion is best effort: the records are already gone, and an orphaned
// blob is preferable to a file record pointing at nothing.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	keys, err := s.stores.DeleteFolderTree(ctx, id, ownerID, func(ctx context.Context, adj store.FolderAdjacency) ([]string, error) {
		return hierarchy.DescendantIDs(ctx, adj, ownerID, id)
	})
	if err != nil {
		return err
	}

	log := appctx.GetLogger(ctx)
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Warn("failed to delete blob content", "key", key, "error", err)
		}
	}
	return nil
}

// Breadcrumb returns the path from the root-level ancestor down to the
// folder itself.
func (s *Service) Breadcrumb(ctx context.Context, ownerID, id string) ([]*store.Folder, error) {
	folder, err := s.stores.GetFolder(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	ancestorIDs, err := hierarchy.AncestorIDs(ctx, s.stores, ownerID, id)
	if err != nil {
		return nil, err
	}

	// AncestorIDs is nearest-first; build the crumb root-first.
	crumb := make([]*store.Folder, 0, len(ancestorIDs)+1)
	for i := len(ancestorIDs) - 1; i >= 0; i-- {
		ancestor, err := s.stores.GetFolder(ctx, ancestorIDs[i], ownerID)
		if err != nil {
			return nil, err
		}
		crumb = append(crumb, ancestor)
	}
	return append(crumb, folder), nil
}

// Node is a folder with its nested children, for tree views.
type Node struct {
	Folder   *store.Folder `json:"folder"`
	Children []*Node       `json:"children"`
}

// Tree assembles the owner's full folder forest from a single listing.
func (s *Service) Tree(ctx context.Context, ownerID string) ([]*Node, error) {
	folders, err := s.stores.ListAllFolders(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*Node, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &Node{Folder: f}
	}

	var roots []*Node
	for _, f := range folders {
		n := nodes[f.ID]
		if f.ParentID != nil {
			if parent, ok := nodes[*f.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots, nil
}

// Search returns the owner's folders whose name contains q.
func (s *Service) Search(ctx context.Context, ownerID, q string) ([]*store.Folder, error) {
	return s.stores.SearchFolders(ctx, ownerID, q)
}

// Details describes a folder together with its direct content counts.
type Details struct {
	Folder       *store.Folder `json:"folder"`
	SubfolderCnt int64         `json:"subfolder_count"`
	FileCnt      int64         `json:"file_count"`
}

// GetDetails returns the folder with its direct child counts.
func (s *Service) GetDetails(ctx context.Context, ownerID, id string) (*Details, error) {
	folder, err := s.stores.GetFolder(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	subfolders, files, err := s.stores.CountFolderChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Details{Folder: folder, SubfolderCnt: subfolders, FileCnt: files}, nil
}
