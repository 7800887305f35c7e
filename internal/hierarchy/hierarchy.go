// Package hierarchy provides traversal over an owner's folder forest.
//
// All functions are pure over a store.FolderAdjacency: they never touch
// storage directly, so the same logic runs against a live driver, a
// transaction-bound view, or a test fixture.
package hierarchy

import (
	"context"
	"errors"

	"github.com/mkarimof/filedepot/internal/store"
)

// MaxDepth bounds every walk. A well-formed forest never approaches it; a
// walk that trips the bound indicates a parent-pointer cycle or corruption.
const MaxDepth = 100

var (
	// ErrIntegrity is returned when a traversal exceeds MaxDepth.
	ErrIntegrity = errors.New("folder hierarchy integrity violation")

	// ErrCycle is returned when a move would make a folder its own ancestor.
	ErrCycle = errors.New("move would create a cycle")
)

// AncestorIDs returns the ids of the folder's ancestors, nearest first,
// excluding the folder itself. Returns ErrIntegrity if the parent chain
// exceeds MaxDepth.
func AncestorIDs(ctx context.Context, adj store.FolderAdjacency, ownerID, id string) ([]string, error) {
	var chain []string
	current := id
	for depth := 0; ; depth++ {
		if depth >= MaxDepth {
			return nil, ErrIntegrity
		}
		parent, err := adj.Parent(ctx, ownerID, current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return chain, nil
		}
		chain = append(chain, *parent)
		current = *parent
	}
}

// Descendants returns every folder below rootID, breadth-first, excluding
// rootID itself. Returns ErrIntegrity if the walk exceeds MaxDepth levels.
func Descendants(ctx context.Context, adj store.FolderAdjacency, ownerID, rootID string) ([]*store.Folder, error) {
	var out []*store.Folder
	frontier := []string{rootID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= MaxDepth {
			return nil, ErrIntegrity
		}
		var next []string
		for _, id := range frontier {
			children, err := adj.Children(ctx, ownerID, id)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				out = append(out, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

// DescendantIDs returns the ids of every folder below rootID.
func DescendantIDs(ctx context.Context, adj store.FolderAdjacency, ownerID, rootID string) ([]string, error) {
	folders, err := Descendants(ctx, adj, ownerID, rootID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(folders))
	for _, f := range folders {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

// ValidateMove rejects re-parenting folderID under newParentID when that
// would create a cycle: the new parent must not be the folder itself or any
// folder in its subtree. A nil newParentID (move to root) is always valid.
func ValidateMove(ctx context.Context, adj store.FolderAdjacency, ownerID, folderID string, newParentID *string) error {
	if newParentID == nil {
		return nil
	}
	if *newParentID == folderID {
		return ErrCycle
	}
	// Walk up from the new parent; hitting folderID means the new parent
	// lives inside the moved folder's subtree.
	ancestors, err := AncestorIDs(ctx, adj, ownerID, *newParentID)
	if err != nil {
		return err
	}
	for _, id := range ancestors {
		if id == folderID {
			return ErrCycle
		}
	}
	return nil
}
