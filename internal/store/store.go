// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflicting update")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite, memory).
	Name() string
}

// UserStore defines operations for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// FolderStore defines operations for folder persistence.
//
// Every read takes the owner id and scopes the lookup to it: a folder that
// exists but belongs to someone else is reported as ErrNotFound, never leaked.
type FolderStore interface {
	FolderAdjacency

	CreateFolder(ctx context.Context, folder *Folder) error
	GetFolder(ctx context.Context, id, ownerID string) (*Folder, error)
	UpdateFolder(ctx context.Context, folder *Folder) error

	// MoveFolder re-parents a folder atomically. The validate callback runs
	// inside the same unit of work as the write, against current state, and
	// may reject the move (its error aborts without mutation). This is the
	// hook the tree service uses to re-run the cycle check at commit time.
	MoveFolder(ctx context.Context, id, ownerID string, newParentID *string, validate func(ctx context.Context, adj FolderAdjacency) error) (*Folder, error)

	// DeleteFolderTree removes the folder, every descendant folder, and all
	// file records inside them in one unit of work. The resolve callback runs
	// inside that unit of work and returns the descendant folder ids as of
	// current state, so a concurrently committed move cannot leave a survivor
	// pointing at a deleted parent. Shares of removed folders are deactivated
	// in the same unit of work. Returns the stored content keys of all removed
	// files so the caller can release blob contents afterwards.
	DeleteFolderTree(ctx context.Context, id, ownerID string, resolve func(ctx context.Context, adj FolderAdjacency) ([]string, error)) (contentKeys []string, err error)

	// ListFolders returns the owner's folders under the given parent
	// (nil parent means root level), ordered by name.
	ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*Folder, error)

	// ListAllFolders returns every folder of the owner, ordered by name.
	ListAllFolders(ctx context.Context, ownerID string) ([]*Folder, error)

	// SearchFolders returns the owner's folders whose name contains q
	// (case-insensitive), ordered by name.
	SearchFolders(ctx context.Context, ownerID, q string) ([]*Folder, error)

	// CountFolderChildren returns the number of direct child folders and files.
	CountFolderChildren(ctx context.Context, id string) (folders int64, files int64, err error)
}

// FolderAdjacency exposes parent/child queries over folders, bound to the
// state a validate callback must be judged against.
type FolderAdjacency interface {
	// Children returns the direct child folders of id (owner-scoped).
	Children(ctx context.Context, ownerID, id string) ([]*Folder, error)

	// Parent returns the parent id of the folder, or nil for root level.
	Parent(ctx context.Context, ownerID, id string) (*string, error)
}

// FileStore defines operations for file metadata persistence.
type FileStore interface {
	CreateFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, id string) (*File, error)
	UpdateFile(ctx context.Context, file *File) error
	DeleteFile(ctx context.Context, id, ownerID string) error

	// ListFiles returns the owner's files in the given folder
	// (nil folder means root level), ordered by original name.
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*File, error)

	// ListFilesInFolders returns every file whose folder id is in ids.
	ListFilesInFolders(ctx context.Context, ownerID string, ids []string) ([]*File, error)

	// SearchFiles returns the owner's files whose original name contains q
	// (case-insensitive), ordered by original name.
	SearchFiles(ctx context.Context, ownerID, q string) ([]*File, error)

	// ListPublicFiles returns the owner's public files, newest first.
	ListPublicFiles(ctx context.Context, ownerID string) ([]*File, error)

	// ListRecentFiles returns the owner's files updated since the cutoff,
	// most recently updated first, at most limit entries.
	ListRecentFiles(ctx context.Context, ownerID string, since time.Time, limit int) ([]*File, error)
}

// ShareStore defines operations for folder share persistence.
type ShareStore interface {
	CreateShare(ctx context.Context, share *FolderShare) error
	GetShareByToken(ctx context.Context, token string) (*FolderShare, error)
	UpdateShare(ctx context.Context, share *FolderShare) error
	ListSharesByOwner(ctx context.Context, ownerID string) ([]*FolderShare, error)

	// CreateShareIfNoneValid inserts the share unless the folder already has
	// an active, unexpired share at the given instant. The check and the
	// insert are one unit of work, so concurrent creates for the same folder
	// cannot both pass the check. When a valid share exists it is returned
	// with ErrAlreadyExists; otherwise the inserted share is returned.
	CreateShareIfNoneValid(ctx context.Context, share *FolderShare, now time.Time) (*FolderShare, error)

	// TouchShare atomically increments the share's access count, but only if
	// the share is still active and unexpired at the given instant. It
	// returns ErrNotFound for an unknown token and ErrConflict when the
	// share exists but is no longer valid.
	TouchShare(ctx context.Context, token string, now time.Time) (*FolderShare, error)
}

// Stores bundles the per-entity store interfaces a driver must provide.
type Stores interface {
	Driver
	UserStore
	FolderStore
	FileStore
	ShareStore
}

// User is an account with exclusive mutation rights over its folders and files.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Folder is a node in an owner's folder forest. A nil ParentID means the
// folder sits at root level. The parent, when set, must belong to the same
// owner, and the parent-pointer graph per owner is kept acyclic by the tree
// service.
type Folder struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id" gorm:"index"`
	ParentID  *string   `json:"parent_id" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// File is a stored object's metadata. StoredKey is the opaque handle into the
// blob store; the record, not the blob, is the source of truth for existence.
type File struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	OriginalName string    `json:"original_name"`
	StoredKey    string    `json:"-"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	OwnerID      string    `json:"owner_id" gorm:"index"`
	FolderID     *string   `json:"folder_id" gorm:"index"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FolderShare is a bearer capability: presenting ShareToken grants read
// access to the folder and everything nested under it until the share
// expires or is deactivated. Shares are never physically deleted; the row
// doubles as an audit trail via AccessCount.
type FolderShare struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	FolderID    string    `json:"folder_id" gorm:"index"`
	OwnerID     string    `json:"owner_id" gorm:"index"`
	ShareToken  string    `json:"share_token" gorm:"uniqueIndex"`
	IsActive    bool      `json:"is_active"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Valid reports whether the share grants access at the given instant.
func (s *FolderShare) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
