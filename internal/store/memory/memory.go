// Package memory implements an in-memory persistence driver, used for
// development mode and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkarimof/filedepot/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements store.Stores with in-memory maps.
type Driver struct {
	mu sync.RWMutex

	closed  bool
	users   map[string]*store.User
	folders map[string]*store.Folder
	files   map[string]*store.File
	shares  map[string]*store.FolderShare
	// shareTokens maps token -> share id
	shareTokens map[string]string
}

// NewDriver creates a new memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Stores, error) {
	return &Driver{
		users:       make(map[string]*store.User),
		folders:     make(map[string]*store.Folder),
		files:       make(map[string]*store.File),
		shares:      make(map[string]*store.FolderShare),
		shareTokens: make(map[string]string),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "memory"
}

// Init is a no-op for the memory driver.
func (d *Driver) Init(ctx context.Context) error {
	return nil
}

// Close marks the driver closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) checkClosed() error {
	if d.closed {
		return store.ErrClosed
	}
	return nil
}

func cloneUser(u *store.User) *store.User {
	c := *u
	return &c
}

func cloneFolder(f *store.Folder) *store.Folder {
	c := *f
	if f.ParentID != nil {
		p := *f.ParentID
		c.ParentID = &p
	}
	return &c
}

func cloneFile(f *store.File) *store.File {
	c := *f
	if f.FolderID != nil {
		id := *f.FolderID
		c.FolderID = &id
	}
	return &c
}

func cloneShare(s *store.FolderShare) *store.FolderShare {
	c := *s
	return &c
}

// UserStore implementation

func (d *Driver) CreateUser(ctx context.Context, user *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	for _, u := range d.users {
		if u.Username == user.Username {
			return store.ErrAlreadyExists
		}
	}
	d.users[user.ID] = cloneUser(user)
	return nil
}

func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (d *Driver) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	for _, u := range d.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

// FolderStore implementation

func (d *Driver) CreateFolder(ctx context.Context, folder *store.Folder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	d.folders[folder.ID] = cloneFolder(folder)
	return nil
}

func (d *Driver) getFolderLocked(id, ownerID string) (*store.Folder, error) {
	f, ok := d.folders[id]
	if !ok || f.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return f, nil
}

func (d *Driver) GetFolder(ctx context.Context, id, ownerID string) (*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	f, err := d.getFolderLocked(id, ownerID)
	if err != nil {
		return nil, err
	}
	return cloneFolder(f), nil
}

func (d *Driver) UpdateFolder(ctx context.Context, folder *store.Folder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	if _, ok := d.folders[folder.ID]; !ok {
		return store.ErrNotFound
	}
	d.folders[folder.ID] = cloneFolder(folder)
	return nil
}

// lockedAdjacency answers adjacency queries while the driver lock is held.
// The validate callback in MoveFolder runs under the write lock, so no
// concurrent move can commit between validation and the write.
type lockedAdjacency struct {
	d *Driver
}

func (a *lockedAdjacency) Children(ctx context.Context, ownerID, id string) ([]*store.Folder, error) {
	var children []*store.Folder
	for _, f := range a.d.folders {
		if f.OwnerID == ownerID && f.ParentID != nil && *f.ParentID == id {
			children = append(children, cloneFolder(f))
		}
	}
	sortFoldersByName(children)
	return children, nil
}

func (a *lockedAdjacency) Parent(ctx context.Context, ownerID, id string) (*string, error) {
	f, err := a.d.getFolderLocked(id, ownerID)
	if err != nil {
		return nil, err
	}
	if f.ParentID == nil {
		return nil, nil
	}
	p := *f.ParentID
	return &p, nil
}

func (d *Driver) MoveFolder(ctx context.Context, id, ownerID string, newParentID *string, validate func(ctx context.Context, adj store.FolderAdjacency) error) (*store.Folder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	f, err := d.getFolderLocked(id, ownerID)
	if err != nil {
		return nil, err
	}
	if newParentID != nil {
		if _, err := d.getFolderLocked(*newParentID, ownerID); err != nil {
			return nil, err
		}
	}

	if validate != nil {
		if err := validate(ctx, &lockedAdjacency{d: d}); err != nil {
			return nil, err
		}
	}

	if newParentID != nil {
		p := *newParentID
		f.ParentID = &p
	} else {
		f.ParentID = nil
	}
	f.UpdatedAt = time.Now()
	return cloneFolder(f), nil
}

// DeleteFolderTree runs the resolve callback under the write lock, so the
// descendant set it deletes reflects current state even when a move committed
// after the caller's earlier reads.
func (d *Driver) DeleteFolderTree(ctx context.Context, id, ownerID string, resolve func(ctx context.Context, adj store.FolderAdjacency) ([]string, error)) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}

	if _, err := d.getFolderLocked(id, ownerID); err != nil {
		return nil, err
	}

	descendantIDs, err := resolve(ctx, &lockedAdjacency{d: d})
	if err != nil {
		return nil, err
	}

	doomed := make(map[string]bool, len(descendantIDs)+1)
	doomed[id] = true
	for _, did := range descendantIDs {
		doomed[did] = true
	}

	var keys []string
	for fid, f := range d.files {
		if f.OwnerID == ownerID && f.FolderID != nil && doomed[*f.FolderID] {
			keys = append(keys, f.StoredKey)
			delete(d.files, fid)
		}
	}
	for fid, f := range d.folders {
		if f.OwnerID == ownerID && doomed[fid] {
			delete(d.folders, fid)
		}
	}
	for _, s := range d.shares {
		if s.OwnerID == ownerID && doomed[s.FolderID] {
			s.IsActive = false
		}
	}
	return keys, nil
}

func sortFoldersByName(folders []*store.Folder) {
	sort.Slice(folders, func(i, j int) bool {
		return folders[i].Name < folders[j].Name
	})
}

func sortFilesByName(files []*store.File) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].OriginalName < files[j].OriginalName
	})
}

func (d *Driver) ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	var out []*store.Folder
	for _, f := range d.folders {
		if f.OwnerID != ownerID {
			continue
		}
		if parentID == nil {
			if f.ParentID != nil {
				continue
			}
		} else if f.ParentID == nil || *f.ParentID != *parentID {
			continue
		}
		out = append(out, cloneFolder(f))
	}
	sortFoldersByName(out)
	return out, nil
}

func (d *Driver) ListAllFolders(ctx context.Context, ownerID string) ([]*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	var out []*store.Folder
	for _, f := range d.folders {
		if f.OwnerID == ownerID {
			out = append(out, cloneFolder(f))
		}
	}
	sortFoldersByName(out)
	return out, nil
}

func (d *Driver) SearchFolders(ctx context.Context, ownerID, q string) ([]*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	var out []*store.Folder
	for _, f := range d.folders {
		if f.OwnerID == ownerID && strings.Contains(strings.ToLower(f.Name), needle) {
			out = append(out, cloneFolder(f))
		}
	}
	sortFoldersByName(out)
	return out, nil
}

func (d *Driver) CountFolderChildren(ctx context.Context, id string) (int64, int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return 0, 0, err
	}
	var folders, files int64
	for _, f := range d.folders {
		if f.ParentID != nil && *f.ParentID == id {
			folders++
		}
	}
	for _, f := range d.files {
		if f.FolderID != nil && *f.FolderID == id {
			files++
		}
	}
	return folders, files, nil
}

// Children returns the direct child folders of id.
func (d *Driver) Children(ctx context.Context, ownerID, id string) ([]*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	adj := &lockedAdjacency{d: d}
	return adj.Children(ctx, ownerID, id)
}

// Parent returns the parent id of the folder, or nil for root level.
func (d *Driver) Parent(ctx context.Context, ownerID, id string) (*string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	adj := &lockedAdjacency{d: d}
	return adj.Parent(ctx, ownerID, id)
}

// FileStore implementation

func (d *Driver) CreateFile(ctx context.Context, file *store.File) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	d.files[file.ID] = cloneFile(file)
	return nil
}

func (d *Driver) GetFile(ctx context.Context, id string) (*store.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	f, ok := d.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneFile(f), nil
}

func (d *Driver) UpdateFile(ctx context.Context, file *store.File) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	if _, ok := d.files[file.ID]; !ok {
		return store.ErrNotFound
	}
	d.files[file.ID] = cloneFile(file)
	return nil
}

func (d *Driver) DeleteFile(ctx context.Context, id, ownerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	f, ok := d.files[id]
	if !ok || f.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(d.files, id)
	return nil
}

func (d *Driver) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*store.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	var out []*store.File
	for _, f := range d.files {
		if f.OwnerID != ownerID {
			continue
		}
		if folderID == nil {
			if f.FolderID != nil {
				continue
			}
		} else if f.FolderID == nil || *f.FolderID != *folderID {
			continue
		}
		out = append(out, cloneFile(f))
	}
	sortFilesByName(out)
	return out, nil
}

func (d *Driver) ListFilesInFolders(ctx context.Context, ownerID string, ids []string) ([]*store.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*store.File
	for _, f := range d.files {
		if f.OwnerID == ownerID && f.FolderID != nil && want[*f.FolderID] {
			out = append(out, cloneFile(f))
		}
	}
	sortFilesByName(out)
	return out, nil
}

func (d *Driver) SearchFiles(ctx context.Context, ownerID, q string) ([]*store.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	var out []*store.File
	for _, f := range d.files {
		if f.OwnerID == ownerID && strings.Contains(strings.ToLower(f.OriginalName), needle) {
			out = append(out, cloneFile(f))
		}
	}
	sortFilesByName(out)
	return out, nil
}

func (d *Driver) ListPublicFiles(ctx context.Context, ownerID string) ([]*store.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	var out []*store.File
	for _, f := range d.files {
		if f.OwnerID == ownerID && f.IsPublic {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (d *Driver) ListRecentFiles(ctx context.Context, ownerID string, since time.Time, limit int) ([]*store.File, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	var out []*store.File
	for _, f := range d.files {
		if f.OwnerID == ownerID && !f.UpdatedAt.Before(since) {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ShareStore implementation

func (d *Driver) CreateShare(ctx context.Context, share *store.FolderShare) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	if _, ok := d.shareTokens[share.ShareToken]; ok {
		return store.ErrAlreadyExists
	}
	d.shares[share.ID] = cloneShare(share)
	d.shareTokens[share.ShareToken] = share.ID
	return nil
}

func (d *Driver) GetShareByToken(ctx context.Context, token string) (*store.FolderShare, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	id, ok := d.shareTokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneShare(d.shares[id]), nil
}

func (d *Driver) UpdateShare(ctx context.Context, share *store.FolderShare) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return err
	}
	if _, ok := d.shares[share.ID]; !ok {
		return store.ErrNotFound
	}
	d.shares[share.ID] = cloneShare(share)
	return nil
}

func (d *Driver) ListSharesByOwner(ctx context.Context, ownerID string) ([]*store.FolderShare, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	var out []*store.FolderShare
	for _, s := range d.shares {
		if s.OwnerID == ownerID {
			out = append(out, cloneShare(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CreateShareIfNoneValid checks and inserts under the write lock, so two
// concurrent creates for the same folder cannot both pass the check.
func (d *Driver) CreateShareIfNoneValid(ctx context.Context, share *store.FolderShare, now time.Time) (*store.FolderShare, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	for _, s := range d.shares {
		if s.FolderID == share.FolderID && s.OwnerID == share.OwnerID && s.Valid(now) {
			return cloneShare(s), store.ErrAlreadyExists
		}
	}
	if _, ok := d.shareTokens[share.ShareToken]; ok {
		return nil, store.ErrAlreadyExists
	}
	d.shares[share.ID] = cloneShare(share)
	d.shareTokens[share.ShareToken] = share.ID
	return cloneShare(share), nil
}

func (d *Driver) TouchShare(ctx context.Context, token string, now time.Time) (*store.FolderShare, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkClosed(); err != nil {
		return nil, err
	}
	id, ok := d.shareTokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	s := d.shares[id]
	if !s.Valid(now) {
		return nil, store.ErrConflict
	}
	s.AccessCount++
	return cloneShare(s), nil
}

// Compile-time interface checks
var _ store.Stores = (*Driver)(nil)
var _ store.FolderAdjacency = (*Driver)(nil)
