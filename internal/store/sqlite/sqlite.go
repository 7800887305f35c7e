// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mkarimof/filedepot/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Stores using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Stores, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "filedepot.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(
		&store.User{},
		&store.Folder{},
		&store.File{},
		&store.FolderShare{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UserStore implementation

// CreateUser inserts a new user.
func (d *Driver) CreateUser(ctx context.Context, user *store.User) error {
	var count int64
	if err := d.db.WithContext(ctx).Model(&store.User{}).
		Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return store.ErrAlreadyExists
	}
	return d.db.WithContext(ctx).Create(user).Error
}

// GetUser retrieves a user by id.
func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	var user store.User
	result := d.db.WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (d *Driver) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	var user store.User
	result := d.db.WithContext(ctx).First(&user, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// FolderStore implementation

// CreateFolder inserts a new folder.
func (d *Driver) CreateFolder(ctx context.Context, folder *store.Folder) error {
	return d.db.WithContext(ctx).Create(folder).Error
}

// GetFolder retrieves a folder by id, scoped to its owner.
func (d *Driver) GetFolder(ctx context.Context, id, ownerID string) (*store.Folder, error) {
	return getFolder(d.db.WithContext(ctx), id, ownerID)
}

func getFolder(tx *gorm.DB, id, ownerID string) (*store.Folder, error) {
	var folder store.Folder
	result := tx.First(&folder, "id = ? AND owner_id = ?", id, ownerID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &folder, nil
}

// UpdateFolder saves folder attribute changes.
func (d *Driver) UpdateFolder(ctx context.Context, folder *store.Folder) error {
	return d.db.WithContext(ctx).Save(folder).Error
}

// txAdjacency answers parent/child queries against a transaction's view.
type txAdjacency struct {
	tx *gorm.DB
}

func (a *txAdjacency) Children(ctx context.Context, ownerID, id string) ([]*store.Folder, error) {
	var children []*store.Folder
	result := a.tx.WithContext(ctx).
		Where("owner_id = ? AND parent_id = ?", ownerID, id).
		Order("name asc").
		Find(&children)
	if result.Error != nil {
		return nil, result.Error
	}
	return children, nil
}

func (a *txAdjacency) Parent(ctx context.Context, ownerID, id string) (*string, error) {
	folder, err := getFolder(a.tx.WithContext(ctx), id, ownerID)
	if err != nil {
		return nil, err
	}
	return folder.ParentID, nil
}

// MoveFolder re-parents a folder inside a transaction. The validate callback
// sees transaction state, so the cycle check it runs cannot race a concurrent
// move that committed after the caller's earlier reads.
func (d *Driver) MoveFolder(ctx context.Context, id, ownerID string, newParentID *string, validate func(ctx context.Context, adj store.FolderAdjacency) error) (*store.Folder, error) {
	var moved *store.Folder

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := getFolder(tx, id, ownerID)
		if err != nil {
			return err
		}

		if newParentID != nil {
			if _, err := getFolder(tx, *newParentID, ownerID); err != nil {
				return err
			}
		}

		if validate != nil {
			if err := validate(ctx, &txAdjacency{tx: tx}); err != nil {
				return err
			}
		}

		folder.ParentID = newParentID
		folder.UpdatedAt = time.Now()
		if err := tx.Save(folder).Error; err != nil {
			return err
		}

		moved = folder
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// DeleteFolderTree removes the folder, its descendants, and every file record
// inside any of them, all in one transaction. The resolve callback sees
// transaction state, so the descendant set cannot go stale against a move
// that committed after the caller's earlier reads. Shares of removed folders
// are deactivated in the same transaction. Returns the stored content keys of
// the removed files.
func (d *Driver) DeleteFolderTree(ctx context.Context, id, ownerID string, resolve func(ctx context.Context, adj store.FolderAdjacency) ([]string, error)) ([]string, error) {
	var keys []string

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getFolder(tx, id, ownerID); err != nil {
			return err
		}

		descendantIDs, err := resolve(ctx, &txAdjacency{tx: tx})
		if err != nil {
			return err
		}
		ids := append([]string{id}, descendantIDs...)

		var files []*store.File
		if err := tx.Where("owner_id = ? AND folder_id IN ?", ownerID, ids).Find(&files).Error; err != nil {
			return err
		}
		for _, f := range files {
			keys = append(keys, f.StoredKey)
		}

		if err := tx.Where("owner_id = ? AND folder_id IN ?", ownerID, ids).Delete(&store.File{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&store.FolderShare{}).
			Where("owner_id = ? AND folder_id IN ?", ownerID, ids).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Where("owner_id = ? AND id IN ?", ownerID, ids).Delete(&store.Folder{}).Error
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ListFolders returns the owner's folders under the given parent.
func (d *Driver) ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*store.Folder, error) {
	query := d.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var folders []*store.Folder
	if err := query.Order("name asc").Find(&folders).Error; err != nil {
		return nil, err
	}
	return folders, nil
}

// ListAllFolders returns every folder of the owner.
func (d *Driver) ListAllFolders(ctx context.Context, ownerID string) ([]*store.Folder, error) {
	var folders []*store.Folder
	result := d.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name asc").
		Find(&folders)
	if result.Error != nil {
		return nil, result.Error
	}
	return folders, nil
}

// SearchFolders returns the owner's folders matching q by name.
func (d *Driver) SearchFolders(ctx context.Context, ownerID, q string) ([]*store.Folder, error) {
	var folders []*store.Folder
	result := d.db.WithContext(ctx).
		Where("owner_id = ? AND name LIKE ?", ownerID, "%"+q+"%").
		Order("name asc").
		Find(&folders)
	if result.Error != nil {
		return nil, result.Error
	}
	return folders, nil
}

// CountFolderChildren returns the number of direct child folders and files.
func (d *Driver) CountFolderChildren(ctx context.Context, id string) (int64, int64, error) {
	var folders, files int64
	if err := d.db.WithContext(ctx).Model(&store.Folder{}).
		Where("parent_id = ?", id).Count(&folders).Error; err != nil {
		return 0, 0, err
	}
	if err := d.db.WithContext(ctx).Model(&store.File{}).
		Where("folder_id = ?", id).Count(&files).Error; err != nil {
		return 0, 0, err
	}
	return folders, files, nil
}

// Children returns the direct child folders of id.
func (d *Driver) Children(ctx context.Context, ownerID, id string) ([]*store.Folder, error) {
	adj := &txAdjacency{tx: d.db}
	return adj.Children(ctx, ownerID, id)
}

// Parent returns the parent id of the folder, or nil for root level.
func (d *Driver) Parent(ctx context.Context, ownerID, id string) (*string, error) {
	adj := &txAdjacency{tx: d.db}
	return adj.Parent(ctx, ownerID, id)
}

// FileStore implementation

// CreateFile inserts a new file record.
func (d *Driver) CreateFile(ctx context.Context, file *store.File) error {
	return d.db.WithContext(ctx).Create(file).Error
}

// GetFile retrieves a file by id. Unscoped by owner: callers decide between
// owner access and public access.
func (d *Driver) GetFile(ctx context.Context, id string) (*store.File, error) {
	var file store.File
	result := d.db.WithContext(ctx).First(&file, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &file, nil
}

// UpdateFile saves file attribute changes.
func (d *Driver) UpdateFile(ctx context.Context, file *store.File) error {
	return d.db.WithContext(ctx).Save(file).Error
}

// DeleteFile removes a file record owned by ownerID.
func (d *Driver) DeleteFile(ctx context.Context, id, ownerID string) error {
	result := d.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&store.File{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListFiles returns the owner's files in the given folder.
func (d *Driver) ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*store.File, error) {
	query := d.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if folderID == nil {
		query = query.Where("folder_id IS NULL")
	} else {
		query = query.Where("folder_id = ?", *folderID)
	}

	var files []*store.File
	if err := query.Order("original_name asc").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// ListFilesInFolders returns every file whose folder id is in ids.
func (d *Driver) ListFilesInFolders(ctx context.Context, ownerID string, ids []string) ([]*store.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []*store.File
	result := d.db.WithContext(ctx).
		Where("owner_id = ? AND folder_id IN ?", ownerID, ids).
		Order("original_name asc").
		Find(&files)
	if result.Error != nil {
		return nil, result.Error
	}
	return files, nil
}

// SearchFiles returns the owner's files matching q by original name.
func (d *Driver) SearchFiles(ctx context.Context, ownerID, q string) ([]*store.File, error) {
	var files []*store.File
	result := d.db.WithContext(ctx).
		Where("owner_id = ? AND original_name LIKE ?", ownerID, "%"+q+"%").
		Order("original_name asc").
		Find(&files)
	if result.Error != nil {
		return nil, result.Error
	}
	return files, nil
}

// ListPublicFiles returns the owner's public files, newest first.
func (d *Driver) ListPublicFiles(ctx context.Context, ownerID string) ([]*store.File, error) {
	var files []*store.File
	result := d.db.WithContext(ctx).
		Where("owner_id = ? AND is_public = ?", ownerID, true).
		Order("created_at desc").
		Find(&files)
	if result.Error != nil {
		return nil, result.Error
	}
	return files, nil
}

// ListRecentFiles returns the owner's recently updated files.
func (d *Driver) ListRecentFiles(ctx context.Context, ownerID string, since time.Time, limit int) ([]*store.File, error) {
	var files []*store.File
	result := d.db.WithContext(ctx).
		Where("owner_id = ? AND updated_at >= ?", ownerID, since).
		Order("updated_at desc").
		Limit(limit).
		Find(&files)
	if result.Error != nil {
		return nil, result.Error
	}
	return files, nil
}

// ShareStore implementation

// CreateShare inserts a new folder share.
func (d *Driver) CreateShare(ctx context.Context, share *store.FolderShare) error {
	return d.db.WithContext(ctx).Create(share).Error
}

// GetShareByToken retrieves a share by its token.
func (d *Driver) GetShareByToken(ctx context.Context, token string) (*store.FolderShare, error) {
	var share store.FolderShare
	result := d.db.WithContext(ctx).First(&share, "share_token = ?", token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &share, nil
}

// UpdateShare saves share changes.
func (d *Driver) UpdateShare(ctx context.Context, share *store.FolderShare) error {
	return d.db.WithContext(ctx).Save(share).Error
}

// ListSharesByOwner returns all shares created by the owner, newest first.
func (d *Driver) ListSharesByOwner(ctx context.Context, ownerID string) ([]*store.FolderShare, error) {
	var shares []*store.FolderShare
	result := d.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&shares)
	if result.Error != nil {
		return nil, result.Error
	}
	return shares, nil
}

// CreateShareIfNoneValid re-checks for a valid share and inserts inside one
// transaction, so two concurrent creates for the same folder cannot both
// pass the check.
func (d *Driver) CreateShareIfNoneValid(ctx context.Context, share *store.FolderShare, now time.Time) (*store.FolderShare, error) {
	var existing store.FolderShare
	var found bool

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("folder_id = ? AND owner_id = ? AND is_active = ? AND expires_at > ?",
			share.FolderID, share.OwnerID, true, now).First(&existing)
		if result.Error == nil {
			found = true
			return store.ErrAlreadyExists
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		return tx.Create(share).Error
	})
	if err != nil {
		if found && errors.Is(err, store.ErrAlreadyExists) {
			return &existing, store.ErrAlreadyExists
		}
		return nil, err
	}
	return share, nil
}

// TouchShare increments the access count with a single conditional update.
// Concurrent resolutions each match the guarded UPDATE, so no increment is
// ever lost to a read-modify-write race.
func (d *Driver) TouchShare(ctx context.Context, token string, now time.Time) (*store.FolderShare, error) {
	result := d.db.WithContext(ctx).Model(&store.FolderShare{}).
		Where("share_token = ? AND is_active = ? AND expires_at > ?", token, true, now).
		UpdateColumn("access_count", gorm.Expr("access_count + ?", 1))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish unknown token from an invalid share.
		if _, err := d.GetShareByToken(ctx, token); err != nil {
			return nil, err
		}
		return nil, store.ErrConflict
	}
	return d.GetShareByToken(ctx, token)
}

// Compile-time interface checks
var _ store.Stores = (*Driver)(nil)
var _ store.FolderAdjacency = (*Driver)(nil)
