// Package localdisk implements a blob store on the local filesystem.
package localdisk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkarimof/filedepot/internal/blob"
)

func init() {
	blob.Register("localdisk", NewStore)
}

// Store implements blob.Store on a directory tree.
type Store struct {
	rootDir string
}

// NewStore creates a new localdisk store instance.
func NewStore(cfg *blob.Config) (blob.Store, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("root_dir is required for localdisk driver")
	}
	return &Store{rootDir: cfg.RootDir}, nil
}

// Name returns the driver name.
func (s *Store) Name() string {
	return "localdisk"
}

// Init creates the content directory.
func (s *Store) Init(ctx context.Context) error {
	return os.MkdirAll(s.rootDir, 0o750)
}

// Close is a no-op for the localdisk store.
func (s *Store) Close() error {
	return nil
}

// path maps a key to a file path. Keys are opaque names minted by the files
// service; anything resembling a path is rejected so a crafted key can never
// escape the root.
func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(s.rootDir, key), nil
}

// Put stores content under key, writing to a temp file and renaming so a
// failed write never leaves a partial blob under the final name.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.rootDir, ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}

// Get opens the content stored under key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, blob.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the content under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var _ blob.Store = (*Store)(nil)
