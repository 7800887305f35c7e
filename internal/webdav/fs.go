package webdav

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"github.com/mkarimof/filedepot/internal/sharing"
	"github.com/mkarimof/filedepot/internal/store"
)

// ContentOpener streams a file's content for an already authorized access.
type ContentOpener interface {
	OpenShared(ctx context.Context, id string) (*store.File, io.ReadCloser, error)
}

// shareFS is a read-only webdav.FileSystem over one resolved share: the
// shared folder is the root, descendant folders are directories, and file
// content is fetched from the blob store on open.
type shareFS struct {
	root     *dirNode
	contents ContentOpener
}

type dirNode struct {
	name    string
	modTime time.Time
	dirs    map[string]*dirNode
	files   map[string]*store.File
}

func newDirNode(name string, modTime time.Time) *dirNode {
	return &dirNode{
		name:    name,
		modTime: modTime,
		dirs:    make(map[string]*dirNode),
		files:   make(map[string]*store.File),
	}
}

// newShareFS assembles the virtual tree from a resolved share listing.
// Folders whose parent fell outside the listing attach to the root, matching
// how the tree view treats orphans.
func newShareFS(resolved *sharing.Resolved, contents ContentOpener) *shareFS {
	root := newDirNode("/", resolved.Folder.UpdatedAt)

	nodes := map[string]*dirNode{resolved.Folder.ID: root}
	for _, f := range resolved.Folders {
		nodes[f.ID] = newDirNode(f.Name, f.UpdatedAt)
	}
	for _, f := range resolved.Folders {
		parent := root
		if f.ParentID != nil {
			if p, ok := nodes[*f.ParentID]; ok {
				parent = p
			}
		}
		parent.dirs[f.Name] = nodes[f.ID]
	}
	for _, f := range resolved.Files {
		parent := root
		if f.FolderID != nil {
			if p, ok := nodes[*f.FolderID]; ok {
				parent = p
			}
		}
		parent.files[f.OriginalName] = f
	}

	return &shareFS{root: root, contents: contents}
}

func (s *shareFS) resolve(name string) (*dirNode, *store.File, error) {
	name = path.Clean("/" + name)
	if name == "/" {
		return s.root, nil, nil
	}

	dir := s.root
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, part := range parts {
		if child, ok := dir.dirs[part]; ok {
			dir = child
			continue
		}
		if file, ok := dir.files[part]; ok && i == len(parts)-1 {
			return nil, file, nil
		}
		return nil, nil, os.ErrNotExist
	}
	return dir, nil, nil
}

func (s *shareFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (s *shareFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (s *shareFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (s *shareFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	dir, file, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if file != nil {
		return fileInfo{file}, nil
	}
	return dirInfo{dir}, nil
}

func (s *shareFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}
	dir, file, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if file != nil {
		return &davFile{ctx: ctx, fs: s, file: file}, nil
	}
	return &davDir{dir: dir}, nil
}

// dirInfo adapts a dirNode to fs.FileInfo.
type dirInfo struct{ d *dirNode }

func (i dirInfo) Name() string       { return i.d.name }
func (i dirInfo) Size() int64        { return 0 }
func (i dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0555 }
func (i dirInfo) ModTime() time.Time { return i.d.modTime }
func (i dirInfo) IsDir() bool        { return true }
func (i dirInfo) Sys() any           { return nil }

var _ fs.FileInfo = dirInfo{}

// fileInfo adapts a file record to fs.FileInfo.
type fileInfo struct{ f *store.File }

func (i fileInfo) Name() string       { return i.f.OriginalName }
func (i fileInfo) Size() int64        { return i.f.Size }
func (i fileInfo) Mode() fs.FileMode  { return 0444 }
func (i fileInfo) ModTime() time.Time { return i.f.UpdatedAt }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() any           { return nil }

// davDir serves directory listings.
type davDir struct {
	dir *dirNode
	pos int
}

func (d *davDir) Close() error { return nil }

func (d *davDir) Read(p []byte) (int, error) { return 0, io.EOF }

func (d *davDir) Write(p []byte) (int, error) { return 0, os.ErrPermission }

func (d *davDir) Seek(offset int64, whence int) (int64, error) { return 0, nil }

func (d *davDir) Stat() (os.FileInfo, error) { return dirInfo{d.dir}, nil }

func (d *davDir) Readdir(count int) ([]os.FileInfo, error) {
	var infos []os.FileInfo
	for _, sub := range d.dir.dirs {
		infos = append(infos, dirInfo{sub})
	}
	for _, f := range d.dir.files {
		infos = append(infos, fileInfo{f})
	}
	if count > 0 && d.pos >= len(infos) {
		return nil, io.EOF
	}
	infos = infos[d.pos:]
	d.pos += len(infos)
	return infos, nil
}

// davFile serves file content. The blob is loaded on first read so PROPFIND
// never touches the content store.
type davFile struct {
	ctx    context.Context
	fs     *shareFS
	file   *store.File
	reader *bytes.Reader
}

func (f *davFile) load() error {
	if f.reader != nil {
		return nil
	}
	_, rc, err := f.fs.contents.OpenShared(f.ctx, f.file.ID)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	f.reader = bytes.NewReader(data)
	return nil
}

func (f *davFile) Close() error { return nil }

func (f *davFile) Read(p []byte) (int, error) {
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.reader.Read(p)
}

func (f *davFile) Seek(offset int64, whence int) (int64, error) {
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.reader.Seek(offset, whence)
}

func (f *davFile) Write(p []byte) (int, error) { return 0, os.ErrPermission }

func (f *davFile) Readdir(count int) ([]os.FileInfo, error) { return nil, os.ErrInvalid }

func (f *davFile) Stat() (os.FileInfo, error) { return fileInfo{f.file}, nil }
