package files

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/blob/localdisk"
	"github.com/mkarimof/filedepot/internal/store"
	"github.com/mkarimof/filedepot/internal/store/memory"
)

const owner = "user-1"

func newTestService(t *testing.T) (*Service, store.Stores, blob.Store) {
	t.Helper()
	ctx := context.Background()

	stores, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	if err := stores.Init(ctx); err != nil {
		t.Fatalf("store init: %v", err)
	}

	blobs, err := localdisk.NewStore(&blob.Config{Driver: "localdisk", RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	if err := blobs.Init(ctx); err != nil {
		t.Fatalf("blob init: %v", err)
	}

	return NewService(stores, blobs), stores, blobs
}

func upload(t *testing.T, s *Service, name, content string, folderID *string) *store.File {
	t.Helper()
	f, err := s.Upload(context.Background(), owner, name, "text/plain", int64(len(content)), strings.NewReader(content), folderID)
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return f
}

func TestUploadAndOpen(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	f := upload(t, s, "notes.txt", "file body", nil)
	if f.Size != 9 || f.MimeType != "text/plain" {
		t.Errorf("file = %+v, wrong size or mime", f)
	}

	got, rc, err := s.Open(ctx, owner, f.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "file body" {
		t.Errorf("content = %q, want %q", body, "file body")
	}
	if got.ID != f.ID {
		t.Errorf("record id = %s, want %s", got.ID, f.ID)
	}
}

func TestUploadToMissingFolderCleansUpContent(t *testing.T) {
	ctx := context.Background()
	rootDir := t.TempDir()

	stores, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	blobs, err := localdisk.NewStore(&blob.Config{Driver: "localdisk", RootDir: rootDir})
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	if err := blobs.Init(ctx); err != nil {
		t.Fatalf("blob init: %v", err)
	}
	s := NewService(stores, blobs)

	missing := uuid.NewString()
	_, err = s.Upload(ctx, owner, "lost.txt", "text/plain", 4, strings.NewReader("body"), &missing)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Upload err = %v, want ErrNotFound", err)
	}

	// Nothing may survive in the blob store.
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d blobs left behind after rejected upload", len(entries))
	}
}

func TestOpenForeignFileHidden(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	f := upload(t, s, "secret.txt", "body", nil)
	if _, _, err := s.Open(ctx, "user-2", f.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign open err = %v, want ErrNotFound", err)
	}
}

func TestOpenPublic(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	f := upload(t, s, "pub.txt", "body", nil)

	if _, _, err := s.OpenPublic(ctx, f.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("private file via public path err = %v, want ErrNotFound", err)
	}

	if _, err := s.SetPublic(ctx, owner, f.ID, true); err != nil {
		t.Fatalf("SetPublic: %v", err)
	}
	_, rc, err := s.OpenPublic(ctx, f.ID)
	if err != nil {
		t.Fatalf("OpenPublic: %v", err)
	}
	rc.Close()
}

func TestDeleteRemovesRecordAndContent(t *testing.T) {
	ctx := context.Background()
	s, stores, blobs := newTestService(t)

	f := upload(t, s, "gone.txt", "body", nil)
	key := f.StoredKey

	if err := s.Delete(ctx, owner, f.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := stores.GetFile(ctx, f.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record survived delete: %v", err)
	}
	if _, err := blobs.Get(ctx, key); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("content survived delete: %v", err)
	}

	// Idempotence at the service boundary: a second delete is not found.
	if err := s.Delete(ctx, owner, f.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestMoveToFolder(t *testing.T) {
	ctx := context.Background()
	s, stores, _ := newTestService(t)

	folder := &store.Folder{ID: uuid.NewString(), Name: "docs", OwnerID: owner}
	if err := stores.CreateFolder(ctx, folder); err != nil {
		t.Fatalf("create folder: %v", err)
	}

	f := upload(t, s, "move.txt", "body", nil)
	moved, err := s.MoveToFolder(ctx, owner, f.ID, &folder.ID)
	if err != nil {
		t.Fatalf("MoveToFolder: %v", err)
	}
	if moved.FolderID == nil || *moved.FolderID != folder.ID {
		t.Errorf("FolderID = %v, want %s", moved.FolderID, folder.ID)
	}

	missing := uuid.NewString()
	if _, err := s.MoveToFolder(ctx, owner, f.ID, &missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("move to missing folder err = %v, want ErrNotFound", err)
	}
}

func TestRenameValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	f := upload(t, s, "old.txt", "body", nil)
	if _, err := s.Rename(ctx, owner, f.ID, ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty rename err = %v, want ErrInvalidName", err)
	}
	renamed, err := s.Rename(ctx, owner, f.ID, "new.txt")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.OriginalName != "new.txt" {
		t.Errorf("name = %q, want %q", renamed.OriginalName, "new.txt")
	}
}
