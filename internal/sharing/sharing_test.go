package sharing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkarimof/filedepot/internal/store"
	"github.com/mkarimof/filedepot/internal/store/memory"
)

const owner = "user-1"

func newTestService(t *testing.T) (*Service, store.Stores) {
	t.Helper()
	stores, err := memory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	return NewService(stores), stores
}

func makeFolder(t *testing.T, stores store.Stores, name string, parentID *string) *store.Folder {
	t.Helper()
	f := &store.Folder{ID: uuid.NewString(), Name: name, OwnerID: owner, ParentID: parentID}
	if err := stores.CreateFolder(context.Background(), f); err != nil {
		t.Fatalf("create folder: %v", err)
	}
	return f
}

func makeFile(t *testing.T, stores store.Stores, name string, folderID *string) *store.File {
	t.Helper()
	f := &store.File{ID: uuid.NewString(), OriginalName: name, OwnerID: owner, FolderID: folderID}
	if err := stores.CreateFile(context.Background(), f); err != nil {
		t.Fatalf("create file: %v", err)
	}
	return f
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"0d", 0, true},
		{"7", 0, true},
		{"d", 0, true},
		{"7w", 0, true},
		{"7dd", 0, true},
		{"-7d", 0, true},
		{"7 d", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDuration) {
				t.Errorf("ParseDuration(%q) err = %v, want ErrInvalidDuration", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestCreateShare(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	share, err := s.Create(ctx, owner, folder.ID, "7d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if share.ShareToken == "" || !share.IsActive {
		t.Errorf("share = %+v, want token and active", share)
	}
	if _, err := uuid.Parse(share.ShareToken); err != nil {
		t.Errorf("token %q is not a uuid: %v", share.ShareToken, err)
	}
}

func TestCreateShareUnknownFolder(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Create(context.Background(), owner, uuid.NewString(), "7d")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateShareForeignFolderHidden(t *testing.T) {
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	_, err := s.Create(context.Background(), "user-2", folder.ID, "7d")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateShareConflictReturnsExisting(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	first, err := s.Create(ctx, owner, folder.ID, "7d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	second, err := s.Create(ctx, owner, folder.ID, "1h")
	if !errors.Is(err, ErrShareExists) {
		t.Fatalf("second create err = %v, want ErrShareExists", err)
	}
	if second == nil || second.ShareToken != first.ShareToken {
		t.Errorf("conflict must surface the existing share")
	}
}

func TestCreateAfterDeactivateSucceeds(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	first, err := s.Create(ctx, owner, folder.ID, "7d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Deactivate(ctx, owner, first.ShareToken); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	second, err := s.Create(ctx, owner, folder.ID, "7d")
	if err != nil {
		t.Fatalf("create after deactivate: %v", err)
	}
	if second.ShareToken == first.ShareToken {
		t.Error("new share reused the old token")
	}
}

func TestResolveListsNestedFiles(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)

	root := makeFolder(t, stores, "root", nil)
	sub := makeFolder(t, stores, "sub", &root.ID)
	subsub := makeFolder(t, stores, "subsub", &sub.ID)
	makeFile(t, stores, "a.txt", &root.ID)
	makeFile(t, stores, "b.txt", &sub.ID)
	makeFile(t, stores, "c.txt", &subsub.ID)
	outside := makeFolder(t, stores, "outside", nil)
	makeFile(t, stores, "d.txt", &outside.ID)

	share, err := s.Create(ctx, owner, root.ID, "1d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := s.Resolve(ctx, share.ShareToken)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Folder.ID != root.ID {
		t.Errorf("resolved folder = %s, want %s", res.Folder.ID, root.ID)
	}
	if len(res.Folders) != 2 {
		t.Errorf("descendants = %d, want 2", len(res.Folders))
	}
	if len(res.Files) != 3 {
		t.Errorf("files = %d, want 3 (nested only)", len(res.Files))
	}
	if res.Share.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", res.Share.AccessCount)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Resolve(context.Background(), uuid.NewString())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveExpired(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	share, err := s.Create(ctx, owner, folder.ID, "30m")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := s.Resolve(ctx, share.ShareToken); !errors.Is(err, ErrShareInvalid) {
		t.Errorf("expired resolve err = %v, want ErrShareInvalid", err)
	}
}

func TestResolveDeactivated(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	share, err := s.Create(ctx, owner, folder.ID, "1d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Deactivate(ctx, owner, share.ShareToken); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := s.Resolve(ctx, share.ShareToken); !errors.Is(err, ErrShareInvalid) {
		t.Errorf("deactivated resolve err = %v, want ErrShareInvalid", err)
	}

	// Idempotent.
	if _, err := s.Deactivate(ctx, owner, share.ShareToken); err != nil {
		t.Errorf("second deactivate: %v", err)
	}
}

func TestExtendRevives(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	share, err := s.Create(ctx, owner, folder.ID, "30m")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Deactivate(ctx, owner, share.ShareToken); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	extended, err := s.Extend(ctx, owner, share.ShareToken, "2d")
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if !extended.IsActive {
		t.Error("extend must reactivate the share")
	}
	if got := time.Until(extended.ExpiresAt); got < 47*time.Hour {
		t.Errorf("new expiry too close: %v", got)
	}

	if _, err := s.Resolve(ctx, share.ShareToken); err != nil {
		t.Errorf("resolve after extend: %v", err)
	}
}

func TestConcurrentResolvesCountEveryAccess(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	share, err := s.Create(ctx, owner, folder.ID, "1d")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Resolve(ctx, share.ShareToken); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent resolve: %v", err)
	}

	final, err := stores.GetShareByToken(ctx, share.ShareToken)
	if err != nil {
		t.Fatalf("get share: %v", err)
	}
	if final.AccessCount != n {
		t.Errorf("access count = %d, want %d", final.AccessCount, n)
	}
}

func TestConcurrentCreatesMintOneShare(t *testing.T) {
	ctx := context.Background()
	s, stores := newTestService(t)
	folder := makeFolder(t, stores, "docs", nil)

	const n = 20
	var wg sync.WaitGroup
	var created, conflicted int64
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			share, err := s.Create(ctx, owner, folder.ID, "1d")
			switch {
			case err == nil:
				atomic.AddInt64(&created, 1)
			case errors.Is(err, ErrShareExists):
				atomic.AddInt64(&conflicted, 1)
				if share == nil {
					errs <- errors.New("conflict without the existing share")
				}
			default:
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent create: %v", err)
	}

	if created != 1 || conflicted != n-1 {
		t.Errorf("created = %d, conflicted = %d; want 1 and %d", created, conflicted, n-1)
	}

	shares, err := s.List(ctx, owner)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	now := time.Now()
	valid := 0
	for _, sh := range shares {
		if sh.Valid(now) {
			valid++
		}
	}
	if valid != 1 {
		t.Errorf("valid shares = %d, want exactly 1", valid)
	}
}
