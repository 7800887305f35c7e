package webdav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/blob/localdisk"
	cachememory "github.com/mkarimof/filedepot/internal/cache/memory"
	filesvc "github.com/mkarimof/filedepot/internal/files"
	"github.com/mkarimof/filedepot/internal/sharing"
	"github.com/mkarimof/filedepot/internal/store"
	storememory "github.com/mkarimof/filedepot/internal/store/memory"
)

type fixture struct {
	handler *Handler
	stores  store.Stores
	files   *filesvc.Service
	shares  *sharing.Service
	userID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	stores, err := storememory.NewDriver(&store.DriverConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	blobs, err := localdisk.NewStore(&blob.Config{Driver: "localdisk", RootDir: t.TempDir()})
	if err != nil {
		t.Fatalf("localdisk driver: %v", err)
	}

	user := &store.User{ID: "u1", Username: "alice", PasswordHash: "x"}
	if err := stores.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	fsvc := filesvc.NewService(stores, blobs)
	ssvc := sharing.NewService(stores)

	return &fixture{
		handler: NewHandler(ssvc, fsvc, cachememory.New(time.Minute, 0), nil, nil),
		stores:  stores,
		files:   fsvc,
		shares:  ssvc,
		userID:  user.ID,
	}
}

func (f *fixture) createFolder(t *testing.T, name string, parentID *string) string {
	t.Helper()
	now := time.Now()
	folder := &store.Folder{
		ID: uuid.NewString(), Name: name, OwnerID: f.userID, ParentID: parentID,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := f.stores.CreateFolder(context.Background(), folder); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	return folder.ID
}

func (f *fixture) uploadFile(t *testing.T, name, content string, folderID *string) {
	t.Helper()
	if _, err := f.files.Upload(context.Background(), f.userID, name, "text/plain",
		int64(len(content)), strings.NewReader(content), folderID); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

func (f *fixture) share(t *testing.T, folderID string) string {
	t.Helper()
	share, err := f.shares.Create(context.Background(), f.userID, folderID, "7d")
	if err != nil {
		t.Fatalf("Create share: %v", err)
	}
	return share.ShareToken
}

func (f *fixture) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestGetSharedFile(t *testing.T) {
	f := newFixture(t)
	folderID := f.createFolder(t, "docs", nil)
	sub := f.createFolder(t, "nested", &folderID)
	f.uploadFile(t, "report.txt", "quarterly numbers", &sub)

	token := f.share(t, folderID)

	rec := f.do(http.MethodGet, "/webdav/share/"+token+"/nested/report.txt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "quarterly numbers" {
		t.Errorf("content = %q", got)
	}
}

func TestPropfindListsTree(t *testing.T) {
	f := newFixture(t)
	folderID := f.createFolder(t, "docs", nil)
	f.createFolder(t, "nested", &folderID)
	f.uploadFile(t, "top.txt", "x", &folderID)

	token := f.share(t, folderID)

	rec := f.do("PROPFIND", "/webdav/share/"+token+"/", map[string]string{"Depth": "1"})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"nested", "top.txt"} {
		if !strings.Contains(body, want) {
			t.Errorf("PROPFIND response missing %q", want)
		}
	}
}

func TestWriteMethodsRejected(t *testing.T) {
	f := newFixture(t)
	folderID := f.createFolder(t, "docs", nil)
	token := f.share(t, folderID)

	for _, method := range []string{http.MethodPut, http.MethodDelete, "MKCOL", "MOVE", "PROPPATCH"} {
		rec := f.do(method, "/webdav/share/"+token+"/x.txt", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", method, rec.Code)
		}
	}
}

func TestUnknownTokenIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/webdav/share/"+uuid.NewString()+"/x.txt", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeactivatedShareIsGone(t *testing.T) {
	f := newFixture(t)
	folderID := f.createFolder(t, "docs", nil)
	f.uploadFile(t, "a.txt", "x", &folderID)
	token := f.share(t, folderID)

	if _, err := f.shares.Deactivate(context.Background(), f.userID, token); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	rec := f.do(http.MethodGet, "/webdav/share/"+token+"/a.txt", nil)
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
}

func TestMountDoesNotCountAccess(t *testing.T) {
	f := newFixture(t)
	folderID := f.createFolder(t, "docs", nil)
	f.uploadFile(t, "a.txt", "x", &folderID)
	token := f.share(t, folderID)

	for i := 0; i < 5; i++ {
		f.do("PROPFIND", "/webdav/share/"+token+"/", map[string]string{"Depth": "1"})
	}

	share, err := f.stores.GetShareByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("GetShareByToken: %v", err)
	}
	if share.AccessCount != 0 {
		t.Errorf("AccessCount = %d, want 0 for WebDAV traffic", share.AccessCount)
	}
}

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(nil)
	if err != nil {
		t.Fatalf("DecodeSettings(nil): %v", err)
	}
	if s.ShareCacheTTLSeconds != 60 {
		t.Errorf("default TTL = %d, want 60", s.ShareCacheTTLSeconds)
	}

	s, err = DecodeSettings(map[string]any{"share_cache_ttl_seconds": 5})
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if s.ShareCacheTTL() != 5*time.Second {
		t.Errorf("TTL = %v, want 5s", s.ShareCacheTTL())
	}
}
