package files

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/blob/localdisk"
	cachememory "github.com/mkarimof/filedepot/internal/cache/memory"
	filesvc "github.com/mkarimof/filedepot/internal/files"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/store"
	storememory "github.com/mkarimof/filedepot/internal/store/memory"
)

type fixture struct {
	router *chi.Mux
	token  string
}

func newFixture(t *testing.T, maxBytes int64) *fixture {
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
	sessions := identity.NewCacheSessionRepo(cachememory.New(time.Hour, 0))
	session, err := sessions.Create(ctx, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("session Create: %v", err)
	}

	r := chi.NewRouter()
	r.Use(server.NewAuthGate(server.AuthGateConfig{
		RequireAuth: server.RequiresAuth,
		Sessions:    sessions,
		Users:       stores,
	}))
	NewHandler(filesvc.NewService(stores, blobs), maxBytes, nil).Routes(r)

	return &fixture{router: r, token: session.Token}
}

func (f *fixture) upload(t *testing.T, name, content, folderID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if folderID != "" {
		if err := mw.WriteField("folderId", folderID); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func uploadedID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var file store.File
	if err := json.Unmarshal(rec.Body.Bytes(), &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	return file.ID
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture(t, 1<<20)
	id := uploadedID(t, f.upload(t, "notes.txt", "hello depot", ""))

	rec := f.do(t, http.MethodGet, "/api/files/"+id, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "hello depot" {
		t.Errorf("downloaded content = %q", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes.txt") {
		t.Errorf("Content-Disposition = %q, want filename", cd)
	}
}

func TestAnonymousDownloadRequiresPublic(t *testing.T) {
	f := newFixture(t, 1<<20)
	id := uploadedID(t, f.upload(t, "secret.txt", "classified", ""))

	// Private files look nonexistent to anonymous requests.
	rec := f.do(t, http.MethodGet, "/api/files/"+id, "", false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("anonymous private download status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodPatch, "/api/files/"+id, `{"isPublic":true}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("set public status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/files/"+id, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous public download status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "classified" {
		t.Errorf("downloaded content = %q", got)
	}
}

func TestUploadToMissingFolder(t *testing.T) {
	f := newFixture(t, 1<<20)
	rec := f.upload(t, "x.txt", "data", "nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, 64)
	rec := f.upload(t, "big.bin", strings.Repeat("a", 4096), "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestRenameMoveDelete(t *testing.T) {
	f := newFixture(t, 1<<20)
	id := uploadedID(t, f.upload(t, "old.txt", "content", ""))

	rec := f.do(t, http.MethodPatch, "/api/files/"+id, `{"name":"new.txt"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}
	var file store.File
	if err := json.Unmarshal(rec.Body.Bytes(), &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if file.OriginalName != "new.txt" {
		t.Errorf("name = %q, want new.txt", file.OriginalName)
	}

	rec = f.do(t, http.MethodDelete, "/api/files/"+id, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/files/"+id+"/info", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("info after delete status = %d, want 404", rec.Code)
	}
}

func TestInfoRequiresAuth(t *testing.T) {
	f := newFixture(t, 1<<20)
	id := uploadedID(t, f.upload(t, "a.txt", "data", ""))

	rec := f.do(t, http.MethodGet, "/api/files/"+id+"/info", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
