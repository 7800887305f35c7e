package folders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkarimof/filedepot/internal/blob"
	"github.com/mkarimof/filedepot/internal/blob/localdisk"
	cachememory "github.com/mkarimof/filedepot/internal/cache/memory"
	"github.com/mkarimof/filedepot/internal/foldertree"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/server"
	"github.com/mkarimof/filedepot/internal/store"
	storememory "github.com/mkarimof/filedepot/internal/store/memory"
)

type fixture struct {
	router *chi.Mux
	stores store.Stores
	token  string
	userID string
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
	NewHandler(foldertree.NewService(stores, blobs), nil).Routes(r)

	return &fixture{router: r, stores: stores, token: session.Token, userID: user.ID}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createFolder(t *testing.T, name string, parentID string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q}`, name)
	if parentID != "" {
		body = fmt.Sprintf(`{"name":%q,"parentId":%q}`, name, parentID)
	}
	rec := f.do(t, http.MethodPost, "/api/folders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create folder status = %d, body %s", rec.Code, rec.Body.String())
	}
	var folder store.Folder
	if err := json.Unmarshal(rec.Body.Bytes(), &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}
	return folder.ID
}

func TestCreateAndGetFolder(t *testing.T) {
	f := newFixture(t)

	parent := f.createFolder(t, "docs", "")
	child := f.createFolder(t, "reports", parent)

	rec := f.do(t, http.MethodGet, "/api/folders/"+child, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var detail DetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Breadcrumb) != 2 || detail.Breadcrumb[0].ID != parent || detail.Breadcrumb[1].ID != child {
		t.Errorf("breadcrumb wrong: %+v", detail.Breadcrumb)
	}
}

func TestCreateUnderMissingParent(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/folders", `{"name":"x","parentId":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMoveIntoDescendantRejected(t *testing.T) {
	f := newFixture(t)

	a := f.createFolder(t, "a", "")
	b := f.createFolder(t, "b", a)
	c := f.createFolder(t, "c", b)

	rec := f.do(t, http.MethodPatch, "/api/folders/"+a, fmt.Sprintf(`{"move":true,"parentId":%q}`, c))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Error struct {
			ReasonCode string `json:"reason_code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.ReasonCode != "invalid_operation" {
		t.Errorf("reason_code = %q, want invalid_operation", envelope.Error.ReasonCode)
	}
}

func TestSelfParentRejected(t *testing.T) {
	f := newFixture(t)
	a := f.createFolder(t, "a", "")

	rec := f.do(t, http.MethodPatch, "/api/folders/"+a, fmt.Sprintf(`{"move":true,"parentId":%q}`, a))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRenameAndMoveToRoot(t *testing.T) {
	f := newFixture(t)
	a := f.createFolder(t, "a", "")
	b := f.createFolder(t, "b", a)

	rec := f.do(t, http.MethodPatch, "/api/folders/"+b, `{"name":"renamed","move":true,"parentId":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var folder store.Folder
	if err := json.Unmarshal(rec.Body.Bytes(), &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}
	if folder.Name != "renamed" || folder.ParentID != nil {
		t.Errorf("folder = %+v, want renamed at root", folder)
	}
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	a := f.createFolder(t, "a", "")
	b := f.createFolder(t, "b", a)

	rec := f.do(t, http.MethodDelete, "/api/folders/"+a, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	for _, id := range []string{a, b} {
		if rec := f.do(t, http.MethodGet, "/api/folders/"+id, ""); rec.Code != http.StatusNotFound {
			t.Errorf("folder %s after cascade: status = %d, want 404", id, rec.Code)
		}
	}
}

func TestTreeExcludesSubtree(t *testing.T) {
	f := newFixture(t)
	a := f.createFolder(t, "a", "")
	b := f.createFolder(t, "b", a)
	f.createFolder(t, "c", b)
	d := f.createFolder(t, "d", "")

	rec := f.do(t, http.MethodGet, "/api/folders/tree?excludeId="+b, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tree status = %d", rec.Code)
	}
	var resp TreeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode tree: %v", err)
	}

	var ids []string
	var walk func(nodes []*foldertree.Node)
	walk = func(nodes []*foldertree.Node) {
		for _, n := range nodes {
			ids = append(ids, n.Folder.ID)
			walk(n.Children)
		}
	}
	walk(resp.Tree)

	want := map[string]bool{a: true, d: true}
	if len(ids) != 2 {
		t.Fatalf("tree ids = %v, want exactly {a, d}", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %s in pruned tree", id)
		}
	}
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	a := f.createFolder(t, "a", "")

	// A second user cannot see the first user's folder.
	ctx := context.Background()
	other := &store.User{ID: "u2", Username: "bob", PasswordHash: "x"}
	if err := f.stores.CreateUser(ctx, other); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := f.stores.GetFolder(ctx, a, other.ID)
	if err == nil {
		t.Errorf("cross-owner GetFolder returned %+v, want ErrNotFound", got)
	}
}
