package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/mkarimof/filedepot/internal/store"
)

// fakeAdjacency is a map-backed adjacency fixture: parents[id] points at the
// parent id, "" meaning root level.
type fakeAdjacency struct {
	parents map[string]string
}

func (a *fakeAdjacency) Children(ctx context.Context, ownerID, id string) ([]*store.Folder, error) {
	var out []*store.Folder
	for child, parent := range a.parents {
		if parent == id {
			out = append(out, &store.Folder{ID: child, OwnerID: ownerID, Name: child})
		}
	}
	return out, nil
}

func (a *fakeAdjacency) Parent(ctx context.Context, ownerID, id string) (*string, error) {
	parent, ok := a.parents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if parent == "" {
		return nil, nil
	}
	return &parent, nil
}

// a -> b -> c, with d a sibling of b under a.
func testForest() *fakeAdjacency {
	return &fakeAdjacency{parents: map[string]string{
		"a": "",
		"b": "a",
		"c": "b",
		"d": "a",
	}}
}

func TestAncestorIDs(t *testing.T) {
	ctx := context.Background()
	adj := testForest()

	tests := []struct {
		name string
		id   string
		want []string
	}{
		{"root has no ancestors", "a", nil},
		{"direct child", "b", []string{"a"}},
		{"grandchild nearest first", "c", []string{"b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AncestorIDs(ctx, adj, "owner", tt.id)
			if err != nil {
				t.Fatalf("AncestorIDs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ancestor[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAncestorIDsCycleTripsIntegrity(t *testing.T) {
	adj := &fakeAdjacency{parents: map[string]string{
		"x": "y",
		"y": "x",
	}}
	_, err := AncestorIDs(context.Background(), adj, "owner", "x")
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestDescendants(t *testing.T) {
	ctx := context.Background()
	adj := testForest()

	ids, err := DescendantIDs(ctx, adj, "owner", "a")
	if err != nil {
		t.Fatalf("DescendantIDs: %v", err)
	}
	got := make(map[string]bool, len(ids))
	for _, id := range ids {
		got[id] = true
	}
	for _, want := range []string{"b", "c", "d"} {
		if !got[want] {
			t.Errorf("missing descendant %q in %v", want, ids)
		}
	}
	if got["a"] {
		t.Error("root must not be included in its own descendants")
	}

	leaf, err := DescendantIDs(ctx, adj, "owner", "c")
	if err != nil {
		t.Fatalf("DescendantIDs leaf: %v", err)
	}
	if len(leaf) != 0 {
		t.Errorf("leaf descendants = %v, want none", leaf)
	}
}

func TestDescendantsDeepChainWithinBound(t *testing.T) {
	parents := map[string]string{folderID(0): ""}
	for i := 1; i < MaxDepth-1; i++ {
		parents[folderID(i)] = folderID(i - 1)
	}
	adj := &fakeAdjacency{parents: parents}

	ids, err := DescendantIDs(context.Background(), adj, "owner", folderID(0))
	if err != nil {
		t.Fatalf("DescendantIDs: %v", err)
	}
	if len(ids) != MaxDepth-2 {
		t.Errorf("len = %d, want %d", len(ids), MaxDepth-2)
	}
}

func folderID(i int) string {
	return "f" + string(rune('0'+i/100)) + string(rune('0'+(i/10)%10)) + string(rune('0'+i%10))
}

func TestValidateMove(t *testing.T) {
	ctx := context.Background()
	adj := testForest()
	owner := "owner"

	root := func(s string) *string { return &s }

	tests := []struct {
		name      string
		folder    string
		newParent *string
		wantErr   error
	}{
		{"to root always valid", "b", nil, nil},
		{"to sibling valid", "b", root("d"), nil},
		{"into own subtree rejected", "b", root("c"), ErrCycle},
		{"into itself rejected", "b", root("b"), ErrCycle},
		{"leaf under root valid", "c", root("a"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMove(ctx, adj, owner, tt.folder, tt.newParent)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMove = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
