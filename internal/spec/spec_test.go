package spec

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/specforge/specforge/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func mustSave(t *testing.T, store *Store, meta *Metadata) {
	t.Helper()
	if err := store.Save(meta); err != nil {
		t.Fatalf("save %s: %v", meta.Name, err)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := &Metadata{
		Name:         "auth-service",
		Description:  "token issuing service",
		Status:       models.SpecPending,
		Dependencies: []string{"database", "config"},
	}
	mustSave(t, store, in)

	out, err := store.Load("auth-service")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestStoreLoadDefaults(t *testing.T) {
	store := newTestStore(t)

	dir := store.SpecDir("bare")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	// Minimal metadata: name and status are filled from context.
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), []byte("description: nothing else\n"), 0644); err != nil {
		t.Fatal(err)
	}

	meta, err := store.Load("bare")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Name != "bare" {
		t.Errorf("expected name from directory, got %q", meta.Name)
	}
	if meta.Status != models.SpecPending {
		t.Errorf("expected pending default, got %s", meta.Status)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("ghost"); err == nil {
		t.Fatal("expected error for missing spec")
	}
}

func TestStoreSaveRequiresName(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(&Metadata{}); err == nil {
		t.Fatal("expected error for unnamed spec")
	}
}

func TestStoreExists(t *testing.T) {
	store := newTestStore(t)

	if store.Exists("nope") {
		t.Error("missing spec must not exist")
	}

	// A spec directory without metadata does not count.
	if err := os.MkdirAll(store.SpecDir("empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if store.Exists("empty") {
		t.Error("directory without metadata must not exist")
	}

	mustSave(t, store, &Metadata{Name: "real", Status: models.SpecPending})
	if !store.Exists("real") {
		t.Error("saved spec must exist")
	}
}

func TestStoreListSorted(t *testing.T) {
	store := newTestStore(t)

	names, err := store.List()
	if err != nil {
		t.Fatalf("list empty workspace: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no specs, got %v", names)
	}

	for _, name := range []string{"zeta", "alpha", "mid"} {
		mustSave(t, store, &Metadata{Name: name, Status: models.SpecPending})
	}
	// Stray file in the specs directory is ignored.
	if err := os.WriteFile(filepath.Join(store.Dir(), "README"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err = store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestStoreDocuments(t *testing.T) {
	store := newTestStore(t)
	mustSave(t, store, &Metadata{Name: "docs", Status: models.SpecPending})

	if docs := store.Documents("docs"); len(docs) != 0 {
		t.Fatalf("expected no documents, got %v", docs)
	}

	for _, f := range []string{"requirements.md", "tasks.md"} {
		if err := os.WriteFile(filepath.Join(store.SpecDir("docs"), f), []byte("# x\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	docs := store.Documents("docs")
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %v", docs)
	}
	if !strings.HasSuffix(docs[0], "requirements.md") || !strings.HasSuffix(docs[1], "tasks.md") {
		t.Errorf("unexpected document order: %v", docs)
	}
}

func TestLifecycleValidTransitions(t *testing.T) {
	store := newTestStore(t)
	lm := NewLifecycleManager(store)

	mustSave(t, store, &Metadata{Name: "item", Status: models.SpecPending})

	steps := []models.SpecStatus{
		models.SpecAssigned,
		models.SpecInProgress,
		models.SpecCompleted,
	}
	for _, to := range steps {
		if err := lm.Transition("item", to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}

	meta, err := store.Load("item")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != models.SpecCompleted {
		t.Errorf("expected completed persisted, got %s", meta.Status)
	}
}

func TestLifecycleRejectsInvalidTransition(t *testing.T) {
	store := newTestStore(t)
	lm := NewLifecycleManager(store)

	mustSave(t, store, &Metadata{Name: "item", Status: models.SpecPending})

	if err := lm.Transition("item", models.SpecCompleted); err == nil {
		t.Fatal("pending -> completed must be rejected")
	}

	meta, _ := store.Load("item")
	if meta.Status != models.SpecPending {
		t.Errorf("rejected transition must not persist, got %s", meta.Status)
	}
}

func TestLifecycleSameStatusIsNoop(t *testing.T) {
	store := newTestStore(t)
	lm := NewLifecycleManager(store)

	mustSave(t, store, &Metadata{Name: "item", Status: models.SpecInProgress})
	if err := lm.Transition("item", models.SpecInProgress); err != nil {
		t.Fatalf("same-status transition must succeed: %v", err)
	}
}

func TestLifecycleFailedCanBeReassigned(t *testing.T) {
	store := newTestStore(t)
	lm := NewLifecycleManager(store)

	mustSave(t, store, &Metadata{Name: "item", Status: models.SpecFailed})
	if err := lm.Transition("item", models.SpecAssigned); err != nil {
		t.Fatalf("failed -> assigned must be allowed: %v", err)
	}

	mustSave(t, store, &Metadata{Name: "other", Status: models.SpecSkipped})
	if err := lm.Transition("other", models.SpecAssigned); err != nil {
		t.Fatalf("skipped -> assigned must be allowed: %v", err)
	}
}

func TestLifecycleSetStatusSkipsValidation(t *testing.T) {
	store := newTestStore(t)
	lm := NewLifecycleManager(store)

	mustSave(t, store, &Metadata{Name: "item", Status: models.SpecPending})
	if err := lm.SetStatus("item", models.SpecCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	meta, _ := store.Load("item")
	if meta.Status != models.SpecCompleted {
		t.Errorf("expected completed, got %s", meta.Status)
	}
}

func TestResolverBuildsGraph(t *testing.T) {
	store := newTestStore(t)
	resolver := NewResolver(store)

	mustSave(t, store, &Metadata{Name: "base", Status: models.SpecPending})
	mustSave(t, store, &Metadata{Name: "mid", Status: models.SpecPending, Dependencies: []string{"base"}})
	mustSave(t, store, &Metadata{Name: "leaf", Status: models.SpecPending, Dependencies: []string{"mid", "base"}})

	g, err := resolver.BuildDependencyGraph(context.Background(), []string{"base", "mid", "leaf"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	if !reflect.DeepEqual(g.Nodes, []string{"base", "mid", "leaf"}) {
		t.Errorf("nodes must follow request order, got %v", g.Nodes)
	}
	want := []models.Edge{
		{From: "mid", To: "base"},
		{From: "leaf", To: "mid"},
		{From: "leaf", To: "base"},
	}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("edges mismatch:\n got %v\nwant %v", g.Edges, want)
	}
}

func TestResolverIgnoresOutsideDependencies(t *testing.T) {
	store := newTestStore(t)
	resolver := NewResolver(store)

	mustSave(t, store, &Metadata{Name: "solo", Status: models.SpecPending, Dependencies: []string{"not-requested"}})
	mustSave(t, store, &Metadata{Name: "not-requested", Status: models.SpecPending})

	g, err := resolver.BuildDependencyGraph(context.Background(), []string{"solo"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if len(g.Edges) != 0 {
		t.Errorf("dependency outside the request must produce no edge, got %v", g.Edges)
	}
}

func TestResolverMissingSpec(t *testing.T) {
	store := newTestStore(t)
	resolver := NewResolver(store)

	if _, err := resolver.BuildDependencyGraph(context.Background(), []string{"ghost"}); err == nil {
		t.Fatal("expected error for missing spec metadata")
	}
}

func TestResolverSelfDependencyBecomesSelfEdge(t *testing.T) {
	store := newTestStore(t)
	resolver := NewResolver(store)

	mustSave(t, store, &Metadata{Name: "loop", Status: models.SpecPending, Dependencies: []string{"loop"}})

	g, err := resolver.BuildDependencyGraph(context.Background(), []string{"loop"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	want := []models.Edge{{From: "loop", To: "loop"}}
	if !reflect.DeepEqual(g.Edges, want) {
		t.Errorf("expected self edge, got %v", g.Edges)
	}
}
