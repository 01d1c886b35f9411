package watch

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/specforge/specforge/internal/spec"
	"github.com/specforge/specforge/pkg/models"
)

func newWatchedStore(t *testing.T) (*spec.Store, chan []string) {
	t.Helper()

	store := spec.NewStore(t.TempDir())
	changes := make(chan []string, 8)

	w, err := New(store, 50*time.Millisecond, func(names []string) {
		changes <- names
	})
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Close)

	return store, changes
}

func waitForChange(t *testing.T, changes chan []string) []string {
	t.Helper()
	select {
	case names := <-changes:
		return names
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
		return nil
	}
}

func TestWatcherSeesNewSpec(t *testing.T) {
	store, changes := newWatchedStore(t)

	if err := store.Save(&spec.Metadata{Name: "fresh", Status: models.SpecPending}); err != nil {
		t.Fatal(err)
	}

	names := waitForChange(t, changes)
	if !reflect.DeepEqual(names, []string{"fresh"}) {
		t.Errorf("expected [fresh], got %v", names)
	}
}

func TestWatcherSeesDocumentEdit(t *testing.T) {
	store := spec.NewStore(t.TempDir())
	if err := store.Save(&spec.Metadata{Name: "existing", Status: models.SpecPending}); err != nil {
		t.Fatal(err)
	}

	changes := make(chan []string, 8)
	w, err := New(store, 50*time.Millisecond, func(names []string) {
		changes <- names
	})
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	defer w.Close()

	doc := filepath.Join(store.SpecDir("existing"), "requirements.md")
	if err := os.WriteFile(doc, []byte("# updated\n"), 0644); err != nil {
		t.Fatal(err)
	}

	names := waitForChange(t, changes)
	if !reflect.DeepEqual(names, []string{"existing"}) {
		t.Errorf("expected [existing], got %v", names)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	store, changes := newWatchedStore(t)

	if err := store.Save(&spec.Metadata{Name: "noisy", Status: models.SpecPending}); err != nil {
		t.Fatal(err)
	}
	doc := filepath.Join(store.SpecDir("noisy"), "tasks.md")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(doc, []byte("tick\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	names := waitForChange(t, changes)
	if !reflect.DeepEqual(names, []string{"noisy"}) {
		t.Errorf("expected [noisy], got %v", names)
	}

	// The burst must collapse into a single notification.
	select {
	case extra := <-changes:
		t.Errorf("unexpected second notification: %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	store, changes := newWatchedStore(t)

	// A stray file directly in the specs directory maps to itself as a
	// "spec" name; files outside the tree produce nothing.
	outside := filepath.Join(filepath.Dir(store.Dir()), "unrelated.txt")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case names := <-changes:
		t.Errorf("unexpected notification: %v", names)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	store := spec.NewStore(t.TempDir())
	w, err := New(store, 50*time.Millisecond, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	w.Close()
}
