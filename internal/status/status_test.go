package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specforge/specforge/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// setupMonitor creates a migrated database and a monitor over it.
func setupMonitor(t *testing.T) *Monitor {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return NewMonitor(db)
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Errorf("parent directories not created")
	}
}

func TestOpenWorkspace(t *testing.T) {
	root := t.TempDir()
	db, err := OpenWorkspace(root)
	if err != nil {
		t.Fatalf("OpenWorkspace failed: %v", err)
	}
	defer db.Close()

	want := filepath.Join(root, ".specforge", "state.db")
	if db.Path() != want {
		t.Errorf("Path() = %q, want %q", db.Path(), want)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMonitorRunLifecycle(t *testing.T) {
	m := setupMonitor(t)

	runID := m.BeginRun()
	if runID == "" {
		t.Fatal("BeginRun must return a run ID")
	}
	if m.RunID() != runID {
		t.Errorf("RunID() = %q, want %q", m.RunID(), runID)
	}

	m.InitSpec("alpha", 0)
	m.InitSpec("beta", 1)
	m.SetBatchInfo(0, 2)
	m.SetOrchestrationState("running")

	m.UpdateSpecStatus("alpha", "running", "agent-1")
	m.IncrementRetry("alpha")
	m.IncrementRetry("alpha")
	m.UpdateSpecStatus("alpha", "completed", "agent-1")
	m.UpdateSpecStatus("beta", "skipped", "")

	m.SetBatchInfo(1, 2)
	m.SetOrchestrationState("completed")

	got := m.GetOrchestrationStatus()
	if got.State != "completed" {
		t.Errorf("State = %q, want completed", got.State)
	}
	if got.CurrentBatch != 1 || got.TotalBatches != 2 {
		t.Errorf("batch info = %d/%d, want 1/2", got.CurrentBatch, got.TotalBatches)
	}

	alpha, ok := got.Specs["alpha"]
	if !ok {
		t.Fatal("alpha missing from status")
	}
	if alpha.Status != "completed" || alpha.Retries != 2 || alpha.AgentID != "agent-1" || alpha.BatchIndex != 0 {
		t.Errorf("unexpected alpha snapshot: %+v", alpha)
	}

	beta := got.Specs["beta"]
	if beta.Status != "skipped" || beta.BatchIndex != 1 {
		t.Errorf("unexpected beta snapshot: %+v", beta)
	}
}

func TestMonitorStatusBeforeRun(t *testing.T) {
	m := setupMonitor(t)

	got := m.GetOrchestrationStatus()
	if got.State != "" || len(got.Specs) != 0 {
		t.Errorf("expected empty status before a run, got %+v", got)
	}
}

func TestMonitorTerminalStateStampsCompletion(t *testing.T) {
	m := setupMonitor(t)
	runID := m.BeginRun()
	m.SetOrchestrationState("stopped")

	runs, err := m.ListRuns(5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Fatalf("expected the one run back, got %+v", runs)
	}
	if runs[0].State != "stopped" {
		t.Errorf("State = %q, want stopped", runs[0].State)
	}
	if runs[0].CompletedAt == nil {
		t.Error("terminal state must stamp completed_at")
	}
}

func TestMonitorListRunsNewestFirst(t *testing.T) {
	m := setupMonitor(t)

	first := m.BeginRun()
	m.SetOrchestrationState("completed")
	time.Sleep(1100 * time.Millisecond) // RFC3339 storage has second resolution
	second := m.BeginRun()

	runs, err := m.ListRuns(5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
	}
	if runs[1].CompletedAt == nil {
		t.Error("finished run must carry completed_at")
	}
	if runs[0].CompletedAt != nil {
		t.Error("live run must not carry completed_at")
	}
}

func TestMonitorRunSpecs(t *testing.T) {
	m := setupMonitor(t)
	runID := m.BeginRun()

	m.InitSpec("one", 0)
	m.UpdateSpecStatus("one", "failed", "agent-9")

	specs, err := m.RunSpecs(runID)
	if err != nil {
		t.Fatalf("RunSpecs: %v", err)
	}
	if specs["one"].Status != "failed" || specs["one"].AgentID != "agent-9" {
		t.Errorf("unexpected snapshot: %+v", specs["one"])
	}

	if specs, err = m.RunSpecs("no-such-run"); err != nil {
		t.Fatalf("RunSpecs unknown run: %v", err)
	} else if len(specs) != 0 {
		t.Errorf("expected no rows for unknown run, got %+v", specs)
	}
}

func TestMonitorExternalSync(t *testing.T) {
	m := setupMonitor(t)

	var gotName string
	var gotStatus models.SpecStatus
	m.OnExternalSync(func(name string, status models.SpecStatus) {
		gotName = name
		gotStatus = status
	})

	m.SyncExternalStatus("done-spec", models.SpecCompleted)
	if gotName != "done-spec" || gotStatus != models.SpecCompleted {
		t.Errorf("callback got (%q,%q)", gotName, gotStatus)
	}

	// No callback registered is a no-op.
	m2 := setupMonitor(t)
	m2.SyncExternalStatus("x", models.SpecFailed)
}

func TestPurgeOldRuns(t *testing.T) {
	m := setupMonitor(t)
	db := m.db

	// Insert one old run directly.
	old := formatTime(time.Now().Add(-48 * time.Hour))
	if _, err := db.Exec(`INSERT INTO runs (id, state, started_at) VALUES ('old-run', 'completed', ?)`, old); err != nil {
		t.Fatal(err)
	}
	m.BeginRun()

	purged, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged run, got %d", purged)
	}

	runs, err := m.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("expected the recent run to survive, got %d", len(runs))
	}
}
