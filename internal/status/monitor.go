package status

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/specforge/specforge/pkg/models"
)

// ExternalSyncFunc mirrors a terminal spec status into an external store,
// typically the spec's own metadata file.
type ExternalSyncFunc func(specName string, status models.SpecStatus)

// Monitor persists run progress into the status database. All write methods
// are fire-and-forget: persistence failures are logged and swallowed so
// observability problems never abort an orchestration.
type Monitor struct {
	db   *DB
	sync ExternalSyncFunc

	mu    sync.Mutex
	runID string
}

// NewMonitor creates a Monitor over an opened, migrated database.
func NewMonitor(db *DB) *Monitor {
	return &Monitor{db: db}
}

// OnExternalSync registers the callback invoked by SyncExternalStatus.
func (m *Monitor) OnExternalSync(fn ExternalSyncFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sync = fn
}

// BeginRun opens a new run record and makes it the monitor's current run.
// Returns the run ID.
func (m *Monitor) BeginRun() string {
	id := uuid.New().String()

	m.mu.Lock()
	m.runID = id
	m.mu.Unlock()

	_, err := m.db.Exec(`
		INSERT INTO runs (id, state, started_at) VALUES (?, 'running', ?)
	`, id, formatTime(time.Now()))
	if err != nil {
		log.Printf("[status] warning: record run %s: %v", id, err)
	}
	return id
}

// RunID returns the current run's ID, or "" before BeginRun.
func (m *Monitor) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// InitSpec records a spec as pending in the current run.
func (m *Monitor) InitSpec(specName string, batchIndex int) {
	_, err := m.db.Exec(`
		INSERT INTO run_specs (run_id, name, status, batch_index, updated_at)
		VALUES (?, ?, 'pending', ?, ?)
		ON CONFLICT (run_id, name) DO UPDATE SET
			status = 'pending', batch_index = excluded.batch_index, updated_at = excluded.updated_at
	`, m.RunID(), specName, batchIndex, formatTime(time.Now()))
	if err != nil {
		log.Printf("[status] warning: init spec %s: %v", specName, err)
	}
}

// UpdateSpecStatus records a spec's current status and owning agent.
func (m *Monitor) UpdateSpecStatus(specName, status, agentID string) {
	_, err := m.db.Exec(`
		UPDATE run_specs SET status = ?, agent_id = ?, updated_at = ?
		WHERE run_id = ? AND name = ?
	`, status, agentID, formatTime(time.Now()), m.RunID(), specName)
	if err != nil {
		log.Printf("[status] warning: update spec %s: %v", specName, err)
	}
}

// IncrementRetry bumps a spec's retry counter.
func (m *Monitor) IncrementRetry(specName string) {
	_, err := m.db.Exec(`
		UPDATE run_specs SET retries = retries + 1, updated_at = ?
		WHERE run_id = ? AND name = ?
	`, formatTime(time.Now()), m.RunID(), specName)
	if err != nil {
		log.Printf("[status] warning: increment retry %s: %v", specName, err)
	}
}

// SetBatchInfo records batch progress for the current run.
func (m *Monitor) SetBatchInfo(currentBatch, totalBatches int) {
	_, err := m.db.Exec(`
		UPDATE runs SET current_batch = ?, total_batches = ? WHERE id = ?
	`, currentBatch, totalBatches, m.RunID())
	if err != nil {
		log.Printf("[status] warning: set batch info: %v", err)
	}
}

// SetOrchestrationState records the run's state. Terminal states also stamp
// the run's completion time.
func (m *Monitor) SetOrchestrationState(state string) {
	var err error
	switch state {
	case "completed", "failed", "stopped":
		_, err = m.db.Exec(`
			UPDATE runs SET state = ?, completed_at = ? WHERE id = ?
		`, state, formatTime(time.Now()), m.RunID())
	default:
		_, err = m.db.Exec(`UPDATE runs SET state = ? WHERE id = ?`, state, m.RunID())
	}
	if err != nil {
		log.Printf("[status] warning: set run state %s: %v", state, err)
	}
}

// SyncExternalStatus forwards a terminal status to the registered callback.
func (m *Monitor) SyncExternalStatus(specName string, status models.SpecStatus) {
	m.mu.Lock()
	fn := m.sync
	m.mu.Unlock()
	if fn != nil {
		fn(specName, status)
	}
}

// GetOrchestrationStatus reads the current run's progress back out of the
// database. Returns an empty status when no run has begun.
func (m *Monitor) GetOrchestrationStatus() *models.OrchestrationStatus {
	out := &models.OrchestrationStatus{Specs: make(map[string]models.SpecSnapshot)}

	runID := m.RunID()
	if runID == "" {
		return out
	}

	row := m.db.QueryRow(`
		SELECT state, current_batch, total_batches FROM runs WHERE id = ?
	`, runID)
	if err := row.Scan(&out.State, &out.CurrentBatch, &out.TotalBatches); err != nil {
		log.Printf("[status] warning: read run %s: %v", runID, err)
		return out
	}

	rows, err := m.db.Query(`
		SELECT name, status, agent_id, retries, batch_index FROM run_specs WHERE run_id = ?
	`, runID)
	if err != nil {
		log.Printf("[status] warning: read run specs: %v", err)
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var snap models.SpecSnapshot
		var agentID sql.NullString
		if err := rows.Scan(&name, &snap.Status, &agentID, &snap.Retries, &snap.BatchIndex); err != nil {
			log.Printf("[status] warning: scan run spec: %v", err)
			continue
		}
		snap.AgentID = agentID.String
		out.Specs[name] = snap
	}
	return out
}

// RunRecord is one historical run as stored in the database.
type RunRecord struct {
	ID           string
	State        string
	CurrentBatch int
	TotalBatches int
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// ListRuns returns the most recent runs, newest first.
func (m *Monitor) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := m.db.Query(`
		SELECT id, state, current_batch, total_batches, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		var completed sql.NullString
		if err := rows.Scan(&rec.ID, &rec.State, &rec.CurrentBatch, &rec.TotalBatches, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse run start time: %w", err)
		}
		rec.CompletedAt = parseNullableTime(completed)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunSpecs returns the per-spec rows of one run, keyed by spec name.
func (m *Monitor) RunSpecs(runID string) (map[string]models.SpecSnapshot, error) {
	rows, err := m.db.Query(`
		SELECT name, status, agent_id, retries, batch_index FROM run_specs WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read run specs: %w", err)
	}
	defer rows.Close()

	specs := make(map[string]models.SpecSnapshot)
	for rows.Next() {
		var name string
		var snap models.SpecSnapshot
		var agentID sql.NullString
		if err := rows.Scan(&name, &snap.Status, &agentID, &snap.Retries, &snap.BatchIndex); err != nil {
			return nil, fmt.Errorf("scan run spec: %w", err)
		}
		snap.AgentID = agentID.String
		specs[name] = snap
	}
	return specs, rows.Err()
}
