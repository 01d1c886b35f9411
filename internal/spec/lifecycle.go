package spec

import (
	"fmt"

	"github.com/specforge/specforge/pkg/models"
)

// validTransitions maps each status to the statuses it may move to.
var validTransitions = map[models.SpecStatus][]models.SpecStatus{
	models.SpecPending:    {models.SpecAssigned, models.SpecSkipped, models.SpecFailed},
	models.SpecAssigned:   {models.SpecInProgress, models.SpecFailed, models.SpecSkipped},
	models.SpecInProgress: {models.SpecCompleted, models.SpecFailed},
	// Failed and skipped specs may be re-assigned on a later run.
	models.SpecFailed:  {models.SpecAssigned},
	models.SpecSkipped: {models.SpecAssigned},
}

// LifecycleManager applies validated status transitions and persists them
// into the spec's metadata file. Callers treat rejections as best-effort:
// a rejected transition never aborts orchestration.
type LifecycleManager struct {
	store *Store
}

// NewLifecycleManager creates a LifecycleManager over a Store.
func NewLifecycleManager(store *Store) *LifecycleManager {
	return &LifecycleManager{store: store}
}

// Transition moves a spec to a new status, validating against the current
// persisted status.
func (m *LifecycleManager) Transition(name string, to models.SpecStatus) error {
	meta, err := m.store.Load(name)
	if err != nil {
		return fmt.Errorf("transition %s: %w", name, err)
	}

	if meta.Status == to {
		return nil
	}

	allowed := false
	for _, next := range validTransitions[meta.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("invalid transition for %s: %s -> %s", name, meta.Status, to)
	}

	meta.Status = to
	if err := m.store.Save(meta); err != nil {
		return fmt.Errorf("transition %s: %w", name, err)
	}
	return nil
}

// SetStatus writes a status without transition validation. Used when
// mirroring externally decided outcomes back into spec metadata.
func (m *LifecycleManager) SetStatus(name string, to models.SpecStatus) error {
	meta, err := m.store.Load(name)
	if err != nil {
		return err
	}
	meta.Status = to
	return m.store.Save(meta)
}
