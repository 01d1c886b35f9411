package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry is the in-process agent registry. It hands out agent IDs and
// tracks which spec each live agent is working on.
type Registry struct {
	// tasks maps agent IDs to the spec each agent executes.
	tasks map[string]string
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]string)}
}

// Register records a new agent working on the given spec and returns its
// generated agent ID.
func (r *Registry) Register(specName string) (string, error) {
	id := uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id] = specName
	return id, nil
}

// Deregister removes an agent. Unknown IDs are an error so callers can log
// the inconsistency.
func (r *Registry) Deregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[agentID]; !ok {
		return fmt.Errorf("agent %s is not registered", agentID)
	}
	delete(r.tasks, agentID)
	return nil
}

// CurrentTask returns the spec an agent is working on, or "" if unknown.
func (r *Registry) CurrentTask(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[agentID]
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

var _ AgentRegistry = (*Registry)(nil)
