package orchestrator

import (
	"context"
	"fmt"

	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/pkg/models"
)

// DependencyManager builds the dependency graph over requested specs.
type DependencyManager interface {
	BuildDependencyGraph(ctx context.Context, specNames []string) (*models.Graph, error)
}

// SpecLifecycle applies lifecycle transitions to specs. Failures are
// swallowed by callers: a rejected transition never aborts execution.
type SpecLifecycle interface {
	Transition(specName string, state models.SpecStatus) error
}

// StatusMonitor is the observability sink for run progress. All methods
// except GetOrchestrationStatus are fire-and-forget: implementations log
// their own failures and never propagate them.
type StatusMonitor interface {
	InitSpec(specName string, batchIndex int)
	UpdateSpecStatus(specName, status string, agentID string)
	IncrementRetry(specName string)
	SetBatchInfo(currentBatch, totalBatches int)
	SetOrchestrationState(state string)
	SyncExternalStatus(specName string, status models.SpecStatus)
	GetOrchestrationStatus() *models.OrchestrationStatus
}

// AgentRegistry tracks live agents. Deregister failures are logged by the
// caller and never propagated.
type AgentRegistry interface {
	Register(specName string) (string, error)
	Deregister(agentID string) error
}

// PromptBuilder produces the worker invocation text for a spec.
type PromptBuilder interface {
	BuildPrompt(specName string) (string, error)
}

// ConfigProvider supplies orchestrator configuration. It is consulted at
// the start of every run and every spawn so config edits take effect
// without a restart.
type ConfigProvider interface {
	GetConfig() (*config.Config, error)
}

// SpecExistsFunc reports whether a spec exists in the workspace.
type SpecExistsFunc func(specName string) bool

// Spawner launches and supervises worker processes. Implemented by
// AgentSpawner; declared as an interface so engine tests can substitute a
// fake.
type Spawner interface {
	Spawn(ctx context.Context, specName string) (*models.Agent, error)
	Wait(ctx context.Context, agentID string) (*models.Agent, error)
	KillAll()
}

// ConfigurationError indicates a spawn precondition failure: the configured
// API-key environment variable is not set. It is the only failure a spawn
// surfaces synchronously.
type ConfigurationError struct {
	EnvVar string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.EnvVar)
}
