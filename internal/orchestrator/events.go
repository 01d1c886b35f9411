// Package orchestrator coordinates spec execution: it turns a requested
// spec set into a dependency-ordered, concurrency-bounded run of worker
// processes, with per-spec retry and failure propagation.
package orchestrator

import (
	"time"

	"github.com/specforge/specforge/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventAgentOutput carries one parsed structured-output record.
	EventAgentOutput EventType = "agent:output"
	// EventAgentCompleted indicates a worker process exited with code 0.
	EventAgentCompleted EventType = "agent:completed"
	// EventAgentFailed indicates a nonzero exit or a launch failure.
	EventAgentFailed EventType = "agent:failed"
	// EventAgentTimeout indicates the per-attempt timer fired.
	EventAgentTimeout EventType = "agent:timeout"
	// EventBatchStart indicates a batch began execution.
	EventBatchStart EventType = "batch:start"
	// EventBatchComplete indicates every spec in a batch is terminal.
	EventBatchComplete EventType = "batch:complete"
	// EventSpecStart indicates a spec was admitted for execution.
	EventSpecStart EventType = "spec:start"
	// EventSpecComplete indicates a spec finished successfully.
	EventSpecComplete EventType = "spec:complete"
	// EventSpecFailed indicates a spec exhausted its retries.
	EventSpecFailed EventType = "spec:failed"
	// EventOrchestrationComplete indicates the run reached a terminal state.
	EventOrchestrationComplete EventType = "orchestration:complete"
)

// Event is a notification emitted by the spawner or the engine.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SpecName is the related spec, if applicable.
	SpecName string
	// AgentID is the related agent, if applicable.
	AgentID string
	// Batch is the batch index for batch events.
	Batch int
	// Specs lists the batch members for batch:start.
	Specs []string
	// ExitCode is the process exit code for agent terminal events.
	ExitCode *int
	// Stderr carries accumulated stderr for agent:failed.
	Stderr string
	// Error describes the failure for failure events.
	Error string
	// TimeoutSeconds is the configured timeout for agent:timeout.
	TimeoutSeconds int
	// Output is the parsed record for agent:output.
	Output *models.OutputEvent
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
