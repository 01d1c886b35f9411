// Package models defines the core data structures shared across specforge.
package models

import (
	"encoding/json"
	"time"
)

// AgentStatus represents the lifecycle state of a spawned agent.
type AgentStatus string

const (
	// AgentStatusRunning indicates the worker process is executing.
	AgentStatusRunning AgentStatus = "running"
	// AgentStatusCompleted indicates the process exited with code 0.
	AgentStatusCompleted AgentStatus = "completed"
	// AgentStatusFailed indicates a nonzero exit or a launch failure.
	AgentStatusFailed AgentStatus = "failed"
	// AgentStatusTimeout indicates the per-attempt timer fired first.
	AgentStatusTimeout AgentStatus = "timeout"
)

// Terminal reports whether the status is a terminal state.
func (s AgentStatus) Terminal() bool {
	return s != AgentStatusRunning
}

// OutputEvent is one parsed structured-output record from the worker's
// stdout. Records arrive newline-delimited as JSON; lines that fail to
// parse are dropped.
type OutputEvent struct {
	// Type is the record's type field, when present.
	Type string `json:"type,omitempty"`
	// Message is the record's message or content field, when present.
	Message string `json:"message,omitempty"`
	// Raw is the original JSON line.
	Raw json.RawMessage `json:"-"`
}

// Agent is one worker-process invocation handling one spec for one attempt.
// It is owned by the spawner while running; callers observe it through
// emitted events and defensive copies.
type Agent struct {
	// ID uniquely identifies this invocation. Each retry gets a new ID.
	ID string
	// SpecName is the spec this agent executes.
	SpecName string
	// PID is the OS process ID, or 0 before launch.
	PID int
	// Status is the current lifecycle state.
	Status AgentStatus
	// ExitCode is the process exit code, nil while running.
	ExitCode *int
	// StartedAt is when the process was launched.
	StartedAt time.Time
	// CompletedAt is when the agent reached a terminal state.
	CompletedAt *time.Time
	// RetryCount is the attempt index for the agent's spec, zero-based.
	RetryCount int
	// Stderr accumulates the process's error-stream output verbatim.
	Stderr string
	// Events holds parsed structured-output records in arrival order.
	Events []OutputEvent
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	c := *a
	if a.ExitCode != nil {
		code := *a.ExitCode
		c.ExitCode = &code
	}
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		c.CompletedAt = &at
	}
	if a.Events != nil {
		c.Events = make([]OutputEvent, len(a.Events))
		copy(c.Events, a.Events)
	}
	return &c
}
