package models

// RunStatus is the terminal outcome of an orchestration run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// OrchestrationResult aggregates the outcome of one run. Completed, Failed
// and Skipped partition the requested specs exactly once, except when the
// run was stopped before every spec was scheduled.
type OrchestrationResult struct {
	Status    RunStatus
	Plan      *ExecutionPlan
	Completed []string
	Failed    []string
	Skipped   []string
	// Error describes a planning failure (missing specs, cycle). Empty for
	// execution failures, which are reported per spec.
	Error string
}

// SpecSnapshot is the observed state of one spec within a run.
type SpecSnapshot struct {
	Status     string
	BatchIndex int
	Retries    int
	AgentID    string
}

// OrchestrationStatus is a point-in-time view of a run, served by the
// status monitor.
type OrchestrationStatus struct {
	State        string
	CurrentBatch int
	TotalBatches int
	Specs        map[string]SpecSnapshot
}
