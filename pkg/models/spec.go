package models

// SpecStatus is the lifecycle state of a spec within the workspace.
type SpecStatus string

const (
	SpecPending    SpecStatus = "pending"
	SpecAssigned   SpecStatus = "assigned"
	SpecInProgress SpecStatus = "in-progress"
	SpecCompleted  SpecStatus = "completed"
	SpecFailed     SpecStatus = "failed"
	SpecSkipped    SpecStatus = "skipped"
)

// Terminal reports whether the status is a terminal per-spec state.
func (s SpecStatus) Terminal() bool {
	return s == SpecCompleted || s == SpecFailed || s == SpecSkipped
}
