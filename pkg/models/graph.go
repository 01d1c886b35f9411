package models

// Edge is a directed dependency between two specs: From requires To to
// finish first.
type Edge struct {
	From string
	To   string
}

// Graph is a dependency graph over spec names. Every edge endpoint is a
// member of Nodes.
type Graph struct {
	Nodes []string
	Edges []Edge
}

// ExecutionPlan is the dependency-ordered batching of a run. In the acyclic
// case Batches partitions the graph's nodes exactly once, and every spec in
// batch k+1 has all of its dependencies in batches 0..k.
type ExecutionPlan struct {
	Batches   [][]string
	HasCycle  bool
	CyclePath []string
}
