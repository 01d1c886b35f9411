package orchestrator

import (
	"github.com/specforge/specforge/pkg/models"
)

// DetectCycle returns the members of a dependency cycle in order, or nil if
// the graph is acyclic. Uses depth-first search with coloring; the returned
// path starts and ends at the same spec.
func DetectCycle(g *models.Graph) []string {
	adj := adjacency(g)

	// Color states: 0 = white (unvisited), 1 = gray (on stack), 2 = black.
	colors := make(map[string]int, len(g.Nodes))
	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		colors[node] = 1
		stack = append(stack, node)

		for _, dep := range adj[node] {
			switch colors[dep] {
			case 1:
				// Back edge: slice the stack from the first occurrence of
				// dep to get the cycle members in traversal order.
				for i, n := range stack {
					if n == dep {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, dep)
						return true
					}
				}
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}

		colors[node] = 2
		stack = stack[:len(stack)-1]
		return false
	}

	for _, node := range g.Nodes {
		if colors[node] == 0 {
			if visit(node) {
				return cycle
			}
		}
	}
	return nil
}

// ComputeBatches layers an acyclic graph into dependency-ordered batches
// via Kahn frontier peeling: batch 0 holds specs with no unresolved
// dependency, batch k+1 holds specs whose dependencies are all placed in
// batches 0..k. Within a batch, specs keep the graph's node order.
func ComputeBatches(g *models.Graph) [][]string {
	adj := adjacency(g)

	placed := make(map[string]bool, len(g.Nodes))
	remaining := make([]string, len(g.Nodes))
	copy(remaining, g.Nodes)

	var batches [][]string
	for len(remaining) > 0 {
		var batch []string
		var next []string

		for _, node := range remaining {
			ready := true
			for _, dep := range adj[node] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, node)
			} else {
				next = append(next, node)
			}
		}

		if len(batch) == 0 {
			// Unreachable for acyclic graphs; guards against callers that
			// skipped cycle detection.
			break
		}

		for _, node := range batch {
			placed[node] = true
		}
		batches = append(batches, batch)
		remaining = next
	}

	return batches
}

// Dependents builds the reverse-adjacency view of the graph: for each spec,
// the specs that directly require it.
func Dependents(g *models.Graph) map[string][]string {
	rev := make(map[string][]string)
	for _, e := range g.Edges {
		rev[e.To] = append(rev[e.To], e.From)
	}
	return rev
}

// TransitiveDependents returns every spec that directly or transitively
// requires the given spec, via breadth-first traversal of the reverse
// adjacency. The starting spec itself is not included.
func TransitiveDependents(rev map[string][]string, specName string) []string {
	seen := map[string]bool{specName: true}
	queue := append([]string(nil), rev[specName]...)

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if seen[node] {
			continue
		}
		seen[node] = true
		result = append(result, node)
		queue = append(queue, rev[node]...)
	}
	return result
}

// adjacency maps each spec to its direct dependencies.
func adjacency(g *models.Graph) map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}
