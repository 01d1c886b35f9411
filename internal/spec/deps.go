package spec

import (
	"context"
	"fmt"

	"github.com/specforge/specforge/pkg/models"
)

// Resolver builds dependency graphs from spec metadata.
type Resolver struct {
	store *Store
}

// NewResolver creates a Resolver over a Store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// BuildDependencyGraph constructs the dependency graph over the requested
// specs. Edge (from, to) means from requires to to finish first.
// Dependencies on specs outside the requested set are treated as already
// satisfied and produce no edge, so every edge endpoint is a graph node.
func (r *Resolver) BuildDependencyGraph(ctx context.Context, specNames []string) (*models.Graph, error) {
	requested := make(map[string]bool, len(specNames))
	for _, name := range specNames {
		requested[name] = true
	}

	g := &models.Graph{}
	for _, name := range specNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, err := r.store.Load(name)
		if err != nil {
			return nil, fmt.Errorf("build dependency graph: %w", err)
		}

		g.Nodes = append(g.Nodes, name)
		for _, dep := range meta.Dependencies {
			// Self-dependencies become self-edges and are reported by
			// cycle detection rather than here.
			if requested[dep] {
				g.Edges = append(g.Edges, models.Edge{From: name, To: dep})
			}
		}
	}

	return g, nil
}
