// Package spec manages specforge work items ("specs") on disk.
// A spec is a directory under .specforge/specs/<name>/ holding a spec.yaml
// metadata file plus the authored documents the worker agent consumes
// (requirements.md, design.md, tasks.md).
package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/specforge/specforge/pkg/models"
)

// MetadataFile is the metadata filename inside a spec directory.
const MetadataFile = "spec.yaml"

// Metadata is the persisted description of a spec.
type Metadata struct {
	// Name is the spec's unique identifier, matching its directory name.
	Name string `yaml:"name"`
	// Description is a short human-readable summary.
	Description string `yaml:"description,omitempty"`
	// Status is the current lifecycle state.
	Status models.SpecStatus `yaml:"status"`
	// Dependencies lists spec names that must complete before this one runs.
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// Store reads and writes specs under a workspace root.
type Store struct {
	root string
}

// NewStore creates a Store for the given workspace root.
func NewStore(workspaceRoot string) *Store {
	return &Store{root: workspaceRoot}
}

// Dir returns the directory holding all specs.
func (s *Store) Dir() string {
	return filepath.Join(s.root, ".specforge", "specs")
}

// SpecDir returns the directory for a single spec.
func (s *Store) SpecDir(name string) string {
	return filepath.Join(s.Dir(), name)
}

// Exists reports whether a spec directory with metadata exists.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(s.SpecDir(name), MetadataFile))
	return err == nil && !info.IsDir()
}

// Load reads a spec's metadata.
func (s *Store) Load(name string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.SpecDir(name), MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", name, err)
	}

	meta := &Metadata{}
	if err := yaml.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", name, err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.Status == "" {
		meta.Status = models.SpecPending
	}

	return meta, nil
}

// Save writes a spec's metadata, creating the spec directory if needed.
func (s *Store) Save(meta *Metadata) error {
	if meta.Name == "" {
		return fmt.Errorf("spec name is required")
	}

	dir := s.SpecDir(meta.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create spec directory: %w", err)
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal spec %s: %w", meta.Name, err)
	}

	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644); err != nil {
		return fmt.Errorf("write spec %s: %w", meta.Name, err)
	}
	return nil
}

// List returns the names of all specs in the workspace, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read specs directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if s.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Documents returns the paths of authored spec documents that exist.
func (s *Store) Documents(name string) []string {
	var docs []string
	for _, f := range []string{"requirements.md", "design.md", "tasks.md"} {
		p := filepath.Join(s.SpecDir(name), f)
		if _, err := os.Stat(p); err == nil {
			docs = append(docs, p)
		}
	}
	return docs
}
