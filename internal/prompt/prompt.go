// Package prompt constructs the worker invocation text for a spec.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/internal/spec"
)

// ConfigSource supplies the configuration consulted on every build, so a
// bootstrap template change takes effect without a restart.
type ConfigSource interface {
	GetConfig() (*config.Config, error)
}

// Builder assembles prompts from spec metadata, authored documents, and an
// optional workspace bootstrap template.
type Builder struct {
	store *spec.Store
	cfg   ConfigSource
	root  string
}

// NewBuilder creates a Builder over a spec store.
func NewBuilder(store *spec.Store, cfg ConfigSource, workspaceRoot string) *Builder {
	return &Builder{store: store, cfg: cfg, root: workspaceRoot}
}

// BuildPrompt constructs the prompt handed to the worker process for the
// given spec.
func (b *Builder) BuildPrompt(specName string) (string, error) {
	meta, err := b.store.Load(specName)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	var sb strings.Builder

	if text, err := b.bootstrapText(); err != nil {
		return "", err
	} else if text != "" {
		sb.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("You are implementing a spec in this repository.\n\n")
	sb.WriteString("Spec: ")
	sb.WriteString(meta.Name)
	sb.WriteString("\n")

	if meta.Description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(meta.Description)
		sb.WriteString("\n")
	}

	if docs := b.store.Documents(specName); len(docs) > 0 {
		sb.WriteString("\nRead these spec documents before writing any code:\n\n")
		for _, doc := range docs {
			rel, err := filepath.Rel(b.root, doc)
			if err != nil {
				rel = doc
			}
			sb.WriteString(fmt.Sprintf("- `%s`\n", rel))
		}
	}

	if len(meta.Dependencies) > 0 {
		sb.WriteString("\nThe following specs are already implemented; build on their work rather than redoing it:\n\n")
		for _, dep := range meta.Dependencies {
			sb.WriteString(fmt.Sprintf("- %s\n", dep))
		}
	}

	sb.WriteString("\nImplement the spec completely, including tests. ")
	sb.WriteString("Exit zero only when the work is done and the tests pass.\n")

	return sb.String(), nil
}

// bootstrapText reads the configured bootstrap template. A missing
// configuration entry means no template; a configured path that cannot be
// read is an error.
func (b *Builder) bootstrapText() (string, error) {
	cfg, err := b.cfg.GetConfig()
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	if cfg.BootstrapTemplate == "" {
		return "", nil
	}

	path := cfg.BootstrapTemplate
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read bootstrap template: %w", err)
	}
	return string(data), nil
}
