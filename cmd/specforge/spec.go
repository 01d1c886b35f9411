package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/spec"
	"github.com/specforge/specforge/pkg/models"
)

var (
	specNewDescription string
	specNewDeps        []string
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Manage specs in the workspace",
	Long: `Create and inspect specs.

A spec is a directory under .specforge/specs/<name>/ containing spec.yaml
plus the documents a worker reads before implementing it.`,
}

var specNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new spec",
	Long: `Create a new spec with metadata and document skeletons.

Examples:
  specforge spec new auth-service
  specforge spec new api --deps auth-service,database --description "public API"`,
	Args: cobra.ExactArgs(1),
	RunE: runSpecNew,
}

var specListCmd = &cobra.Command{
	Use:   "list",
	Short: "List specs and their status",
	RunE:  runSpecList,
}

func init() {
	specNewCmd.Flags().StringVar(&specNewDescription, "description", "", "Short summary of the spec")
	specNewCmd.Flags().StringSliceVar(&specNewDeps, "deps", nil, "Specs that must complete before this one")

	specCmd.AddCommand(specNewCmd)
	specCmd.AddCommand(specListCmd)
}

func runSpecNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("spec name must not contain path separators: %s", name)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	store := spec.NewStore(cwd)

	if store.Exists(name) {
		return fmt.Errorf("spec %s already exists", name)
	}

	for _, dep := range specNewDeps {
		if !store.Exists(dep) {
			return fmt.Errorf("dependency %s does not exist; create it first", dep)
		}
	}

	meta := &spec.Metadata{
		Name:         name,
		Description:  specNewDescription,
		Status:       models.SpecPending,
		Dependencies: specNewDeps,
	}
	if err := store.Save(meta); err != nil {
		return err
	}

	skeletons := map[string]string{
		"requirements.md": fmt.Sprintf("# %s: Requirements\n\nDescribe what must be true when this spec is done.\n", name),
		"design.md":       fmt.Sprintf("# %s: Design\n\nDescribe how to build it.\n", name),
		"tasks.md":        fmt.Sprintf("# %s: Tasks\n\n- [ ] \n", name),
	}
	for file, content := range skeletons {
		path := filepath.Join(store.SpecDir(name), file)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
	}

	fmt.Printf("%s Created spec %s\n", color.GreenString("✓"), name)
	fmt.Printf("  Edit %s before running it.\n", store.SpecDir(name))
	return nil
}

func runSpecList(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	store := spec.NewStore(cwd)

	names, err := store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No specs. Create one with 'specforge spec new <name>'.")
		return nil
	}

	for _, name := range names {
		meta, err := store.Load(name)
		if err != nil {
			fmt.Printf("  %s  %s\n", name, color.RedString("(unreadable: %v)", err))
			continue
		}

		line := fmt.Sprintf("  %-24s %s", name, colorizeSpecStatus(meta.Status))
		if len(meta.Dependencies) > 0 {
			line += fmt.Sprintf("  (needs %s)", strings.Join(meta.Dependencies, ", "))
		}
		fmt.Println(line)
		if meta.Description != "" {
			fmt.Printf("    %s\n", meta.Description)
		}
	}
	return nil
}

// colorizeSpecStatus renders a spec status with the run summary's colors.
func colorizeSpecStatus(s models.SpecStatus) string {
	switch s {
	case models.SpecCompleted:
		return color.GreenString(string(s))
	case models.SpecFailed:
		return color.RedString(string(s))
	case models.SpecSkipped:
		return color.YellowString(string(s))
	case models.SpecInProgress, models.SpecAssigned:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}
