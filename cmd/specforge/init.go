package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/internal/status"
)

var (
	initForce            bool
	initSkipBackendCheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a specforge workspace",
	Long: `Initialize a directory for use with specforge.

This command sets up everything needed to run specforge:
  - Verifies the worker CLI is installed
  - Creates the .specforge directory structure
  - Writes the default configuration
  - Creates the run-history database

The directory argument is optional and defaults to the current directory.

Examples:
  specforge init               # Initialize current directory
  specforge init ./myproject   # Initialize specific directory
  specforge init --force       # Reinitialize even if already set up`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initSkipBackendCheck, "skip-backend-check", false, "Skip worker CLI availability check")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing specforge in %s...\n\n", absPath)

	workspaceDir := filepath.Join(absPath, config.WorkspaceDir)
	if _, err := os.Stat(workspaceDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	cfg := config.Default()

	if !initSkipBackendCheck {
		if err := CheckBackendCLI(cfg.AgentBackend); err != nil {
			printStatus("✗", cfg.AgentBackend+" CLI not found", color.FgRed)
			return err
		}
		printStatus("✓", cfg.AgentBackend+" CLI found", color.FgGreen)
	}

	if os.Getenv(cfg.APIKeyEnvVar) == "" {
		printStatus("⚠", cfg.APIKeyEnvVar+" not set (you can set it later)", color.FgYellow)
	} else {
		printStatus("✓", cfg.APIKeyEnvVar+" is set", color.FgGreen)
	}

	for _, dir := range []string{
		workspaceDir,
		filepath.Join(workspaceDir, "specs"),
		filepath.Join(workspaceDir, "logs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .specforge directory structure", color.FgGreen)

	if err := config.Save(absPath, cfg); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	printStatus("✓", "Wrote default configuration", color.FgGreen)

	db, err := status.OpenWorkspace(absPath)
	if err != nil {
		return fmt.Errorf("creating status database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating status database: %w", err)
	}
	printStatus("✓", "Created run-history database", color.FgGreen)

	if err := updateGitignore(absPath); err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	printStatus("✓", "Updated .gitignore with specforge entries", color.FgGreen)

	fmt.Printf("\n%s Specforge initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if os.Getenv(cfg.APIKeyEnvVar) == "" {
		fmt.Println("  1. Set your API key:")
		fmt.Printf("     export %s=your-key-here\n", cfg.APIKeyEnvVar)
		fmt.Println()
	}
	fmt.Println("  2. Create a spec:")
	fmt.Println("     specforge spec new my-feature --description \"what to build\"")
	fmt.Println()
	fmt.Println("  3. Run it:")
	fmt.Println("     specforge run my-feature")

	return nil
}

// updateGitignore adds specforge entries to .gitignore if not present.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	entries := []string{
		".specforge/state.db*",
		".specforge/logs/",
	}

	needsUpdate := false
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			needsUpdate = true
			break
		}
	}
	if !needsUpdate {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# specforge\n")
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			newContent.WriteString(entry + "\n")
		}
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
