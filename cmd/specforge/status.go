package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/status"
	"github.com/specforge/specforge/pkg/models"
)

var statusHistory int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run state and history",
	Long: `Display the state of orchestration runs in this workspace.

Shows the most recent run with per-spec progress, and a short list of
earlier runs. Use --history to control how many runs are listed.`,
	RunE: runStatusCmd,
}

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 5, "Number of recent runs to list")
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := status.DBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs yet. Start one with 'specforge run <spec>'.")
		return nil
	}

	db, err := status.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open status database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate status database: %w", err)
	}

	monitor := status.NewMonitor(db)
	runs, err := monitor.ListRuns(statusHistory)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet. Start one with 'specforge run <spec>'.")
		return nil
	}

	latest := runs[0]
	displayRun(monitor, latest)

	if len(runs) > 1 {
		fmt.Println("\nEarlier runs:")
		for _, r := range runs[1:] {
			fmt.Printf("  %s: %s (%s ago)\n", r.ID, colorizeRunState(r.State), formatDuration(time.Since(r.StartedAt)))
		}
	}
	return nil
}

func displayRun(monitor *status.Monitor, run status.RunRecord) {
	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  State:   %s\n", colorizeRunState(run.State))
	fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(run.StartedAt)))
	if run.CompletedAt != nil {
		fmt.Printf("  Took:    %s\n", formatDuration(run.CompletedAt.Sub(run.StartedAt)))
	}
	if run.TotalBatches > 0 {
		fmt.Printf("  Batch:   %d/%d\n", run.CurrentBatch+1, run.TotalBatches)
	}

	specs, err := monitor.RunSpecs(run.ID)
	if err != nil {
		fmt.Printf("  Specs:   (unreadable: %v)\n", err)
		return
	}
	if len(specs) == 0 {
		return
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := specs[names[i]], specs[names[j]]
		if a.BatchIndex != b.BatchIndex {
			return a.BatchIndex < b.BatchIndex
		}
		return names[i] < names[j]
	})

	fmt.Println("\n  Specs:")
	for _, name := range names {
		snap := specs[name]
		st := snap.Status
		if st == "running" {
			st = string(models.SpecInProgress)
		}
		line := fmt.Sprintf("    %-24s %s", name, colorizeSpecStatus(models.SpecStatus(st)))
		if snap.Retries > 0 {
			line += fmt.Sprintf("  (%d %s)", snap.Retries, plural(snap.Retries, "retry", "retries"))
		}
		fmt.Println(line)
	}
}

func colorizeRunState(state string) string {
	switch state {
	case "completed":
		return color.GreenString(state)
	case "failed":
		return color.RedString(state)
	case "stopped":
		return color.YellowString(state)
	case "running":
		return color.CyanString(state)
	default:
		return state
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
