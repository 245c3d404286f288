package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/devicelab/internal/history"
	"github.com/harrison/devicelab/internal/models"
)

// NewHistoryCommand creates and returns the history subcommand
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or show one run's per-test outcomes",
		Long: `Without arguments, list the most recent runs recorded in the history
database. With a run ID, show every per-test outcome of that run,
including earlier tries.

Examples:
  devicelab history
  devicelab history --limit 50
  devicelab history 2f1c9a3e-...`,
		Args:         cobra.MaximumNArgs(1),
		RunE:         historyCommand,
		SilenceUsage: true,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .devicelab/config.yaml)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")

	return cmd
}

// historyCommand implements the history command logic
func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("run history is disabled in configuration")
	}

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	if len(args) == 1 {
		return showRun(cmd.Context(), store, args[0], cmd.OutOrStdout())
	}

	limit, _ := cmd.Flags().GetInt("limit")
	return listRuns(cmd.Context(), store, limit, cmd.OutOrStdout())
}

func listRuns(ctx context.Context, store *history.Store, limit int, output io.Writer) error {
	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(output, "No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		verdict := "FAILED"
		if run.Passed {
			verdict = "PASSED"
		}
		fmt.Fprintf(output, "%s  %s  %-6s  %d tries  %s  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			verdict,
			run.Tries,
			run.Duration.Round(time.Second),
			run.Manifest)
	}
	return nil
}

func showRun(ctx context.Context, store *history.Store, runID string, output io.Writer) error {
	outcomes, err := store.RunOutcomes(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if len(outcomes) == 0 {
		return fmt.Errorf("no run found with ID %s", runID)
	}

	currentTry := 0
	for _, rec := range outcomes {
		if rec.Try != currentTry {
			currentTry = rec.Try
			fmt.Fprintf(output, "Try %d:\n", currentTry)
		}
		line := fmt.Sprintf("  %-8s %s", rec.Outcome.Status, rec.Outcome.Name)
		if rec.Outcome.Status != models.StatusNotRun && rec.Outcome.Duration > 0 {
			line += fmt.Sprintf(" (%s)", rec.Outcome.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(output, line)
	}
	return nil
}
