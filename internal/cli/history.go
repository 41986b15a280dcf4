package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/conveyor-ci/conveyor/internal/db"
	"github.com/conveyor-ci/conveyor/internal/engine"
	"github.com/conveyor-ci/conveyor/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past pipeline runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		dbURL, _ := cmd.Flags().GetString("db-url")
		w := cmd.OutOrStdout()

		if dbURL != "" {
			database, err := db.Open(cmd.Context(), dbURL)
			if err != nil {
				return err
			}
			defer database.Close(cmd.Context())

			rows, err := database.ListRuns(cmd.Context(), statusFilter, 50)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(w, "No runs found.")
				return nil
			}
			fmt.Fprintf(w, "%-24s %-10s %-20s %s\n", "RUN", "STATUS", "STARTED", "PIPELINE")
			for _, r := range rows {
				fmt.Fprintf(w, "%-24s %-10s %-20s %s\n", r.ID, r.Status, r.StartedAt, r.Pipeline)
			}
			return nil
		}

		store, err := history.DefaultStore()
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		runs, err := store.List(statusFilter)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs found.")
			return nil
		}

		fmt.Fprintf(w, "%-24s %-10s %-6s %s\n", "RUN", "STATUS", "STEPS", "PIPELINE")
		fmt.Fprintf(w, "%-24s %-10s %-6s %s\n",
			strings.Repeat("-", 24),
			strings.Repeat("-", 10),
			strings.Repeat("-", 6),
			strings.Repeat("-", 8))
		for _, r := range runs {
			steps := 0
			if r.Result != nil {
				steps = len(r.Result.Steps)
			}
			fmt.Fprintf(w, "%-24s %-10s %-6d %s\n", r.ID, r.Status, steps, r.Pipeline)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's step results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.DefaultStore()
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		run, err := store.Get(args[0])
		if err != nil {
			return err
		}

		printResult(cmd, run)

		showLogs, _ := cmd.Flags().GetBool("logs")
		if !showLogs || run.Result == nil {
			return nil
		}
		w := cmd.OutOrStdout()
		for i, sr := range run.Result.Steps {
			if sr.Status == engine.StatusSkipped {
				continue
			}
			data, err := os.ReadFile(store.StepLogPath(run.ID, i, sr.ID))
			if err != nil {
				continue // step produced no output
			}
			fmt.Fprintf(w, "\n--- step %d (%s) ---\n%s", i+1, sr.Image, data)
		}
		return nil
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.DefaultStore()
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRmCmd)

	historyListCmd.Flags().String("status", "", "Filter by status (success, failed, timed_out)")
	historyListCmd.Flags().String("db-url", os.Getenv("CONVEYOR_DB_URL"), "List from Postgres instead of the local store")
	historyShowCmd.Flags().Bool("logs", false, "Include captured step logs")
}
