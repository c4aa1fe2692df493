package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show recent stage executions",
		Long: `Show recent stage executions recorded by run, repro, commit and watch.

The history is kept in history.yaml next to the project config. Pass a stage
file to only show its entries. Recording is controlled by history.enabled.`,
		Example: `  # Last 20 executions
  stagefile history

  # Last 5 executions of one stage
  stagefile history -n 5 train.stage.yaml`,
		GroupID: GroupInspect,
		Args:    withUsage(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return clierrors.NewArgumentErrorWithUsage(
					fmt.Sprintf("--limit must be zero or more, got %d", limit), cmd.UseLine())
			}

			h, err := history.LoadHistory(stateDir(cmd))
			if err != nil {
				return err
			}

			stageName := ""
			if len(args) == 1 {
				stageName = args[0]
			}
			entries := h.Last(limit, stageName)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history recorded")
				return nil
			}

			out := newPrinter(cmd.OutOrStdout())
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-6s %-9s %8s  %s",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Command, e.Outcome, e.Duration, e.Stage)
				if e.Outcome == history.OutcomeFailed {
					out.failure("%s (exit %d)", line, e.ExitCode)
					continue
				}
				out.success("%s", line)
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of entries to show (0 for all)")
	return cmd
}
