package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/graph"
	"github.com/ariel-frischer/stagefile/internal/history"
	"github.com/ariel-frischer/stagefile/internal/runner"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

func newReproCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repro [file]...",
		Short: "Re-run changed stages in dependency order",
		Long: `Re-run changed stages in dependency order.

Without arguments every *.stage.yaml file in the current directory is
considered. Stages run upstream first, so a stage whose dependency is
rebuilt by an earlier stage is checked against the new file. Unchanged
stages are skipped unless --force is given.`,
		Example: `  # Reproduce everything that changed
  stagefile repro

  # Re-run one stage unconditionally
  stagefile repro --force train.stage.yaml

  # Show what would run
  stagefile repro --dry-run`,
		GroupID: GroupStages,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			paths, err := stageFiles(args)
			if err != nil {
				return err
			}
			stages, err := loadStages(paths, a.schemaOptions()...)
			if err != nil {
				return err
			}
			g, err := graph.Build(stages)
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			wouldRun := make(map[*stage.Stage]bool)
			for _, s := range g.Order() {
				if dryRun {
					report := a.detector.Status(cmd.Context(), s)
					var upstream []string
					for _, u := range g.Upstream(s) {
						if wouldRun[u] {
							upstream = append(upstream, u.Name())
						}
					}
					if force || report.Changed() || len(upstream) > 0 {
						wouldRun[s] = true
						out.changed("%s would run", s.Name())
						for _, reason := range report.Reasons {
							out.detail("%s", reason.String())
						}
						for _, name := range upstream {
							out.detail("upstream stage %s would run", name)
						}
					} else {
						out.success("%s up to date", s.Name())
					}
					continue
				}

				r, err := a.runner(s, cmd.OutOrStdout(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				res, err := r.Reproduce(cmd.Context(), s, force)
				a.record("repro", s, reproOutcome(res), err, res.Duration)
				if err != nil {
					out.failure("%s", s.Name())
					return err
				}
				if res.Skipped {
					out.success("%s up to date", s.Name())
					continue
				}
				out.success("%s reproduced in %s", s.Name(), res.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Run stages even when nothing changed")
	cmd.Flags().BoolP("dry-run", "n", false, "Report which stages would run without running them")
	return cmd
}

func reproOutcome(res runner.Result) string {
	if res.Skipped {
		return history.OutcomeSkipped
	}
	return history.OutcomeRan
}
