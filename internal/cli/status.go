package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/graph"
	"github.com/ariel-frischer/stagefile/internal/progress"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [file]...",
		Short: "Show which stages changed since they were committed",
		Long: `Show which stages changed since they were committed.

Without arguments every *.stage.yaml file in the current directory is checked.
The stages are first validated as a whole: two stages may not write the same
output and stage dependencies may not form a cycle. Stages are then checked
in parallel, up to --jobs at a time.

For every changed stage the reasons are listed: a dependency or output that
changed or disappeared, an output missing from the cache, or a stage file
edited since it was committed.

Exits with status 1 when any stage changed.`,
		Example: `  # Check all stage files in the current directory
  stagefile status

  # Check specific stages with 8 parallel checks
  stagefile status -j 8 prepare.stage.yaml train.stage.yaml

  # Exit status only
  stagefile status --quiet`,
		GroupID: GroupInspect,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			jobs := a.cfg.Jobs
			if cmd.Flags().Changed("jobs") {
				jobs, _ = cmd.Flags().GetInt("jobs")
			}
			if jobs < 1 {
				return clierrors.NewArgumentError("--jobs must be at least 1")
			}

			errOut := newPrinter(cmd.ErrOrStderr())
			spin := progress.NewSpinner(cmd.ErrOrStderr(), errOut.caps,
				fmt.Sprintf("checking %d stage(s)", len(stages)))
			spin.Start()
			reports, err := graph.StatusAll(cmd.Context(), g, a.detector, jobs)
			spin.Stop()
			if err != nil {
				return err
			}

			quiet, _ := cmd.Flags().GetBool("quiet")
			out := newPrinter(cmd.OutOrStdout())
			changed := 0
			for _, r := range reports {
				if r.Changed() {
					changed++
				}
				if !quiet {
					out.report(r)
				}
			}

			if changed > 0 {
				if quiet {
					return &reportedError{code: ExitFailure, msg: fmt.Sprintf("%d stage(s) changed", changed)}
				}
				return clierrors.StagesChanged(changed)
			}
			return nil
		},
	}

	cmd.Flags().IntP("jobs", "j", 0, "Parallel status checks (default: jobs from config)")
	cmd.Flags().BoolP("quiet", "q", false, "Print nothing; report changes through the exit status")
	return cmd
}
