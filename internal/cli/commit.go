package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/history"
)

func newCommitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit <file>...",
		Short: "Record the current checksums of stages without running them",
		Long: `Record the current checksums of stages without running their commands.

Use this after producing outputs by hand, or after editing a stage file, to
mark the stage as up to date. Every dependency and output must exist. Cached
outputs are copied into the cache.`,
		Example: `  stagefile commit train.stage.yaml

  # Commit several stages
  stagefile commit prepare.stage.yaml train.stage.yaml`,
		GroupID: GroupStages,
		Args:    withUsage(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stages, err := loadStages(args, a.schemaOptions()...)
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			for _, s := range stages {
				r, err := a.runner(s, cmd.OutOrStdout(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				start := time.Now()
				err = r.Commit(cmd.Context(), s)
				a.record("commit", s, history.OutcomeCommitted, err, time.Since(start))
				if err != nil {
					return err
				}
				out.success("%s committed %s", s.Name(), out.dim(s.MD5))
			}
			return nil
		},
	}
	return cmd
}
