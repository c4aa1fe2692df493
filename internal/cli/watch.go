package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/backend"
	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/stage"
	"github.com/ariel-frischer/stagefile/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Report stage status whenever a dependency changes",
		Long: `Watch the local dependencies of a stage and report its status after every
change. Edits to the stage file itself are picked up as well.

With --repro the stage is reproduced instead of only reported. Remote
dependencies are not watched. Stop with Ctrl+C.`,
		Example: `  stagefile watch train.stage.yaml

  # Rebuild on every change
  stagefile watch --repro build.stage.yaml`,
		GroupID: GroupStages,
		Args:    withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			reproduce, _ := cmd.Flags().GetBool("repro")
			debounce, _ := cmd.Flags().GetDuration("debounce")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			file := args[0]
			s, err := loadStage(file, a.schemaOptions()...)
			if err != nil {
				return err
			}

			w, err := watch.New(watchPaths(s), debounce, a.log)
			if err != nil {
				return err
			}
			defer w.Close()

			out := newPrinter(cmd.OutOrStdout())
			stageFile, _ := filepath.Abs(file)

			step := func(ctx context.Context) {
				if reproduce {
					if err := reproStage(ctx, a, cmd, s); err != nil {
						clierrors.FprintError(cmd.ErrOrStderr(), toCLIError(err))
					}
					return
				}
				out.report(a.detector.Status(ctx, s))
			}

			step(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %d path(s) for %s (Ctrl+C to stop)\n", len(watchPaths(s)), s.Name())

			return w.Run(cmd.Context(), func(changed []string) {
				for _, p := range changed {
					if p != stageFile {
						continue
					}
					reloaded, err := loadStage(file, a.schemaOptions()...)
					if err != nil {
						clierrors.FprintError(cmd.ErrOrStderr(), toCLIError(err))
						return
					}
					s = reloaded
				}
				out.detail("changed: %v", changed)
				step(cmd.Context())
			})
		},
	}

	cmd.Flags().Bool("repro", false, "Reproduce the stage on every change")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before reacting to a burst of changes")
	return cmd
}

// watchPaths lists the stage file and its local dependencies.
func watchPaths(s *stage.Stage) []string {
	paths := []string{s.Path}
	for _, dep := range s.Deps {
		if backend.IsRemote(dep.Path) {
			continue
		}
		paths = append(paths, s.ResolvePath(dep.Path))
	}
	return paths
}

func reproStage(ctx context.Context, a *app, cmd *cobra.Command, s *stage.Stage) error {
	r, err := a.runner(s, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := newPrinter(cmd.OutOrStdout())
	res, err := r.Reproduce(ctx, s, false)
	a.record("watch", s, reproOutcome(res), err, res.Duration)
	if err != nil {
		return err
	}
	if res.Skipped {
		out.success("%s up to date", s.Name())
		return nil
	}
	out.success("%s reproduced", s.Name())
	return nil
}
