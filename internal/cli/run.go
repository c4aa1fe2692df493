package cli

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/history"
	"github.com/ariel-frischer/stagefile/internal/logging"
	"github.com/ariel-frischer/stagefile/internal/stage"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command>",
		Short: "Run a command and record it as a stage",
		Long: `Run a command and record it, with its dependencies and outputs, as a stage.

The command runs through the configured shell in the working directory
(-w, relative to the stage file). Dependencies must exist before it starts;
stale outputs are removed first and every output must exist afterwards.
Cached outputs are copied into the cache and added to .gitignore when the
stage lives in a git repository. Outputs git already tracks are refused.

Without a command the stage only records the current checksums.`,
		Example: `  # Train a model and record the stage in model.bin.stage.yaml
  stagefile run -d data.csv -d train.py -o model.bin -- python train.py

  # Keep metrics out of the cache and name the stage file
  stagefile run -d model.bin -O metrics.json -f evaluate.stage.yaml -- python eval.py

  # Run inside a sub directory
  stagefile run -w src -d main.c -o ../bin/app -f build.stage.yaml -- cc -o ../bin/app main.c

  # Write the stage file without running the command
  stagefile run --no-exec -d data.csv -o out.csv -- ./transform.sh`,
		GroupID: GroupStages,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, _ := cmd.Flags().GetStringArray("deps")
			outs, _ := cmd.Flags().GetStringArray("outs")
			outsNoCache, _ := cmd.Flags().GetStringArray("outs-no-cache")
			wdir, _ := cmd.Flags().GetString("wdir")
			file, _ := cmd.Flags().GetString("file")
			noExec, _ := cmd.Flags().GetBool("no-exec")

			s := buildStage(strings.Join(args, " "), wdir, deps, outs, outsNoCache)

			if file == "" {
				file = defaultStageFile(s)
			}
			if file == "" {
				return clierrors.NewArgumentErrorWithUsage(
					"cannot derive a stage file name from a stage without outputs",
					cmd.UseLine(),
					"Name the stage file with -f <name>"+stage.FileSuffix,
				)
			}
			s.Path = file

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := os.Stat(file); err == nil {
				a.log.Warn("overwriting existing stage file", map[string]interface{}{logging.FieldPath: file})
			}

			out := newPrinter(cmd.OutOrStdout())
			if noExec {
				if err := stage.Dump(s, file); err != nil {
					return err
				}
				out.success("Stage saved to %s (not executed)", file)
				return nil
			}

			r, err := a.runner(s, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			start := time.Now()
			err = r.Run(cmd.Context(), s)
			a.record("run", s, history.OutcomeRan, err, time.Since(start))
			if err != nil {
				return err
			}

			out.success("Stage saved to %s", file)
			return nil
		},
	}

	cmd.Flags().StringArrayP("deps", "d", nil, "Dependency path (repeatable)")
	cmd.Flags().StringArrayP("outs", "o", nil, "Output path, cached (repeatable)")
	cmd.Flags().StringArrayP("outs-no-cache", "O", nil, "Output path, not cached (repeatable)")
	cmd.Flags().StringP("wdir", "w", stage.DefaultWdir, "Working directory, relative to the stage file")
	cmd.Flags().StringP("file", "f", "", "Stage file (default: <first output>"+stage.FileSuffix+")")
	cmd.Flags().Bool("no-exec", false, "Write the stage file without running the command")
	return cmd
}

// buildStage assembles a stage from run flags. An empty command leaves
// cmd unset.
func buildStage(command, wdir string, deps, outs, outsNoCache []string) *stage.Stage {
	d := make([]stage.Dependency, 0, len(deps))
	for _, p := range deps {
		d = append(d, stage.Dep(p))
	}
	o := make([]stage.Output, 0, len(outs)+len(outsNoCache))
	for _, p := range outs {
		o = append(o, stage.Out(p, true))
	}
	for _, p := range outsNoCache {
		o = append(o, stage.Out(p, false))
	}

	s := stage.New(command, wdir, d, o)
	if strings.TrimSpace(command) == "" {
		s.Cmd = nil
	}
	return s
}

// defaultStageFile names the stage after its first output.
func defaultStageFile(s *stage.Stage) string {
	if len(s.Outs) == 0 {
		return ""
	}
	base := path.Base(strings.TrimSuffix(s.Outs[0].Path, "/"))
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base + stage.FileSuffix
}
