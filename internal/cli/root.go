// Package cli implements the stagefile command line.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
)

// Command group IDs for the help output.
const (
	GroupStages        = "stages"
	GroupInspect       = "inspect"
	GroupConfiguration = "configuration"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stagefile",
		Short: "Reproducible stage files with checksum-based change detection",
		Long: `stagefile records a command together with the files it reads and writes.

Each stage file stores the checksums of its dependencies and outputs plus an
md5 over the whole stage. A stage is up to date when every recorded checksum
still matches the file on disk and the stage itself was not edited.

Paths may be local, s3://bucket/key or ssh://host/path once the matching
remote is enabled in .stagefile/config.yml.`,
		Example: `  # Run a command and record it as a stage
  stagefile run -d data.csv -o model.bin -- python train.py

  # Show which stages changed
  stagefile status

  # Re-run changed stages in dependency order
  stagefile repro`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default: .stagefile/config.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().Bool("strict", false, "Reject unknown keys in stage files")

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupStages, Title: "Stage Commands:"},
		&cobra.Group{ID: GroupInspect, Title: "Inspection Commands:"},
		&cobra.Group{ID: GroupConfiguration, Title: "Configuration Commands:"},
	)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return clierrors.NewArgumentErrorWithUsage(err.Error(), cmd.UseLine())
	})

	rootCmd.AddCommand(
		newRunCmd(),
		newCommitCmd(),
		newReproCmd(),
		newStatusCmd(),
		newValidateCmd(),
		newChecksumCmd(),
		newWatchCmd(),
		newSchemaCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command. Errors are printed to stderr before they
// are returned; use ExitCode to pick the process exit status.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	report(rootCmd, err)
	return err
}

// report prints err unless a command already did.
func report(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	clierrors.FprintError(cmd.ErrOrStderr(), toCLIError(err))
}
