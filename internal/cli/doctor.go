package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/health"
	"github.com/ariel-frischer/stagefile/internal/logging"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that stages can run in this environment",
		Long: `Check that stages can run in this environment.

Verifies that the configured shell is on PATH, that the output cache is
writable, whether the working directory is inside a git repository and
that every enabled remote accepts a connection.`,
		GroupID: GroupConfiguration,
		Args:    withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logging.NewWithWriter(cfg.Logging(), cmd.ErrOrStderr())

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			report := health.RunHealthChecks(cmd.Context(), cfg, cwd, log)
			out := newPrinter(cmd.OutOrStdout())
			for _, check := range report.Checks {
				if check.Passed {
					out.success("%s: %s", check.Name, check.Message)
				} else {
					out.failure("%s: %s", check.Name, check.Message)
				}
			}
			if !report.Passed {
				return &reportedError{code: ExitMissingDependencies, msg: "health checks failed"}
			}
			return nil
		},
	}
}
