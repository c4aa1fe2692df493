package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
	"github.com/ariel-frischer/stagefile/internal/schema"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check stage files against the document schema",
		Long: `Check stage files against the document schema without touching the
files they reference.

Every violation of every file is reported, not just the first one. With
--strict (or strict_schema: true) unknown keys are violations as well.`,
		Example: `  # Validate one stage file
  stagefile validate train.stage.yaml

  # Validate all stage files, rejecting unknown keys
  stagefile validate --strict *.stage.yaml`,
		GroupID: GroupInspect,
		Args:    withUsage(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				if err := validateFile(path, cfg.StrictSchema); err != nil {
					failed++
					out.failure("%s", path)
					clierrors.FprintError(cmd.ErrOrStderr(), toCLIError(err))
					continue
				}
				out.success("%s", path)
			}

			if failed > 0 {
				return &reportedError{
					code: ExitFailure,
					msg:  fmt.Sprintf("%d of %d stage file(s) invalid", failed, len(args)),
				}
			}
			return nil
		},
	}
	return cmd
}

func validateFile(path string, strict bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return clierrors.StageFileNotFound(path)
		}
		return fmt.Errorf("reading stage file: %w", err)
	}
	return schema.ValidateBytes(data, schema.WithFile(path), schema.WithStrictMode(strict))
}
