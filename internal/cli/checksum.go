package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/stage"
)

func newChecksumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checksum <file>",
		Short: "Print the stored and computed stage checksum",
		Long: `Print the md5 stored in a stage file next to the md5 computed from its
current definition.

The computed value covers the command, working directory and the recorded
dependency and output entries. It does not read the files the stage
references; use 'stagefile status' for that. A mismatch means the stage file
was edited by hand after it was committed.`,
		Example: `  stagefile checksum train.stage.yaml

  # Fail when the stage file was edited after commit
  stagefile checksum --check train.stage.yaml`,
		GroupID: GroupInspect,
		Args:    withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := loadStage(args[0], schemaOpts(cfg.StrictSchema)...)
			if err != nil {
				return err
			}

			stored := s.MD5
			if stored == "" {
				stored = "-"
			}
			computed := stage.Checksum(s)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "stored:   %s\n", stored)
			fmt.Fprintf(w, "computed: %s\n", computed)

			check, _ := cmd.Flags().GetBool("check")
			if check && s.MD5 != computed {
				return &reportedError{code: ExitFailure, msg: "stage checksum mismatch"}
			}
			return nil
		},
	}

	cmd.Flags().Bool("check", false, "Exit with status 1 when the checksums differ")
	return cmd
}
