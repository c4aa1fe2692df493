package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/schema"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the stage file format",
		Long: `Print the JSON Schema (draft 2020-12) of the stage file format.

Editors with YAML language server support can use it to validate stage files
while they are written. With --strict the schema rejects unknown keys.`,
		Example: `  stagefile schema > stage.schema.json
  stagefile schema --strict`,
		GroupID: GroupInspect,
		Args:    withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")
			data, err := json.MarshalIndent(schema.JSONSchema(strict), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}
