package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ariel-frischer/stagefile/internal/config"
	clierrors "github.com/ariel-frischer/stagefile/internal/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stagefile configuration",
		Long: `Manage stagefile configuration.

Configuration is loaded with the following priority (highest to lowest):
  1. Command line flags (--log-level, --strict)
  2. Environment variables (STAGEFILE_*, nested keys joined by "__")
  3. Project config (.stagefile/config.yml)
  4. User config (~/.config/stagefile/config.yml)
  5. Built-in defaults`,
		Example: `  # Write a commented project config
  stagefile config init

  # Show the effective configuration
  stagefile config show

  # Convert a legacy .stagefile/config.json
  stagefile config migrate`,
		GroupID: GroupConfiguration,
	}

	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigMigrateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Args:  withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.ProjectConfigPath()
			}
			user, _ := cmd.Flags().GetBool("user")
			if user {
				p, err := config.UserConfigPath()
				if err != nil {
					return clierrors.Wrap(err, clierrors.Configuration)
				}
				path = p
			}

			created, err := config.WriteDefaultConfig(path)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			if !created {
				out.changed("%s already exists, left unchanged", path)
				return nil
			}
			out.success("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().Bool("user", false, "Write the user-level config instead of the project config")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert .stagefile/config.json to YAML",
		Long: `Convert the legacy JSON project config to .stagefile/config.yml.
The JSON file is kept as config.json.bak.`,
		Args: withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			res, err := config.MigrateProjectConfig(dryRun)
			if err != nil {
				return clierrors.Wrap(err, clierrors.Configuration,
					"Check that .stagefile/config.json is valid JSON")
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "Show what would be migrated without writing files")
	return cmd
}
