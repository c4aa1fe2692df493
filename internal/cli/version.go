package cli

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ariel-frischer/stagefile/internal/build"
)

// SourceURL is the project source URL
const SourceURL = "https://github.com/ariel-frischer/stagefile"

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Display version information (v)",
		Long:    "Display version, commit, build date, and Go version information for stagefile",
		Example: `  # Show version info
  stagefile version

  # Plain output (for scripts)
  stagefile version --plain`,
		Args: withUsage(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			plain, _ := cmd.Flags().GetBool("plain")
			if plain {
				fmt.Fprintf(w, "stagefile %s\n", build.Version)
				fmt.Fprintf(w, "commit: %s\n", build.Commit)
				fmt.Fprintf(w, "built: %s\n", build.BuildDate)
				fmt.Fprintf(w, "go: %s\n", runtime.Version())
				fmt.Fprintf(w, "platform: %s\n", build.Platform())
				return
			}

			label := color.New(color.FgYellow).SprintFunc()
			value := color.New(color.FgWhite, color.Bold).SprintFunc()
			info := []struct {
				label string
				value string
			}{
				{"Version", build.Version},
				{"Commit", build.ShortCommit()},
				{"Built", build.BuildDate},
				{"Go", runtime.Version()},
				{"Platform", build.Platform()},
				{"Source", SourceURL},
			}
			fmt.Fprintln(w)
			for _, item := range info {
				fmt.Fprintf(w, "  %s    %s\n", label(fmt.Sprintf("%10s", item.label)), value(item.value))
			}
			fmt.Fprintln(w)
		},
	}
	cmd.Flags().Bool("plain", false, "Plain output without formatting")
	return cmd
}
