package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print pgreorg version and supported PostgreSQL versions",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pgreorg %s (commit: %s, built: %s)\n\n", Version, CommitSHA, BuildDate)
		fmt.Fprintln(out, "Supported PostgreSQL versions:")
		fmt.Fprintln(out, "  • PostgreSQL 12 – 16")
		fmt.Fprintln(out, "  • PostgreSQL 17")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "PostgreSQL 8.3 and later expose the virtual transaction ID")
		fmt.Fprintln(out, "machinery the catch-up waiter depends on; pgreorg targets only")
		fmt.Fprintln(out, "the actively supported major versions above.")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
