// Package cli defines the Cobra command tree for the engram CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Local memory store for AI coding agents",
	Long: `Engram persists short textual memories and returns ranked memories for
natural-language queries, with semantic vector search and full-text fallback.

It serves the same operations over HTTP (engram serve) and over a stdio tool
protocol (engram mcp). State lives in a single SQLite file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newStatsCmd(),
		newRecentCmd(),
		newSearchCmd(),
		newShowCmd(),
		newForgetCmd(),
		newDecayCmd(),
		newPruneCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("engram %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
