// Package cmd wires the milo command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "milo",
	Short: "Milo is a Discord bot for one busy community server",
	Long: `Milo watches a pile of feeds, posts what's new, runs the morning
briefing, and answers "!"-commands on the channels it is configured for.

Run 'milo onboard' once to write the initial config, then 'milo serve'.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
