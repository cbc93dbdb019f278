// Package cmd implements the kaiwa command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kaiwa",
	Short: "Kaiwa - a conversational request orchestrator",
	Long: `Kaiwa serves a tool-calling conversational agent over HTTP,
with persistent threads and retrieval-augmented answers drawn from a
local document corpus.

Running kaiwa with no arguments starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
