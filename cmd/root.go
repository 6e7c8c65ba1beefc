// Package cmd implements the folio command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "folio - grounded profile assistant",
	Long: `folio answers questions about one person's professional background and
public work, grounded in a curated evidence corpus. Answers cite their
sources; questions outside that scope are declined.

Running folio without a subcommand starts an interactive chat session.`,
	RunE: runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
