// Package cmd defines the docrag command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "docrag - document retrieval-augmented generation service",
	Long: `docrag manages knowledge bases of documents, splits and embeds them into
a vector index, and answers questions grounded in the retrieved content.

Run "docrag serve" to start the HTTP API, or "docrag ingest" to load a
directory of documents from the command line.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
