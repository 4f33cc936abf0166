// Package cli defines the querygate command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "querygate",
	Short: "Natural-language gateway for a university database",
	Long:  "Translates free-text requests into authorized SQL against a PostgreSQL university database.\nEvery request is parsed, checked against role-based resource rules, previewed, and audited.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
