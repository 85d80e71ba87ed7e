package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ctoken_service",
	Short: "Local-CToken service",
	Long:  `Local-CToken service ingests CMatrix submissions and forwards them to the CToken ledger`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
