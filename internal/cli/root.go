package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Action governance layer for AI agents",
	Long:  "Assesses the risk of agent operations, gates high-risk work behind structured execution plans with per-step approval, and keeps a session audit trail.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
