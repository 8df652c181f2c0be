package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chorusd",
	Short: "Chorus task-coordination server",
	Long: `chorusd runs the Chorus HTTP API: a hierarchical task tree a fleet of
agents and humans coordinate work through.`,
	SilenceUsage: true,
}
