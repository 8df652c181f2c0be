package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chorusdev/chorus/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect resolved configuration",
}

var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the fully resolved configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg.AllSettings())
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configPrintCmd)
	rootCmd.AddCommand(configCmd)
}
