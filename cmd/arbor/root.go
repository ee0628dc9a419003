package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor is a decision tree questionnaire engine",
	Long:  `Arbor evaluates rule driven decision trees: questionnaires whose visibility and validation logic is written in small Lua scripts attached to the tree.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", cli.DefaultConfigPath, "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("dir", "", "Directory containing tree JSON files")
	rootCmd.PersistentFlags().String("backend", "", "Base URL of a remote questionnaire backend")
	rootCmd.PersistentFlags().String("user", "", "User key answers are recorded under")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// resolveConfig loads the config file and lets flags override it.
func resolveConfig(cmd *cobra.Command) (cli.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cli.LoadConfig(path, cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Dir = dir
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.UserKey = user
	}
	return cfg, nil
}
