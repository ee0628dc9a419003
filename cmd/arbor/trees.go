package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var treesCmd = &cobra.Command{
	Use:   "trees",
	Short: "List the available decision trees",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		engine, fetcher, err := cli.NewEngine(cfg, cli.NewLogger(debug))
		if err != nil {
			fmt.Printf("Error initializing arbor: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()

		uids, err := fetcher.ListTrees(context.Background())
		if err != nil {
			fmt.Printf("Failed to list trees: %v\n", err)
			os.Exit(1)
		}
		for _, uid := range uids {
			fmt.Println(uid)
		}
	},
}

func init() {
	rootCmd.AddCommand(treesCmd)
}
