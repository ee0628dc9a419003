package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/tui"
	"github.com/aretw0/arbor/pkg/runner"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a questionnaire interactively",
	Long:  `Walks the decision tree chain in the terminal, asking each visible question and submitting every tree once its answers validate.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		plain, _ := cmd.Flags().GetBool("plain")
		treeUID, _ := cmd.Flags().GetString("tree")
		if treeUID == "" && len(args) > 0 {
			treeUID = args[0]
		}

		logger := cli.NewLogger(debug)
		engine, fetcher, err := cli.NewEngine(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing arbor: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()

		ctx := context.Background()
		start, err := cli.ResolveStartTree(ctx, fetcher, treeUID)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		runnerOpts := []runner.Option{runner.WithLogger(logger)}
		if !plain && term.IsTerminal(int(os.Stdout.Fd())) {
			tui.PrintBanner(arbor.Version)
			runnerOpts = append(runnerOpts, runner.WithRenderer(tui.NewRenderer()))
		}

		r := runner.NewRunner(engine, runnerOpts...)
		if err := r.Run(ctx, start); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		if store, _ := cmd.Flags().GetBool("save"); store {
			if err := engine.SaveUserData(ctx); err != nil {
				fmt.Printf("Failed to save answers: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("tree", "", "UID of the tree to start with")
	runCmd.Flags().Bool("plain", false, "Disable rich terminal rendering")
	runCmd.Flags().Bool("save", false, "Persist answers to the user data store on completion")

	// Make 'run' the default if no command is provided.
	rootCmd.Run = runCmd.Run
}
