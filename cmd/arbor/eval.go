package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
)

// evalResult is the JSON output of the eval command.
type evalResult struct {
	Tree               string              `json:"tree"`
	Valid              bool                `json:"valid"`
	RulesEvaluated     int                 `json:"rules_evaluated"`
	ValidationFailures int                 `json:"validation_failures"`
	Faults             int                 `json:"faults"`
	Messages           map[string][]string `json:"messages,omitempty"`
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a tree against recorded answers",
	Long:  `Runs one rule pass over a tree with answers loaded from a user data file and reports validity, validation messages and rule faults as JSON.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		debug, _ := cmd.Flags().GetBool("debug")
		treeUID, _ := cmd.Flags().GetString("tree")
		dataPath, _ := cmd.Flags().GetString("data")
		if treeUID == "" && len(args) > 0 {
			treeUID = args[0]
		}
		// A tree argument naming an existing file evaluates that file.
		if treeUID != "" {
			if info, err := os.Stat(treeUID); err == nil && !info.IsDir() {
				uid, dir, err := treeFromFile(treeUID)
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
				cfg.Backend = ""
				cfg.Dir = dir
				treeUID = uid
			}
		}

		logger := cli.NewLogger(debug)

		engineOpts := []arbor.Option{arbor.WithReadOnly(true)}
		if dataPath != "" {
			store, userKey, err := storeFromFile(dataPath)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			engineOpts = append(engineOpts, arbor.WithUserDataStore(store), arbor.WithUserKey(userKey))
			cfg.UserKey = ""
		}

		engine, fetcher, err := cli.NewEngine(cfg, logger, engineOpts...)
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

		if dataPath != "" {
			if err := engine.LoadUserData(ctx); err != nil {
				fmt.Printf("Failed to load user data: %v\n", err)
				os.Exit(1)
			}
		}

		tree, err := engine.Load(ctx, start)
		if err != nil {
			fmt.Printf("Failed to load tree: %v\n", err)
			os.Exit(1)
		}
		report := engine.Evaluate()

		result := evalResult{
			Tree:               start,
			Valid:              report.Valid(),
			RulesEvaluated:     report.RulesEvaluated,
			ValidationFailures: report.ValidationFailures,
			Faults:             report.Faults,
			Messages:           collectMessages(tree, engine.UserData()),
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

		if !result.Valid {
			os.Exit(2)
		}
	},
}

// treeFromFile resolves a tree file path to its uid and directory.
func treeFromFile(path string) (uid, dir string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read tree: %w", err)
	}
	var head struct {
		UID string `json:"_uid"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.UID == "" {
		return "", "", fmt.Errorf("%s is not a tree file", path)
	}
	return head.UID, filepath.Dir(path), nil
}

// storeFromFile seeds a memory store with a user data export.
func storeFromFile(path string) (*memory.Store, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read user data: %w", err)
	}
	imported, err := answers.Import(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse user data: %w", err)
	}
	store := memory.NewStore()
	if err := store.Save(context.Background(), imported); err != nil {
		return nil, "", err
	}
	return store, imported.Key, nil
}

// collectMessages gathers validation messages per question, including
// matrix scoped ones under "uid_rowid" keys.
func collectMessages(tree decision.Node, data *answers.Store) map[string][]string {
	messages := make(map[string][]string)
	var walk func(node decision.Node, matrixID string)
	walk = func(node decision.Node, matrixID string) {
		if question, ok := node.(*decision.Question); ok {
			if msgs := data.ValidationMessages(question, matrixID); len(msgs) > 0 {
				key := question.UID
				if matrixID != "" {
					key = question.UID + "_" + matrixID
				}
				messages[key] = msgs
			}
		}
		if matrix, ok := node.(*decision.Matrix); ok {
			for _, rowID := range data.FindMatrixIDs(matrix) {
				for _, child := range matrix.Children {
					walk(child, rowID)
				}
			}
			return
		}
		for _, child := range node.Meta().Children {
			walk(child, matrixID)
		}
	}
	walk(tree, "")
	if len(messages) == 0 {
		return nil
	}
	return messages
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().String("tree", "", "UID of the tree to evaluate")
	evalCmd.Flags().String("data", "", "User data export file (JSON)")
}
