/*
Package arbor is a rule evaluation engine for decision tree questionnaires:
chained forms whose questions appear, disappear and validate themselves
based on user authored Lua rules.

A decision tree is a tree of typed nodes (groups, questions, answers,
matrices) with rules attached to the nodes they govern. As the user
answers, the engine re-evaluates the rules against the answer store:
visibility rules decide which branches are shown, validation rules decide
whether the recorded answers are acceptable. Rules run inside a sandboxed
Lua interpreter with a small read-only API over the tree and the answers.

The core is decoupled from transport and storage. Trees come from a
TreeFetcher (backend API, filesystem, memory), answer state persists
through a UserDataStore (memory, Redis, backend), and embedders observe
evaluation through LifecycleHooks.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/arbor"
		"github.com/aretw0/arbor/pkg/adapters/memory"
	)

	func main() {
		fetcher := memory.NewFetcher()
		// register tree definitions on the fetcher ...

		eng, err := arbor.New(fetcher, arbor.WithUserKey("user-1"))
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		ctx := context.Background()
		tree, err := eng.Load(ctx, "intake-form")
		if err != nil {
			log.Fatal(err)
		}

		// Record answers and re-evaluate; hidden state and validation
		// messages land on the answer store.
		_ = tree
		report := eng.Evaluate()
		log.Printf("valid=%v", report.Valid())
	}
*/
package arbor
