package arbor_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/decision"
)

// ExampleNew_memory demonstrates driving the engine with in-memory trees.
// This is useful for testing, embedded scenarios, or when you don't want
// to rely on a remote backend.
func ExampleNew_memory() {
	// 1. Register the tree payloads on an in-memory fetcher.
	fetcher := memory.NewFetcher()
	fetcher.Register("onboarding", []byte(`{
		"_uid": "onboarding", "_typ": "decision_root", "name": "Onboarding", "type": "form",
		"_chi": [
			{"_uid": "q-remote", "_typ": "decision_question", "label": "Do you work remotely?", "type": "choice", "_chi": [
				{"_uid": "a-yes", "_typ": "decision_answer", "label": "Yes", "value": "yes", "_chi": []},
				{"_uid": "a-no", "_typ": "decision_answer", "label": "No", "value": "no", "_chi": []}
			]},
			{"_uid": "q-city", "_typ": "decision_question", "label": "Office city", "type": "text", "_chi": [
				{"_uid": "r-vis", "_typ": "decision_rule", "type": "visibility", "script": "return has('a-no')", "_chi": []},
				{"_uid": "r-req", "_typ": "decision_rule", "type": "validation", "script": "return #get('q-city') > 0, 'city is required'", "_chi": []}
			]}
		]
	}`))

	// 2. Initialize the engine.
	engine, err := arbor.New(fetcher, arbor.WithUserKey("demo-user"))
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()
	tree, err := engine.Load(ctx, "onboarding")
	if err != nil {
		log.Fatal(err)
	}

	// 3. Answer the choice question. The office city question only becomes
	// visible for on-site workers, and then requires a value.
	remote := decision.Find(tree, "q-remote").(*decision.Question)
	city := decision.Find(tree, "q-city").(*decision.Question)
	data := engine.UserData()

	engine.SetAnswer(remote, "a-no", "")
	fmt.Println("city hidden:", data.IsHidden(city, tree, ""))
	fmt.Println("valid:", data.Valid)

	engine.SetAnswer(city, "Lisbon", "")
	fmt.Println("valid after city:", data.Valid)

	// 4. Submit the answers.
	if err := engine.Submit(ctx, arbor.StateNoChange); err != nil {
		log.Fatal(err)
	}
	fmt.Println("save count:", data.SaveCount)

	// Output:
	// city hidden: false
	// valid: false
	// valid after city: true
	// save count: 1
}
