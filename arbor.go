package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
)

// State describes the navigation requested alongside a Submit.
type State int

const (
	// StateNoChange submits without leaving the current tree.
	StateNoChange State = iota
	// StateNext submits and advances to the next tree in the chain.
	StateNext
	// StatePrevious submits and returns to the previous tree.
	StatePrevious
)

// Engine is the high-level entry point for the arbor library. It owns the
// chain of loaded decision trees, the user's answer store, and the rule
// evaluation runtime, and serializes all session operations.
type Engine struct {
	fetcher ports.TreeFetcher
	store   ports.UserDataStore
	hooks   ports.LifecycleHooks
	logger  *slog.Logger

	userKey         string
	readOnly        bool
	submitOnInvalid bool

	mu             sync.Mutex
	session        *session.Manager
	evaluator      *runtime.Evaluator
	trees          []decision.Node
	current        int
	userData       *answers.Store
	lastSubmitHash string
}

// New initializes an Engine backed by the given tree fetcher.
func New(fetcher ports.TreeFetcher, opts ...Option) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("tree fetcher is required")
	}
	e := &Engine{
		fetcher: fetcher,
		hooks:   ports.NopHooks{},
		logger:  logging.NewNop(),
		current: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.userKey == "" {
		e.userKey = decision.GenerateUID()
	}
	e.userData = answers.New(e.userKey)
	e.session = session.NewManager(session.WithLogger(e.logger))
	e.evaluator = runtime.New(
		runtime.WithLogger(e.logger),
		runtime.WithHooks(e.hooks),
	)
	return e, nil
}

// Close releases the evaluation runtime.
func (e *Engine) Close() {
	e.evaluator.Close()
}

// Current returns the tree the session is on, or nil before the first Load.
func (e *Engine) Current() decision.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current < 0 || e.current >= len(e.trees) {
		return nil
	}
	return e.trees[e.current]
}

// Trees returns the loaded tree chain in load order.
func (e *Engine) Trees() []decision.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]decision.Node(nil), e.trees...)
}

// UserData returns the session's answer store.
func (e *Engine) UserData() *answers.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userData
}

// Load makes the tree with the given uid current, fetching and building it
// on first use, then runs an evaluation pass. A concurrent Load is rejected
// with session.ErrRequestInFlight.
func (e *Engine) Load(ctx context.Context, uid string) (decision.Node, error) {
	var tree decision.Node
	err := e.session.Do(ctx, session.OpFetch, func(ctx context.Context) error {
		var err error
		tree, err = e.load(ctx, uid)
		return err
	})
	return tree, err
}

func (e *Engine) load(ctx context.Context, uid string) (decision.Node, error) {
	e.mu.Lock()
	for i, tree := range e.trees {
		if tree.Meta().UID == uid {
			e.current = i
			e.mu.Unlock()
			e.Evaluate()
			return tree, nil
		}
	}
	req := ports.TreeRequest{UID: uid}
	if version, ok := e.userData.ObjectVersion(uid); ok {
		req.Version = version
	} else {
		req.VersionHash = e.userData.ObjectVersionHash(uid)
	}
	gen := e.session.Generation()
	e.mu.Unlock()

	data, err := e.fetcher.FetchTree(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tree %q: %w", uid, err)
	}
	tree, err := decision.Build(data)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree %q: %w", uid, err)
	}

	e.mu.Lock()
	if e.session.Stale(gen) {
		e.mu.Unlock()
		return nil, fmt.Errorf("load %q: %w", uid, ErrSessionReset)
	}
	replaced := false
	for i, existing := range e.trees {
		if existing.Meta().UID == tree.Meta().UID {
			e.trees[i] = tree
			e.current = i
			replaced = true
			break
		}
	}
	if !replaced {
		e.trees = append(e.trees, tree)
		e.current = len(e.trees) - 1
	}
	// Cached script hosts hold handles into old tree instances.
	e.evaluator.Reset()
	e.mu.Unlock()

	e.logger.Info("loaded decision tree", "uid", uid, "user_key", e.userKey)
	e.Evaluate()
	return tree, nil
}

// LoadNext loads the tree the current one links to.
func (e *Engine) LoadNext(ctx context.Context) (decision.Node, error) {
	e.mu.Lock()
	if e.current < 0 {
		e.mu.Unlock()
		return nil, ErrNoTreeLoaded
	}
	root, ok := e.trees[e.current].(*decision.Root)
	if !ok || root.Next == "" {
		e.mu.Unlock()
		return nil, ErrNoNextTree
	}
	next := root.Next
	e.mu.Unlock()
	return e.Load(ctx, next)
}

// LoadPrevious loads the tree before the current one in the chain.
func (e *Engine) LoadPrevious(ctx context.Context) (decision.Node, error) {
	e.mu.Lock()
	if e.current <= 0 {
		e.mu.Unlock()
		return nil, ErrNoPreviousTree
	}
	prev := e.trees[e.current-1].Meta().UID
	e.mu.Unlock()
	return e.Load(ctx, prev)
}

// Report summarizes one evaluation pass.
type Report = runtime.Report

// Evaluate runs a rule pass over the current tree and records overall
// validity on the user data.
func (e *Engine) Evaluate() Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current < 0 {
		return Report{}
	}
	report := e.evaluator.Evaluate(e.trees[e.current], e.trees, e.userData)
	e.userData.Valid = report.Valid()
	return report
}

// SetAnswer replaces the recorded answers of a question with one answer.
// Used by single answer questions where a change means replacement.
func (e *Engine) SetAnswer(question *decision.Question, answer any, matrixID string) error {
	if e.readOnly {
		return ErrReadOnly
	}
	e.mu.Lock()
	e.userData.ResetAnswers(question, matrixID)
	e.userData.AddAnswer(question, answer, matrixID)
	e.mu.Unlock()
	e.Evaluate()
	return nil
}

// AddAnswer records an additional answer for a question.
func (e *Engine) AddAnswer(question *decision.Question, answer any, matrixID string) error {
	if e.readOnly {
		return ErrReadOnly
	}
	e.mu.Lock()
	e.userData.AddAnswer(question, answer, matrixID)
	e.mu.Unlock()
	e.Evaluate()
	return nil
}

// RemoveAnswer removes a recorded answer of a question.
func (e *Engine) RemoveAnswer(question *decision.Question, answer any, matrixID string) error {
	if e.readOnly {
		return ErrReadOnly
	}
	e.mu.Lock()
	e.userData.RemoveAnswer(question, answer, matrixID)
	e.mu.Unlock()
	e.Evaluate()
	return nil
}

// ResetMatrixRow drops every answer recorded under a matrix row id.
func (e *Engine) ResetMatrixRow(matrixID string) error {
	if e.readOnly {
		return ErrReadOnly
	}
	e.mu.Lock()
	e.userData.ResetMatrix(matrixID)
	e.mu.Unlock()
	e.Evaluate()
	return nil
}

// LoadUserData restores the session's answer store from the configured
// store. A missing record keeps the fresh store.
func (e *Engine) LoadUserData(ctx context.Context) error {
	if e.store == nil {
		return ErrNoUserDataStore
	}
	return e.session.Do(ctx, session.OpUserData, func(ctx context.Context) error {
		data, err := e.store.Load(ctx, e.userKey)
		if err != nil {
			if errors.Is(err, ports.ErrUserDataNotFound) {
				e.logger.Debug("no stored user data", "user_key", e.userKey)
				return nil
			}
			return fmt.Errorf("failed to load user data: %w", err)
		}
		e.mu.Lock()
		data.Key = e.userKey
		e.userData = data
		e.mu.Unlock()
		e.Evaluate()
		return nil
	})
}

// SaveUserData persists the answer store without submitting it.
func (e *Engine) SaveUserData(ctx context.Context) error {
	if e.readOnly {
		return ErrReadOnly
	}
	if e.store == nil {
		return ErrNoUserDataStore
	}
	return e.session.Do(ctx, session.OpUserData, func(ctx context.Context) error {
		e.mu.Lock()
		data := e.userData
		e.mu.Unlock()
		if err := e.store.Save(ctx, data); err != nil {
			return fmt.Errorf("failed to save user data: %w", err)
		}
		return nil
	})
}

// Submit finalizes the current tree's answers. A full evaluation pass runs
// first; when validation failed and the engine does not allow submitting
// invalid data, StateNext is refused with ErrValidationFailed. An
// unchanged answer set (by content hash, save counters excluded) skips the
// delivery but still performs the requested navigation.
func (e *Engine) Submit(ctx context.Context, state State) error {
	if e.readOnly {
		return ErrReadOnly
	}
	err := e.session.Do(ctx, session.OpSubmit, func(ctx context.Context) error {
		return e.submit(ctx, state)
	})
	if err != nil {
		return err
	}
	return e.navigate(ctx, state)
}

func (e *Engine) submit(ctx context.Context, state State) error {
	report := e.Evaluate()

	e.mu.Lock()
	if !report.Valid() && state == StateNext && !e.submitOnInvalid {
		e.mu.Unlock()
		e.logger.Info("submit refused, validation failed", "user_key", e.userKey)
		return ErrValidationFailed
	}
	for _, tree := range e.trees {
		e.userData.AddObject(tree)
	}
	e.userData.SaveCount++
	data := e.userData

	hash, err := data.ExportHash()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to hash user data: %w", err)
	}
	unchanged := hash == e.lastSubmitHash
	e.mu.Unlock()

	if unchanged {
		e.logger.Info("submit skipped, no changes detected", "hash", hash)
		return nil
	}
	if err := e.deliver(ctx, data); err != nil {
		return err
	}

	e.mu.Lock()
	e.lastSubmitHash = hash
	e.mu.Unlock()
	e.logger.Info("submitted user data",
		"user_key", e.userKey, "hash", hash, "save_count", data.SaveCount)
	return nil
}

// deliver hands the answer store to the backing system: a Submitter when
// the store supports it, a plain Save otherwise.
func (e *Engine) deliver(ctx context.Context, data *answers.Store) error {
	if e.store == nil {
		return nil
	}
	if submitter, ok := e.store.(ports.Submitter); ok {
		if err := submitter.Submit(ctx, data); err != nil {
			return fmt.Errorf("failed to submit user data: %w", err)
		}
		return nil
	}
	if err := e.store.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save user data: %w", err)
	}
	return nil
}

// navigate performs the post submit tree change. Running off either end of
// the chain is not an error; the submit already succeeded.
func (e *Engine) navigate(ctx context.Context, state State) error {
	switch state {
	case StateNext:
		if _, err := e.LoadNext(ctx); err != nil {
			if errors.Is(err, ErrNoNextTree) {
				e.logger.Warn("cannot load next tree, none defined")
				return nil
			}
			return err
		}
	case StatePrevious:
		if _, err := e.LoadPrevious(ctx); err != nil {
			if errors.Is(err, ErrNoPreviousTree) {
				e.logger.Warn("cannot load previous tree, first already loaded")
				return nil
			}
			return err
		}
	}
	return nil
}

// Reset discards the loaded trees and answer state, starting a fresh
// session under the same user key. Results of in-flight operations are
// discarded when they complete.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Advance()
	e.trees = nil
	e.current = -1
	e.userData = answers.New(e.userKey)
	e.lastSubmitHash = ""
	e.evaluator.Reset()
}
