// Package runner drives an engine as an interactive questionnaire. It
// walks the visible part of the current tree, asks each question through
// an IOHandler strategy, and submits when the tree validates.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/decision"
)

// Runner executes the questionnaire loop against an engine using the
// provided IO. Separating the loop from the IO allows scripted tests and
// alternative frontends.
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on
	// Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Renderer transforms group content before display. Only consulted
	// when the default TextHandler is constructed.
	Renderer ContentRenderer

	engine *arbor.Engine
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithHandler configures a custom IOHandler.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithRenderer configures the content renderer (e.g. markdown to ANSI).
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.Renderer = renderer
	}
}

// NewRunner creates a Runner for the given engine.
func NewRunner(engine *arbor.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		th := NewTextHandler(nil, nil)
		th.Renderer = r.Renderer
		r.Handler = th
	}
	return r
}

// Run loads the tree with the given uid and walks the chain until the
// last tree is submitted or the user quits. A quit ("exit", "quit" or
// EOF) is not an error.
func (r *Runner) Run(ctx context.Context, uid string) error {
	tree, err := r.engine.Load(ctx, uid)
	if err != nil {
		return err
	}

	for {
		if err := r.presentTree(ctx, tree); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		before := tree.Meta().UID
		if err := r.engine.Submit(ctx, arbor.StateNext); err != nil {
			if errors.Is(err, arbor.ErrValidationFailed) {
				r.Handler.Say(ctx, "Some answers are invalid, please review.")
				continue
			}
			return err
		}

		current := r.engine.Current()
		if current == nil || current.Meta().UID == before {
			// End of the chain.
			return nil
		}
		tree = current
		r.Logger.Debug("advanced to next tree", "uid", tree.Meta().UID)
	}
}

// presentTree walks the visible nodes of the tree, asking questions as
// it encounters them.
func (r *Runner) presentTree(ctx context.Context, tree decision.Node) error {
	if name := tree.DisplayName(); name != "" {
		if err := r.Handler.Say(ctx, "== "+name+" =="); err != nil {
			return err
		}
	}
	for _, child := range tree.Meta().Children {
		if err := r.walk(ctx, tree, child, ""); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) walk(ctx context.Context, tree, node decision.Node, matrixID string) error {
	data := r.engine.UserData()
	if data.IsHidden(node, tree, matrixID) {
		return nil
	}

	switch n := node.(type) {
	case *decision.Group:
		text := n.DisplayName()
		if n.Content != "" {
			text += "\n" + n.Content
		}
		if err := r.Handler.Say(ctx, text); err != nil {
			return err
		}
		return r.walkChildren(ctx, tree, n, matrixID)

	case *decision.Question:
		return r.askQuestion(ctx, tree, n, matrixID)

	case *decision.Matrix:
		return r.walkMatrix(ctx, tree, n)

	case *decision.Answer, *decision.Rule:
		return nil

	default:
		return r.walkChildren(ctx, tree, node, matrixID)
	}
}

func (r *Runner) walkChildren(ctx context.Context, tree, node decision.Node, matrixID string) error {
	for _, child := range node.Meta().Children {
		if err := r.walk(ctx, tree, child, matrixID); err != nil {
			return err
		}
	}
	return nil
}

// walkMatrix presents every recorded row, then offers to add more.
func (r *Runner) walkMatrix(ctx context.Context, tree decision.Node, matrix *decision.Matrix) error {
	data := r.engine.UserData()

	for _, rowID := range data.FindMatrixIDs(matrix) {
		if err := r.Handler.Say(ctx, fmt.Sprintf("-- %s --", matrix.DisplayName())); err != nil {
			return err
		}
		if err := r.walkChildren(ctx, tree, matrix, rowID); err != nil {
			return err
		}
	}

	for {
		answer, err := r.ask(ctx, Prompt{
			Question: &decision.Question{
				Base:  decision.Base{UID: matrix.UID},
				Label: fmt.Sprintf("Add %s? (y/n)", matrix.DisplayName()),
				Type:  decision.QuestionText,
			},
		})
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			return nil
		}
		rowID := decision.GenerateUID()
		if err := r.walkChildren(ctx, tree, matrix, rowID); err != nil {
			return err
		}
	}
}

func (r *Runner) askQuestion(ctx context.Context, tree decision.Node, question *decision.Question, matrixID string) error {
	data := r.engine.UserData()

	prompt := Prompt{
		Question: question,
		Current:  data.QuestionAnswers(question.UID, matrixID),
		Messages: data.ValidationMessages(question, matrixID),
	}
	for _, child := range question.Meta().Children {
		if opt, ok := child.(*decision.Answer); ok {
			prompt.Options = append(prompt.Options, Choice{UID: opt.UID, Label: opt.Label, Value: opt.Value})
		}
	}

	answer, err := r.ask(ctx, prompt)
	if err != nil {
		return err
	}
	if answer == "" {
		// Keep the current answer, or fall back to the declared default.
		if len(prompt.Current) > 0 || question.DefaultAnswer == "" {
			return nil
		}
		answer = question.DefaultAnswer
	}

	if question.Multiple {
		parts := strings.Split(answer, ",")
		for i, part := range parts {
			part = strings.TrimSpace(part)
			if uid := matchOption(prompt.Options, part); uid != "" {
				part = uid
			}
			if i == 0 {
				err = r.engine.SetAnswer(question, part, matrixID)
			} else {
				err = r.engine.AddAnswer(question, part, matrixID)
			}
			if err != nil {
				return err
			}
		}
	} else if err := r.engine.SetAnswer(question, answer, matrixID); err != nil {
		return err
	}

	// Show feedback for the freshly recorded answer right away.
	for _, msg := range data.ValidationMessages(question, matrixID) {
		if err := r.Handler.Say(ctx, "! "+msg); err != nil {
			return err
		}
	}
	return nil
}

// ask reads one sanitized answer. "exit" and "quit" end the run.
func (r *Runner) ask(ctx context.Context, prompt Prompt) (string, error) {
	answer, err := r.Handler.Ask(ctx, prompt)
	if err != nil {
		return "", err
	}
	if answer == "exit" || answer == "quit" {
		return "", io.EOF
	}
	clean, err := SanitizeInput(answer)
	if err != nil {
		r.Logger.Warn("input rejected", "err", err, "size", len(answer))
		if sayErr := r.Handler.Say(ctx, "Input rejected: "+err.Error()); sayErr != nil {
			return "", sayErr
		}
		return "", nil
	}
	return clean, nil
}
