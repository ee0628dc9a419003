package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/decision"
)

// Choice is a selectable option presented with a choice question.
type Choice struct {
	UID   string
	Label string
	Value string
}

// Prompt carries everything a handler needs to ask one question.
type Prompt struct {
	Question *decision.Question
	Options  []Choice
	// Current holds the already recorded answers, shown as the default.
	Current []string
	// Messages holds validation feedback from the previous pass.
	Messages []string
}

// IOHandler is the strategy for interacting with the user. It allows
// switching between plain text, rich TUI and scripted test modes.
type IOHandler interface {
	// Say presents content to the user.
	Say(ctx context.Context, text string) error

	// Ask presents a question and reads one answer. For choice questions
	// the returned value is the uid of the selected option. An empty
	// return keeps the current answer.
	Ask(ctx context.Context, prompt Prompt) (string, error)
}

// ContentRenderer transforms content before output. This allows markdown
// to ANSI rendering without coupling the runner to a TUI library.
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
}

func (h *TextHandler) Say(ctx context.Context, text string) error {
	output := text
	if h.Renderer != nil {
		if rendered, err := h.Renderer(text); err == nil {
			output = rendered
		}
	}
	_, err := fmt.Fprintln(h.Writer, strings.TrimSpace(output))
	return err
}

func (h *TextHandler) Ask(ctx context.Context, prompt Prompt) (string, error) {
	q := prompt.Question

	fmt.Fprintln(h.Writer, q.DisplayName())
	for _, msg := range prompt.Messages {
		fmt.Fprintf(h.Writer, "  ! %s\n", msg)
	}
	for i, opt := range prompt.Options {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		fmt.Fprintf(h.Writer, "  %d) %s\n", i+1, label)
	}
	if len(prompt.Current) > 0 {
		fmt.Fprintf(h.Writer, "  [current: %s]\n", strings.Join(prompt.Current, ", "))
	}

	fmt.Fprint(h.Writer, "> ")
	text, err := h.Reader.ReadString('\n')
	if err != nil && text == "" {
		return "", err
	}
	text = strings.TrimSpace(text)

	// Numeric input selects the option at that position.
	if len(prompt.Options) > 0 {
		if idx, convErr := strconv.Atoi(text); convErr == nil {
			if idx < 1 || idx > len(prompt.Options) {
				return "", fmt.Errorf("choice %d out of range", idx)
			}
			return prompt.Options[idx-1].UID, nil
		}
		if uid := matchOption(prompt.Options, text); uid != "" {
			return uid, nil
		}
	}
	return text, nil
}

// matchOption resolves free text against option uids, values and labels.
func matchOption(options []Choice, text string) string {
	if text == "" {
		return ""
	}
	for _, opt := range options {
		if opt.UID == text || opt.Value == text || strings.EqualFold(opt.Label, text) {
			return opt.UID
		}
	}
	return ""
}
