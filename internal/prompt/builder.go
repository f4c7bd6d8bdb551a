// Package prompt assembles the text handed to a task runner: an optional
// preset followed by the session transcript, trimmed oldest-first to a
// token budget.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/foreman/internal/types"
)

// Builder assembles token-budgeted prompts.
type Builder struct {
	count  func(string) int
	budget int
	system *template.Template
	now    func() time.Time
}

// Counter returns a token counter using the tokenizer for model.
func Counter(model string) (func(string) int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for models tiktoken does not know.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

// New creates a builder counting tokens with the tokenizer for model.
// budget is the number of tokens the prompt text may use.
func New(model string, budget int) (*Builder, error) {
	count, err := Counter(model)
	if err != nil {
		return nil, err
	}
	return NewWithCounter(count, budget), nil
}

// NewWithCounter creates a builder with a custom token counter.
func NewWithCounter(count func(string) int, budget int) *Builder {
	return &Builder{
		count:  count,
		budget: budget,
		system: template.Must(template.New("system").Parse(DefaultSystem)),
		now:    time.Now,
	}
}

// Input is what a prompt is built from.
type Input struct {
	Session    *types.Session
	Repository string
	// Preset is the text of the session's preset, if any.
	Preset string
	// Resuming means the runner already holds the earlier conversation, so
	// only messages after the last runner reply are sent.
	Resuming bool
}

// Prompt is the assembled runner input.
type Prompt struct {
	System string
	Text   string
	// Dropped counts transcript messages trimmed to fit the budget.
	Dropped int
}

type systemData struct {
	Time       string
	SessionID  types.SessionID
	Project    types.ProjectID
	Title      string
	Repository string
}

// Build assembles the prompt. The newest message is always kept, even when
// it alone exceeds the budget.
func (b *Builder) Build(in Input) (Prompt, error) {
	var sys bytes.Buffer
	err := b.system.Execute(&sys, systemData{
		Time:       b.now().Format(time.RFC3339),
		SessionID:  in.Session.ID,
		Project:    in.Session.Project,
		Title:      in.Session.Title,
		Repository: in.Repository,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("render system prompt: %w", err)
	}

	msgs := in.Session.Messages
	if in.Resuming {
		msgs = sinceLastReply(msgs)
	}

	remaining := b.budget - b.count(in.Preset)
	var (
		kept []string
		used int
	)
	// Walk newest to oldest so trimming drops the oldest messages.
	for i := len(msgs) - 1; i >= 0; i-- {
		block := renderMessage(msgs[i])
		n := b.count(block)
		if len(kept) > 0 && used+n > remaining {
			break
		}
		kept = append(kept, block)
		used += n
	}
	dropped := len(msgs) - len(kept)

	var text strings.Builder
	if in.Preset != "" {
		text.WriteString(strings.TrimSpace(in.Preset))
		text.WriteString("\n\n")
	}
	if dropped > 0 {
		fmt.Fprintf(&text, "[%d earlier messages omitted]\n\n", dropped)
	}
	for i := len(kept) - 1; i >= 0; i-- {
		text.WriteString(kept[i])
	}

	return Prompt{
		System:  sys.String(),
		Text:    strings.TrimSpace(text.String()),
		Dropped: dropped,
	}, nil
}

func renderMessage(m types.Message) string {
	return fmt.Sprintf("## %s\n%s\n\n", m.Role, strings.TrimSpace(m.Content))
}

// sinceLastReply returns the messages after the last non-user message.
func sinceLastReply(msgs []types.Message) []types.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != "user" {
			return msgs[i+1:]
		}
	}
	return msgs
}
