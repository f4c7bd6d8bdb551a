package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/user/foreman/internal/runner/tools"
	"github.com/user/foreman/internal/types"
)

// AnthropicOptions configures the API runner.
type AnthropicOptions struct {
	Model     string
	MaxTokens int64
	MaxRounds int
	// ToolBudget caps each fetched page handed back to the model.
	ToolBudget tools.Budget
}

// turnFunc runs one model turn, calling emit for each finished text block.
type turnFunc func(ctx context.Context, params anthropic.MessageNewParams, emit func(text string) bool) (*anthropic.Message, error)

// AnthropicRunner drives the Messages API directly, executing tool uses
// locally in the task's working directory.
type AnthropicRunner struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	maxRounds int
	turn      turnFunc
	toolsFor  func(dir string) *tools.Registry
}

func NewAnthropic(apiKey string, opts AnthropicOptions) *AnthropicRunner {
	r := &AnthropicRunner{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(opts.Model),
		maxTokens: opts.MaxTokens,
		maxRounds: opts.MaxRounds,
	}
	r.toolsFor = func(dir string) *tools.Registry { return tools.Default(dir, opts.ToolBudget) }
	if r.maxTokens <= 0 {
		r.maxTokens = 8192
	}
	if r.maxRounds <= 0 {
		r.maxRounds = 30
	}
	r.turn = r.streamTurn
	return r
}

func (r *AnthropicRunner) Start(ctx context.Context, req Request) (Stream, error) {
	return newPipe(ctx, func(ctx context.Context, emit func(Chunk) bool) error {
		return r.run(ctx, req, emit)
	}), nil
}

func (r *AnthropicRunner) run(ctx context.Context, req Request, emit func(Chunk) bool) error {
	policy := req.Policy
	if policy == nil {
		policy = AllowAll{}
	}
	registry := r.toolsFor(req.WorkDir)

	params := anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: toolParams(registry),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	for round := 0; round < r.maxRounds; round++ {
		msg, err := r.turn(ctx, params, func(text string) bool {
			return emit(Chunk{Role: "assistant", Content: text})
		})
		if err != nil {
			return fmt.Errorf("%w: messages stream: %w", types.ErrExternalTask, err)
		}
		if ctx.Err() != nil {
			return nil
		}

		var (
			assistant []anthropic.ContentBlockParamUnion
			results   []anthropic.ContentBlockParamUnion
		)
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				assistant = append(assistant, anthropic.NewTextBlock(block.Text))
			case "tool_use":
				assistant = append(assistant, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
				if !emit(Chunk{Role: "tool", Content: toolLine(block.Name, block.Input)}) {
					return nil
				}
				out, isErr := r.useTool(ctx, registry, policy, block.Name, block.Input)
				results = append(results, anthropic.NewToolResultBlock(block.ID, out, isErr))
			}
		}
		if len(results) == 0 {
			return nil
		}
		params.Messages = append(params.Messages,
			anthropic.NewAssistantMessage(assistant...),
			anthropic.NewUserMessage(results...),
		)
	}
	return fmt.Errorf("%w: max tool rounds (%d) exceeded", types.ErrExternalTask, r.maxRounds)
}

func (r *AnthropicRunner) useTool(ctx context.Context, registry *tools.Registry, policy Policy, name string, input json.RawMessage) (string, bool) {
	if !policy.Allow(ctx, name, input) {
		return fmt.Sprintf("permission denied for tool %q", name), true
	}
	tool, ok := registry.Get(name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name), true
	}
	out, err := tool.Execute(ctx, input)
	if err != nil {
		return fmt.Sprintf("error: %v", err), true
	}
	return out, false
}

func (r *AnthropicRunner) streamTurn(ctx context.Context, params anthropic.MessageNewParams, emit func(string) bool) (*anthropic.Message, error) {
	stream := r.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate: %w", err)
		}
		if event.Type != "content_block_stop" || int(event.Index) >= len(message.Content) {
			continue
		}
		block := message.Content[event.Index]
		if block.Type == "text" && block.Text != "" && !emit(block.Text) {
			return &message, nil
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

// toolParams converts registered tools to API tool definitions.
func toolParams(registry *tools.Registry) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, t := range registry.All() {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		_ = json.Unmarshal(t.Parameters(), &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}
