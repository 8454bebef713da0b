package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/nexus/pkg/events"
)

// AnthropicConfig configures AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// AnthropicProvider implements Provider against Claude via the official SDK,
// a single non-streaming request per Step call (the step loop is the
// thing that owns retries and looping, not the provider).
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// NewAnthropicProvider builds an AnthropicProvider from cfg.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmclient: anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		maxTokens:    maxTokens,
	}, nil
}

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) Step(ctx context.Context, model string, systemPrompt string, tools []events.ToolSchema, view []events.Event) (StepResult, error) {
	rendered, err := renderView(view)
	if err != nil {
		return StepResult{}, err
	}

	messages, err := p.toAnthropicMessages(rendered)
	if err != nil {
		return StepResult{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(model)),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		toolParams, err := p.toAnthropicTools(tools)
		if err != nil {
			return StepResult{}, err
		}
		params.Tools = toolParams
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return StepResult{}, p.wrapError(err)
	}

	return p.toStepResult(msg)
}

func (p *AnthropicProvider) Summarize(ctx context.Context, prompt string, forgotten []events.Event) (string, error) {
	rendered, err := renderView(forgotten)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, m := range rendered {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		MaxTokens: int64(p.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: prompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.wrapError(err)
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

func (p *AnthropicProvider) toAnthropicMessages(rendered []renderedMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range rendered {
		switch {
		case m.IsToolResult:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolUseID, m.Text, m.IsError),
			))
		case m.ToolUseID != "" && len(m.ToolInput) > 0:
			var input map[string]any
			if err := json.Unmarshal(m.ToolInput, &input); err != nil {
				return nil, fmt.Errorf("llmclient: tool input for %s: %w", m.ToolName, err)
			}
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Text))
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(m.ToolUseID, input, m.ToolName))
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case m.Role == events.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return out, nil
}

func (p *AnthropicProvider) toAnthropicTools(tools []events.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("llmclient: tool schema for %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func (p *AnthropicProvider) toStepResult(msg *anthropic.Message) (StepResult, error) {
	result := StepResult{ResponseID: msg.ID}
	if msg.Usage.InputTokens > 0 {
		result.PromptTokens = int(msg.Usage.InputTokens)
	}
	if msg.Usage.OutputTokens > 0 {
		result.OutputTokens = int(msg.Usage.OutputTokens)
	}

	var thought []events.ContentBlock
	var content []events.ContentBlock

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			content = append(content, events.TextBlock(block.Text))
		case "thinking":
			thought = append(thought, events.TextBlock(block.Thinking))
		case "tool_use":
			toolUse := block.AsToolUse()
			action, err := toolUseToAction(toolUse.Name, toolUse.Input)
			if err != nil {
				return StepResult{}, err
			}
			result.ToolCalls = append(result.ToolCalls, ToolCallResult{
				ToolName:   toolUse.Name,
				ToolCallID: toolUse.ID,
				Action:     action,
			})
		}
	}

	result.Thought = thought
	if len(result.ToolCalls) == 0 {
		result.Content = content
	}
	return result, nil
}

// toolUseToAction maps a tool_use block back into the concrete Action type
// for the builtin tools; unknown tool names fall back to GenericAction so
// an external/MCP tool still round-trips.
func toolUseToAction(toolName string, input json.RawMessage) (events.Action, error) {
	switch toolName {
	case "execute_bash":
		var a events.BashAction
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, err
		}
		return a, nil
	case "finish":
		var a events.FinishAction
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, err
		}
		return a, nil
	case "read_file":
		var a events.FileReadAction
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, err
		}
		return a, nil
	case "write_file":
		var a events.FileWriteAction
		if err := json.Unmarshal(input, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return events.GenericAction{ToolName: toolName, Raw: input}, nil
	}
}

// providerError wraps an Anthropic SDK error with retry classification,
// modeled on the teacher's provider-failover error taxonomy.
type providerError struct {
	statusCode int
	cause      error
}

func (e *providerError) Error() string {
	return fmt.Sprintf("llmclient: anthropic request failed (status %d): %v", e.statusCode, e.cause)
}

func (e *providerError) Unwrap() error { return e.cause }

func (e *providerError) Retryable() bool {
	switch e.statusCode {
	case 0:
		// No HTTP status: the request failed in transport (connection
		// failure or timeout), unless the caller cancelled it.
		return !errors.Is(e.cause, context.Canceled)
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &providerError{statusCode: apiErr.StatusCode, cause: err}
	}
	return &providerError{statusCode: 0, cause: err}
}
