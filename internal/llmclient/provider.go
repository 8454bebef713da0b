// Package llmclient adapts the View event sequence to and from an LLM
// provider's message schema. It is the one external collaborator the step
// loop is allowed to call directly; retries live one layer up in
// internal/step, per the design note that retry is a decorator over a
// single-attempt call rather than something the provider does itself.
package llmclient

import (
	"context"

	"github.com/haasonsaas/nexus/pkg/events"
)

// ToolCallResult is one tool call extracted from a single-attempt Step call.
type ToolCallResult struct {
	ToolName   string
	ToolCallID string
	Action     events.Action
	SecurityRisk events.SecurityRisk
}

// StepResult is a single-attempt LLM response translated back into the
// event model's vocabulary.
type StepResult struct {
	ResponseID       string
	Thought          []events.ContentBlock
	ReasoningContent string
	// Content is the assistant's final text, set only when ToolCalls is
	// empty (a finished turn with no further tool use).
	Content      []events.ContentBlock
	ToolCalls    []ToolCallResult
	PromptTokens int
	OutputTokens int
}

// Provider is the LLM client seam. A single call is one attempt; retry
// policy lives in internal/step, not here.
type Provider interface {
	// Step sends the view as conversation history, with the given system
	// prompt and advertised tools, and returns one response.
	Step(ctx context.Context, model string, systemPrompt string, tools []events.ToolSchema, view []events.Event) (StepResult, error)

	// Summarize asks the model to condense forgotten into prose, for the
	// condenser's use. It is a plain text completion, no tools.
	Summarize(ctx context.Context, prompt string, forgotten []events.Event) (string, error)
}

// RetryableError is implemented by provider errors that the step loop's
// retry decorator should retry (rate limits, 5xx, timeouts, connection
// resets). Errors that don't implement it are treated as non-retryable.
type RetryableError interface {
	Retryable() bool
}

// IsRetryable reports whether err should trigger another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(RetryableError); ok {
		return re.Retryable()
	}
	return false
}
