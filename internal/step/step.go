// Package step implements the agent step algorithm: build a View, consult
// the condenser, call the LLM once (through a retrying decorator), gate on
// confirmation policy, and execute tool calls. It has no goroutine or lock
// of its own — internal/eventservice drives it, releasing its own lock
// around the calls this package makes so pause()/send_message() remain
// responsive.
package step

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/nexus/internal/condense"
	"github.com/haasonsaas/nexus/internal/confirm"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/retryx"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/internal/view"
	"github.com/haasonsaas/nexus/pkg/events"
)

// Appender is the subset of EventLog.Append the step algorithm needs. It is
// an interface so tests can substitute an in-memory recorder.
type Appender interface {
	Append(event events.Event) (uint64, events.Event, error)
}

// Deps bundles everything one Run call needs, supplied fresh by
// EventService on every invocation.
type Deps struct {
	Log                Appender
	Provider           llmclient.Provider
	Executor           toolexec.Executor
	Condenser          condense.Condenser
	RetryPolicy        retryx.Policy
	MaxAttempts        int
	Workspace          string
	Model              string
	SystemPrompt       string
	Tools              []events.ToolSchema
	ConfirmationPolicy events.ConfirmationMode
	Gate               *confirm.Gate
	// Schemas, when set, validates a tool call's arguments against its
	// registered JSON Schema before execution. A validation failure is
	// treated as a ToolExecutorError (is_error observation), not fatal.
	Schemas *toolexec.Registry
}

// Outcome reports what a single Run call decided, so EventService knows
// what status transition to apply and whether to loop again.
type Outcome struct {
	Status               events.ExecutionStatus
	PendingConfirmation  []events.ActionEvent
	PromptTokens         int
	OutputTokens         int
}

// Run executes exactly one step against the given ordered event history,
// appending whatever events the step produces through deps.Log.
func Run(ctx context.Context, deps Deps, history []events.Event) (Outcome, error) {
	v := view.Build(history)

	if v.UnhandledCondensationRequest && deps.Condenser != nil {
		result, err := deps.Condenser.Condense(ctx, v)
		if err != nil {
			return Outcome{}, fmt.Errorf("step: condense: %w", err)
		}
		if !result.Unchanged && result.Condensation != nil {
			if _, _, err := deps.Log.Append(*result.Condensation); err != nil {
				return Outcome{}, fmt.Errorf("step: append condensation: %w", err)
			}
			return Outcome{Status: events.StatusRunning}, nil
		}
	}

	llmResult, err := callWithRetry(ctx, deps, v.Events)
	if err != nil {
		if _, _, appendErr := deps.Log.Append(events.AgentErrorEvent{
			Base:  events.NewBase(events.SourceEnvironment),
			Error: err.Error(),
		}); appendErr != nil {
			return Outcome{}, fmt.Errorf("step: append agent error: %w", appendErr)
		}
		return Outcome{Status: events.StatusError}, nil
	}

	if len(llmResult.ToolCalls) == 0 {
		if _, _, err := deps.Log.Append(events.MessageEvent{
			Base:    events.NewBase(events.SourceAgent),
			Role:    events.RoleAssistant,
			Content: llmResult.Content,
		}); err != nil {
			return Outcome{}, fmt.Errorf("step: append message: %w", err)
		}
		return Outcome{Status: events.StatusFinished, PromptTokens: llmResult.PromptTokens, OutputTokens: llmResult.OutputTokens}, nil
	}

	batch := make([]events.ActionEvent, 0, len(llmResult.ToolCalls))
	for _, tc := range llmResult.ToolCalls {
		_, stamped, err := deps.Log.Append(events.ActionEvent{
			Base:             events.NewBase(events.SourceAgent),
			Thought:          llmResult.Thought,
			ReasoningContent: llmResult.ReasoningContent,
			Action:           tc.Action,
			ToolName:         tc.ToolName,
			ToolCallID:       tc.ToolCallID,
			LLMResponseID:    llmResult.ResponseID,
			SecurityRisk:     tc.SecurityRisk,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("step: append action: %w", err)
		}
		batch = append(batch, stamped.(events.ActionEvent))
	}

	if confirm.Requires(deps.ConfirmationPolicy, batch) {
		return Outcome{
			Status:              events.StatusWaitingForConfirmation,
			PendingConfirmation: batch,
			PromptTokens:        llmResult.PromptTokens,
			OutputTokens:        llmResult.OutputTokens,
		}, nil
	}

	if err := ExecuteBatch(ctx, deps, batch); err != nil {
		return Outcome{}, err
	}

	status := events.StatusRunning
	for _, a := range batch {
		if a.ToolName == "finish" {
			status = events.StatusFinished
			break
		}
	}

	return Outcome{Status: status, PromptTokens: llmResult.PromptTokens, OutputTokens: llmResult.OutputTokens}, nil
}

// ExecuteBatch runs the tool executor for every ActionEvent in batch, in
// order, appending the resulting Observation/rejection/error events. It is
// exported so respond_to_confirmation(accept=true) can resume execution of
// a previously gated batch without re-deriving it from the View.
func ExecuteBatch(ctx context.Context, deps Deps, batch []events.ActionEvent) error {
	for _, action := range batch {
		if reason, blocked := deps.Gate.ActionBlocked(action.EventID()); blocked {
			if _, _, err := deps.Log.Append(events.UserRejectObservation{
				Base:            events.NewBase(events.SourceEnvironment),
				RejectionReason: reason,
				ActionID:        action.EventID(),
				ToolName:        action.ToolName,
				ToolCallID:      action.ToolCallID,
			}); err != nil {
				return fmt.Errorf("step: append rejection: %w", err)
			}
			deps.Gate.ClearAction(action.EventID())
			continue
		}

		resolved, err := action.ResolvedAction()
		if err != nil {
			if appendErr := appendToolError(deps, action, err); appendErr != nil {
				return appendErr
			}
			continue
		}

		if deps.Schemas != nil {
			args, err := json.Marshal(resolved)
			if err == nil {
				err = deps.Schemas.Validate(action.ToolName, args)
			}
			if err != nil {
				if appendErr := appendToolError(deps, action, err); appendErr != nil {
					return appendErr
				}
				continue
			}
		}

		obs, execErr := deps.Executor.Execute(ctx, deps.Workspace, resolved)
		if execErr != nil {
			if appendErr := appendToolError(deps, action, execErr); appendErr != nil {
				return appendErr
			}
			continue
		}

		if _, _, err := deps.Log.Append(events.ObservationEvent{
			Base:       events.NewBase(events.SourceEnvironment),
			Observation: obs,
			ActionID:   action.EventID(),
			ToolName:   action.ToolName,
			ToolCallID: action.ToolCallID,
		}); err != nil {
			return fmt.Errorf("step: append observation: %w", err)
		}
	}
	return nil
}

// appendToolError records an is_error ObservationEvent plus a scaffold-level
// AgentErrorEvent for an executor-level failure (as opposed to a tool that
// ran and merely reported failure, which is just IsError on its
// Observation).
func appendToolError(deps Deps, action events.ActionEvent, cause error) error {
	if _, _, err := deps.Log.Append(events.ObservationEvent{
		Base: events.NewBase(events.SourceEnvironment),
		Observation: events.GenericObservation{
			ToolName: action.ToolName,
			IsError:  true,
			Raw:      []byte(fmt.Sprintf("%q", cause.Error())),
		},
		ActionID:   action.EventID(),
		ToolName:   action.ToolName,
		ToolCallID: action.ToolCallID,
	}); err != nil {
		return fmt.Errorf("step: append error observation: %w", err)
	}
	_, _, err := deps.Log.Append(events.AgentErrorEvent{
		Base:       events.NewBase(events.SourceEnvironment),
		Error:      cause.Error(),
		ToolCallID: action.ToolCallID,
		ToolName:   action.ToolName,
	})
	if err != nil {
		return fmt.Errorf("step: append agent error: %w", err)
	}
	return nil
}

// callWithRetry performs the single LLM call for this step, retrying only
// on errors the provider marks Retryable, with exponential backoff and
// jitter per deps.RetryPolicy. A non-retryable error returns immediately
// without consuming the rest of the attempt budget.
func callWithRetry(ctx context.Context, deps Deps, view []events.Event) (llmclient.StepResult, error) {
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = retryx.MaxAttempts
	}
	policy := deps.RetryPolicy
	if policy == (retryx.Policy{}) {
		policy = retryx.DefaultPolicy()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return llmclient.StepResult{}, err
		}

		result, err := deps.Provider.Step(ctx, deps.Model, deps.SystemPrompt, deps.Tools, view)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !llmclient.IsRetryable(err) {
			return llmclient.StepResult{}, err
		}
		if attempt < maxAttempts {
			if sleepErr := sleepCtx(ctx, retryx.ComputeBackoff(policy, attempt)); sleepErr != nil {
				return llmclient.StepResult{}, sleepErr
			}
		}
	}
	return llmclient.StepResult{}, fmt.Errorf("step: %w after %d attempts: %v", retryx.ErrExhausted, maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
