package llmclient

import (
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus/pkg/events"
)

// renderedMessage is one View event as renderView renders it: a
// role/content pair suitable for a provider's wire format. MessageEvent, ActionEvent, ObservationEvent,
// UserRejectObservation, AgentErrorEvent and CondensationSummaryEvent are
// the only convertible kinds (per Event.LLMConvertible); SystemPromptEvent
// is handled separately as the system prompt.
type renderedMessage struct {
	Role       events.Role
	Text       string
	ToolUseID  string
	ToolName   string
	ToolInput  json.RawMessage
	IsToolResult bool
	IsError    bool
}

func renderView(view []events.Event) ([]renderedMessage, error) {
	out := make([]renderedMessage, 0, len(view))
	for _, e := range view {
		switch v := e.(type) {
		case events.SystemPromptEvent:
			continue // handled as the system prompt, not a message
		case events.MessageEvent:
			text := events.JoinText(v.Content)
			if len(v.ExtendedContent) > 0 {
				text = text + " " + events.JoinText(v.ExtendedContent)
			}
			out = append(out, renderedMessage{Role: v.Role, Text: text})
		case events.ActionEvent:
			a, err := v.ResolvedAction()
			if err != nil {
				return nil, fmt.Errorf("llmclient: resolve action %s: %w", v.EventID(), err)
			}
			raw, err := json.Marshal(a)
			if err != nil {
				return nil, err
			}
			out = append(out, renderedMessage{
				Role:      events.RoleAssistant,
				Text:      events.JoinText(v.Thought),
				ToolUseID: v.ToolCallID,
				ToolName:  v.ToolName,
				ToolInput: raw,
			})
		case events.ObservationEvent:
			o, err := v.ResolvedObservation()
			if err != nil {
				return nil, fmt.Errorf("llmclient: resolve observation %s: %w", v.EventID(), err)
			}
			raw, err := json.Marshal(o)
			if err != nil {
				return nil, err
			}
			out = append(out, renderedMessage{
				Role:         events.RoleTool,
				Text:         string(raw),
				ToolUseID:    v.ToolCallID,
				IsToolResult: true,
				IsError:      o.Error(),
			})
		case events.UserRejectObservation:
			out = append(out, renderedMessage{
				Role:         events.RoleTool,
				Text:         v.RejectionReason,
				ToolUseID:    v.ToolCallID,
				IsToolResult: true,
				IsError:      true,
			})
		case events.AgentErrorEvent:
			out = append(out, renderedMessage{Role: events.RoleUser, Text: "error: " + v.Error})
		case events.CondensationSummaryEvent:
			out = append(out, renderedMessage{Role: events.RoleUser, Text: "conversation summary: " + v.Summary})
		}
	}
	return out, nil
}
