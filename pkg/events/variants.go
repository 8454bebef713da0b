package events

import "encoding/json"

// Role identifies the author of a MessageEvent for the LLM message schema.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolSchema describes one tool the agent may call, advertised to the LLM
// alongside the system prompt.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SystemPromptEvent is emitted exactly once, as the first event, at
// conversation init.
type SystemPromptEvent struct {
	Base
	SystemPrompt string       `json:"system_prompt"`
	Tools        []ToolSchema `json:"tools,omitempty"`
}

func (SystemPromptEvent) EventKind() Kind     { return KindSystemPrompt }
func (SystemPromptEvent) LLMConvertible() bool { return true }

func (e SystemPromptEvent) MarshalJSON() ([]byte, error) {
	type alias SystemPromptEvent
	return marshalWithKind(KindSystemPrompt, alias(e))
}

// MessageEvent carries a user/assistant/system/tool chat message.
type MessageEvent struct {
	Base
	Role                Role           `json:"role"`
	Content             []ContentBlock `json:"content"`
	ActivatedMicroagents []string      `json:"activated_microagents,omitempty"`
	ExtendedContent     []ContentBlock `json:"extended_content,omitempty"`
	Sender              string        `json:"sender,omitempty"`
}

func (MessageEvent) EventKind() Kind     { return KindMessage }
func (MessageEvent) LLMConvertible() bool { return true }

func (e MessageEvent) MarshalJSON() ([]byte, error) {
	type alias MessageEvent
	return marshalWithKind(KindMessage, alias(e))
}

// ActionEvent records one tool call produced by the LLM. ActionEvents
// sharing LLMResponseID form a batch that must be included or excluded from
// a View atomically.
type ActionEvent struct {
	Base
	Thought          []ContentBlock `json:"thought,omitempty"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	Action           Action         `json:"-"`
	ActionJSON       json.RawMessage `json:"action"`
	ToolName         string         `json:"tool_name"`
	ToolCallID       string         `json:"tool_call_id"`
	LLMResponseID    string         `json:"llm_response_id"`
	SecurityRisk     SecurityRisk   `json:"security_risk,omitempty"`
}

func (ActionEvent) EventKind() Kind     { return KindAction }
func (ActionEvent) LLMConvertible() bool { return true }

func (e ActionEvent) MarshalJSON() ([]byte, error) {
	actionJSON := e.ActionJSON
	if e.Action != nil {
		raw, err := MarshalAction(e.Action)
		if err != nil {
			return nil, err
		}
		actionJSON = raw
	}
	type alias struct {
		Base
		Thought          []ContentBlock  `json:"thought,omitempty"`
		ReasoningContent string          `json:"reasoning_content,omitempty"`
		ActionJSON       json.RawMessage `json:"action"`
		ToolName         string          `json:"tool_name"`
		ToolCallID       string          `json:"tool_call_id"`
		LLMResponseID    string          `json:"llm_response_id"`
		SecurityRisk     SecurityRisk    `json:"security_risk,omitempty"`
	}
	return marshalWithKind(KindAction, alias{
		Base:             e.Base,
		Thought:          e.Thought,
		ReasoningContent: e.ReasoningContent,
		ActionJSON:       actionJSON,
		ToolName:         e.ToolName,
		ToolCallID:       e.ToolCallID,
		LLMResponseID:    e.LLMResponseID,
		SecurityRisk:     e.SecurityRisk,
	})
}

// ResolvedAction lazily parses ActionJSON into Action on first access,
// caching the result. Call this instead of reading Action directly after
// loading an ActionEvent from storage.
func (e *ActionEvent) ResolvedAction() (Action, error) {
	if e.Action != nil {
		return e.Action, nil
	}
	if len(e.ActionJSON) == 0 {
		return nil, nil
	}
	a, err := ParseAction(e.ActionJSON)
	if err != nil {
		return nil, err
	}
	e.Action = a
	return a, nil
}

// ObservationEvent is the result of executing the ActionEvent identified by
// ActionID.
type ObservationEvent struct {
	Base
	Observation     Observation     `json:"-"`
	ObservationJSON json.RawMessage `json:"observation"`
	ActionID        ID              `json:"action_id"`
	ToolName        string          `json:"tool_name"`
	ToolCallID      string          `json:"tool_call_id"`
}

func (ObservationEvent) EventKind() Kind     { return KindObservation }
func (ObservationEvent) LLMConvertible() bool { return true }

func (e ObservationEvent) MarshalJSON() ([]byte, error) {
	obsJSON := e.ObservationJSON
	if e.Observation != nil {
		raw, err := MarshalObservation(e.Observation)
		if err != nil {
			return nil, err
		}
		obsJSON = raw
	}
	type alias struct {
		Base
		ObservationJSON json.RawMessage `json:"observation"`
		ActionID        ID              `json:"action_id"`
		ToolName        string          `json:"tool_name"`
		ToolCallID      string          `json:"tool_call_id"`
	}
	return marshalWithKind(KindObservation, alias{
		Base:            e.Base,
		ObservationJSON: obsJSON,
		ActionID:        e.ActionID,
		ToolName:        e.ToolName,
		ToolCallID:      e.ToolCallID,
	})
}

// ResolvedObservation lazily parses ObservationJSON, caching the result.
func (e *ObservationEvent) ResolvedObservation() (Observation, error) {
	if e.Observation != nil {
		return e.Observation, nil
	}
	if len(e.ObservationJSON) == 0 {
		return nil, nil
	}
	o, err := ParseObservation(e.ObservationJSON)
	if err != nil {
		return nil, err
	}
	e.Observation = o
	return o, nil
}

// UserRejectObservation is produced when the user declines a pending action
// in confirmation mode. Shape matches ObservationEvent plus a reason.
type UserRejectObservation struct {
	Base
	RejectionReason string `json:"rejection_reason"`
	ActionID        ID     `json:"action_id"`
	ToolName        string `json:"tool_name"`
	ToolCallID      string `json:"tool_call_id"`
}

func (UserRejectObservation) EventKind() Kind     { return KindUserRejectObservation }
func (UserRejectObservation) LLMConvertible() bool { return true }

func (e UserRejectObservation) MarshalJSON() ([]byte, error) {
	type alias UserRejectObservation
	return marshalWithKind(KindUserRejectObservation, alias(e))
}

// AgentErrorEvent represents a scaffold-level failure distinct from LLM
// outputs (retry exhaustion, tool executor crash, persistence failure).
type AgentErrorEvent struct {
	Base
	Error      string `json:"error"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

func (AgentErrorEvent) EventKind() Kind     { return KindAgentError }
func (AgentErrorEvent) LLMConvertible() bool { return true }

func (e AgentErrorEvent) MarshalJSON() ([]byte, error) {
	type alias AgentErrorEvent
	return marshalWithKind(KindAgentError, alias(e))
}

// PauseEvent is the log record of a user pause. EventService.Pause changes
// the conversation status only and does not append one.
type PauseEvent struct {
	Base
}

func (PauseEvent) EventKind() Kind     { return KindPause }
func (PauseEvent) LLMConvertible() bool { return false }

func (e PauseEvent) MarshalJSON() ([]byte, error) {
	type alias PauseEvent
	return marshalWithKind(KindPause, alias(e))
}

// Condensation marks a prefix of the log as forgotten and optionally
// substitutes a summary at a given offset into the kept sequence.
type Condensation struct {
	Base
	ForgottenEventIDs []ID   `json:"forgotten_event_ids"`
	Summary           string `json:"summary,omitempty"`
	SummaryOffset     *int   `json:"summary_offset,omitempty"`
}

func (Condensation) EventKind() Kind     { return KindCondensation }
func (Condensation) LLMConvertible() bool { return false }

func (e Condensation) MarshalJSON() ([]byte, error) {
	type alias Condensation
	return marshalWithKind(KindCondensation, alias(e))
}

// CondensationRequest marks a request for condensation to be handled at the
// next step.
type CondensationRequest struct {
	Base
}

func (CondensationRequest) EventKind() Kind     { return KindCondensationRequest }
func (CondensationRequest) LLMConvertible() bool { return false }

func (e CondensationRequest) MarshalJSON() ([]byte, error) {
	type alias CondensationRequest
	return marshalWithKind(KindCondensationRequest, alias(e))
}

// CondensationSummaryEvent is synthesized by the View builder, never
// persisted to the EventLog: it stands in for the forgotten prefix when a
// Condensation carries a summary and offset.
type CondensationSummaryEvent struct {
	Base
	Summary string `json:"summary"`
}

func (CondensationSummaryEvent) EventKind() Kind     { return KindCondensationSummary }
func (CondensationSummaryEvent) LLMConvertible() bool { return true }

func (e CondensationSummaryEvent) MarshalJSON() ([]byte, error) {
	type alias CondensationSummaryEvent
	return marshalWithKind(KindCondensationSummary, alias(e))
}

// ConversationStateUpdateEvent is synthesized and broadcast to subscribers
// whenever status, stats, or confirmation policy changes; it is never
// appended to the EventLog.
type ConversationStateUpdateEvent struct {
	Base
	Status             ExecutionStatus  `json:"status"`
	ConfirmationPolicy ConfirmationMode `json:"confirmation_policy"`
	Stats              *RunStats        `json:"stats,omitempty"`
}

func (ConversationStateUpdateEvent) EventKind() Kind     { return KindConversationStateUpdate }
func (ConversationStateUpdateEvent) LLMConvertible() bool { return false }

func (e ConversationStateUpdateEvent) MarshalJSON() ([]byte, error) {
	type alias ConversationStateUpdateEvent
	return marshalWithKind(KindConversationStateUpdate, alias(e))
}
