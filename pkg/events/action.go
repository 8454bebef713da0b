package events

import (
	"encoding/json"
	"fmt"
)

// SecurityRisk is the LLM's self-reported risk assessment of an action.
type SecurityRisk string

const (
	SecurityRiskUnknown SecurityRisk = "UNKNOWN"
	SecurityRiskLow     SecurityRisk = "LOW"
	SecurityRiskMedium  SecurityRisk = "MEDIUM"
	SecurityRiskHigh    SecurityRisk = "HIGH"
)

// ActionKind discriminates the concrete payload of an Action.
type ActionKind string

const (
	ActionKindBash      ActionKind = "bash"
	ActionKindFinish    ActionKind = "finish"
	ActionKindFileRead  ActionKind = "file_read"
	ActionKindFileWrite ActionKind = "file_write"
	ActionKindGeneric   ActionKind = "generic"
)

// Action is the tagged-union tool argument carried by an ActionEvent.
type Action interface {
	ActionKind() ActionKind
}

// BashAction requests execution of a shell command in the conversation's
// workspace.
type BashAction struct {
	Command        string `json:"command"`
	Cwd             string `json:"cwd,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
}

func (BashAction) ActionKind() ActionKind { return ActionKindBash }

// FinishAction is the terminal tool: the agent signals it is done.
type FinishAction struct {
	Message string `json:"message,omitempty"`
}

func (FinishAction) ActionKind() ActionKind { return ActionKindFinish }

// FileReadAction requests the contents of a workspace-relative file.
type FileReadAction struct {
	Path string `json:"path"`
}

func (FileReadAction) ActionKind() ActionKind { return ActionKindFileRead }

// FileWriteAction requests writing content to a workspace-relative file.
type FileWriteAction struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (FileWriteAction) ActionKind() ActionKind { return ActionKindFileWrite }

// GenericAction is the fallback reconstruction for tool arguments whose
// concrete shape this module does not know (external/MCP tools). It keeps
// the tool's declared name and the raw JSON arguments so a View can still
// be rendered and round-tripped even though the CORE cannot interpret them.
type GenericAction struct {
	ToolName string          `json:"tool_name"`
	Raw      json.RawMessage `json:"raw"`
}

func (GenericAction) ActionKind() ActionKind { return ActionKindGeneric }

type actionEnvelope struct {
	ActionKind ActionKind      `json:"action_kind"`
	Payload    json.RawMessage `json:"payload"`
}

// MarshalAction serializes an Action together with its discriminator.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return json.Marshal(actionEnvelope{})
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionEnvelope{ActionKind: a.ActionKind(), Payload: payload})
}

// ParseAction deserializes an Action previously produced by MarshalAction,
// dispatching on its discriminator. Unknown kinds are never rejected here:
// they fall back to GenericAction, preserving round-trip ability for tools
// this module does not natively model (per the fallback-reconstruction
// allowance for tagged unions).
func ParseAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: parse action envelope: %w", err)
	}
	switch env.ActionKind {
	case ActionKindBash:
		var a BashAction
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionKindFinish:
		var a FinishAction
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionKindFileRead:
		var a FileReadAction
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionKindFileWrite:
		var a FileWriteAction
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionKindGeneric:
		var a GenericAction
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return GenericAction{Raw: env.Payload}, nil
		}
		return a, nil
	default:
		return GenericAction{Raw: env.Payload}, nil
	}
}
