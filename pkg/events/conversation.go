package events

import "time"

// ExecutionStatus is the lifecycle state of a conversation's step loop.
// Precedence when multiple conditions hold simultaneously: a terminal
// status always wins, then WAITING_FOR_CONFIRMATION, then PAUSED. An
// advisory pause() call must never overwrite WAITING_FOR_CONFIRMATION.
type ExecutionStatus string

const (
	StatusIdle                    ExecutionStatus = "IDLE"
	StatusRunning                 ExecutionStatus = "RUNNING"
	StatusPaused                  ExecutionStatus = "PAUSED"
	StatusWaitingForConfirmation  ExecutionStatus = "WAITING_FOR_CONFIRMATION"
	StatusFinished                ExecutionStatus = "FINISHED"
	StatusError                   ExecutionStatus = "ERROR"
	StatusStopped                 ExecutionStatus = "STOPPED"
)

// Terminal reports whether the step loop will not advance further from this
// status without an explicit start()/resume() call.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusStopped:
		return true
	default:
		return false
	}
}

// ConfirmationMode governs whether ActionEvents require user approval
// before execution.
type ConfirmationMode string

const (
	ConfirmationNever  ConfirmationMode = "never"
	ConfirmationAlways ConfirmationMode = "always"
	ConfirmationRisky  ConfirmationMode = "risky" // gate only MEDIUM/HIGH security_risk actions
)

// RunStats accumulates per-conversation usage counters surfaced in
// ConversationStateUpdateEvent and conversation metadata.
type RunStats struct {
	NumSteps     int `json:"num_steps"`
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AgentSpec pins the LLM model and sampling parameters for a conversation.
type AgentSpec struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Conversation is the persisted metadata record for one conversation: the
// EventLog holds its content, this struct holds everything else needed to
// resume it (agent spec, confirmation policy, status, stats, webhooks).
type Conversation struct {
	ID                 string           `json:"id"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	Agent              AgentSpec        `json:"agent"`
	ConfirmationPolicy ConfirmationMode `json:"confirmation_policy"`
	Status             ExecutionStatus  `json:"status"`
	Stats              RunStats         `json:"stats"`
	WorkspaceDir        string          `json:"workspace_dir"`
}
