// Package events defines the tagged-union event model that makes up a
// conversation's append-only log: the single source of truth EventService
// owns. Every concrete event type embeds Base and implements Event.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source identifies who produced an event.
type Source string

const (
	SourceUser        Source = "user"
	SourceAgent       Source = "agent"
	SourceEnvironment Source = "environment"
)

// Kind is the string discriminator used to tag serialized events and to
// dispatch parsing. New kinds are added here as the union grows; unknown
// kinds fail closed in Parse with ErrUnknownKind.
type Kind string

const (
	KindSystemPrompt            Kind = "SystemPromptEvent"
	KindMessage                 Kind = "MessageEvent"
	KindAction                  Kind = "ActionEvent"
	KindObservation             Kind = "ObservationEvent"
	KindUserRejectObservation   Kind = "UserRejectObservation"
	KindAgentError              Kind = "AgentErrorEvent"
	KindPause                   Kind = "PauseEvent"
	KindCondensation            Kind = "Condensation"
	KindCondensationRequest     Kind = "CondensationRequest"
	KindCondensationSummary     Kind = "CondensationSummaryEvent"
	KindConversationStateUpdate Kind = "ConversationStateUpdateEvent"

	// KindBashCommand and KindBashOutput back the standalone bash event log
	// (internal/bashapi), not any conversation's log: they never appear in
	// a View and are never LLMConvertible.
	KindBashCommand Kind = "BashCommand"
	KindBashOutput  Kind = "BashOutput"
)

// ID is an opaque, unique-per-conversation event identifier.
type ID string

// Event is implemented by every member of the tagged union. Concrete types
// are defined in sibling files (variants.go, bash.go).
type Event interface {
	EventID() ID
	EventKind() Kind
	EventTimestamp() time.Time
	EventSource() Source

	// LLMConvertible reports whether this event kind may appear in a View
	// sent to the LLM. SystemPromptEvent, MessageEvent, ActionEvent,
	// ObservationEvent, UserRejectObservation, AgentErrorEvent and
	// CondensationSummaryEvent are convertible; Condensation,
	// CondensationRequest, PauseEvent and ConversationStateUpdateEvent are
	// not (they carry log bookkeeping, not conversational content).
	LLMConvertible() bool
}

// Base carries the fields every Event variant shares, per spec: id,
// timestamp, source. Embed it first in every concrete event struct so the
// JSON field order matches across variants.
type Base struct {
	ID        ID        `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
}

func (b Base) EventID() ID              { return b.ID }
func (b Base) EventTimestamp() time.Time { return b.Timestamp }
func (b Base) EventSource() Source      { return b.Source }

// NewBase builds a Base with the given source and the current UTC instant.
// The ID is left blank; EventLog.Append assigns it atomically at append
// time so callers never race on ID generation.
func NewBase(source Source) Base {
	return Base{Timestamp: time.Now().UTC(), Source: source}
}

// kindEnvelope is used only to sniff the "kind" discriminator before
// dispatching to a concrete type's Unmarshal.
type kindEnvelope struct {
	Kind Kind `json:"kind"`
}

// ErrUnknownKind is returned by Parse when the discriminator does not match
// any registered event kind.
type ErrUnknownKind struct {
	Kind Kind
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("events: unknown event kind %q", e.Kind)
}

// marshalWithKind wraps a concrete event's JSON with its Kind discriminator
// so Parse can dispatch on it. Concrete MarshalJSON methods call this.
func marshalWithKind(kind Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	kindRaw, err := json.Marshal(kind)
	if err != nil {
		return nil, err
	}
	m["kind"] = kindRaw
	return json.Marshal(m)
}
