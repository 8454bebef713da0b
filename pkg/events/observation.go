package events

import (
	"encoding/json"
	"fmt"
)

// ObservationKind discriminates the concrete payload of an Observation.
type ObservationKind string

const (
	ObservationKindBash      ObservationKind = "bash"
	ObservationKindFinish    ObservationKind = "finish"
	ObservationKindFileRead  ObservationKind = "file_read"
	ObservationKindFileWrite ObservationKind = "file_write"
	ObservationKindGeneric   ObservationKind = "generic"
)

// Observation is the tagged-union tool result carried by an ObservationEvent.
type Observation interface {
	ObservationKind() ObservationKind
	Error() bool
}

// BashObservation is the result of a BashAction.
type BashObservation struct {
	Output          string `json:"output"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	TimeoutOccurred bool   `json:"timeout_occurred,omitempty"`
	IsError         bool   `json:"is_error,omitempty"`
}

func (BashObservation) ObservationKind() ObservationKind { return ObservationKindBash }
func (o BashObservation) Error() bool                    { return o.IsError }

// FinishObservation acknowledges a FinishAction.
type FinishObservation struct {
	Message string `json:"message,omitempty"`
}

func (FinishObservation) ObservationKind() ObservationKind { return ObservationKindFinish }
func (FinishObservation) Error() bool                      { return false }

// FileReadObservation is the result of a FileReadAction.
type FileReadObservation struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

func (FileReadObservation) ObservationKind() ObservationKind { return ObservationKindFileRead }
func (o FileReadObservation) Error() bool                    { return o.IsError }

// FileWriteObservation is the result of a FileWriteAction.
type FileWriteObservation struct {
	BytesWritten int  `json:"bytes_written"`
	IsError      bool `json:"is_error,omitempty"`
}

func (FileWriteObservation) ObservationKind() ObservationKind { return ObservationKindFileWrite }
func (o FileWriteObservation) Error() bool                    { return o.IsError }

// GenericObservation is the fallback reconstruction for tool results whose
// concrete shape this module does not know.
type GenericObservation struct {
	ToolName string          `json:"tool_name"`
	Raw      json.RawMessage `json:"raw"`
	IsError  bool            `json:"is_error,omitempty"`
}

func (GenericObservation) ObservationKind() ObservationKind { return ObservationKindGeneric }
func (o GenericObservation) Error() bool                    { return o.IsError }

type observationEnvelope struct {
	ObservationKind ObservationKind `json:"observation_kind"`
	Payload         json.RawMessage `json:"payload"`
}

// MarshalObservation serializes an Observation with its discriminator.
func MarshalObservation(o Observation) ([]byte, error) {
	if o == nil {
		return json.Marshal(observationEnvelope{})
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(observationEnvelope{ObservationKind: o.ObservationKind(), Payload: payload})
}

// ParseObservation deserializes an Observation, dispatching on its
// discriminator and falling back to GenericObservation for unknown kinds.
func ParseObservation(data []byte) (Observation, error) {
	var env observationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: parse observation envelope: %w", err)
	}
	switch env.ObservationKind {
	case ObservationKindBash:
		var o BashObservation
		if err := json.Unmarshal(env.Payload, &o); err != nil {
			return nil, err
		}
		return o, nil
	case ObservationKindFinish:
		var o FinishObservation
		if err := json.Unmarshal(env.Payload, &o); err != nil {
			return nil, err
		}
		return o, nil
	case ObservationKindFileRead:
		var o FileReadObservation
		if err := json.Unmarshal(env.Payload, &o); err != nil {
			return nil, err
		}
		return o, nil
	case ObservationKindFileWrite:
		var o FileWriteObservation
		if err := json.Unmarshal(env.Payload, &o); err != nil {
			return nil, err
		}
		return o, nil
	case ObservationKindGeneric:
		var o GenericObservation
		if err := json.Unmarshal(env.Payload, &o); err != nil {
			return GenericObservation{Raw: env.Payload}, nil
		}
		return o, nil
	default:
		return GenericObservation{Raw: env.Payload}, nil
	}
}
