package events

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// sonicJSON is the decoder Parse uses for every stored event record read
// back by a search or get; it uses sonic rather than encoding/json for its
// faster reflection-free codec. The package's other files import
// encoding/json as json, so this name must differ.
var sonicJSON = sonic.ConfigStd

// Parse dispatches on the "kind" discriminator to reconstruct a concrete
// Event from JSON previously produced by a variant's MarshalJSON. This is
// the single entry point EventLog uses to deserialize a stored record; it
// is an explicit function rather than an ambient/global registry so the
// dispatch table stays visible at the call site.
func Parse(data []byte) (Event, error) {
	json := sonicJSON
	var env kindEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: parse envelope: %w", err)
	}
	switch env.Kind {
	case KindSystemPrompt:
		var e SystemPromptEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindMessage:
		var e MessageEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindAction:
		var e ActionEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindObservation:
		var e ObservationEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindUserRejectObservation:
		var e UserRejectObservation
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindAgentError:
		var e AgentErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindPause:
		var e PauseEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindCondensation:
		var e Condensation
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindCondensationRequest:
		var e CondensationRequest
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindCondensationSummary:
		var e CondensationSummaryEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindConversationStateUpdate:
		var e ConversationStateUpdateEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindBashCommand:
		var e BashCommand
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case KindBashOutput:
		var e BashOutput
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, &ErrUnknownKind{Kind: env.Kind}
	}
}
