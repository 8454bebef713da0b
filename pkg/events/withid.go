package events

// WithID returns a copy of e with its Base.ID set to id. Used by EventLog
// at append time so callers never race on ID generation; every concrete
// variant embeds Base first, so this is a plain type switch rather than
// reflection.
func WithID(e Event, id ID) Event {
	switch v := e.(type) {
	case SystemPromptEvent:
		v.ID = id
		return v
	case MessageEvent:
		v.ID = id
		return v
	case ActionEvent:
		v.ID = id
		return v
	case ObservationEvent:
		v.ID = id
		return v
	case UserRejectObservation:
		v.ID = id
		return v
	case AgentErrorEvent:
		v.ID = id
		return v
	case PauseEvent:
		v.ID = id
		return v
	case Condensation:
		v.ID = id
		return v
	case CondensationRequest:
		v.ID = id
		return v
	case CondensationSummaryEvent:
		v.ID = id
		return v
	case ConversationStateUpdateEvent:
		v.ID = id
		return v
	case BashCommand:
		v.ID = id
		return v
	case BashOutput:
		v.ID = id
		return v
	default:
		return e
	}
}
