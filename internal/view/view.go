// Package view implements the pure View builder: given a conversation's raw
// event sequence, derive the linear sequence sent to the LLM, honoring
// condensation and batch atomicity. View is re-derived fresh on every step;
// nothing here is cached across calls.
package view

import "github.com/haasonsaas/nexus/pkg/events"

// View is the derived, LLM-ready projection of an event log.
type View struct {
	Events                  []events.Event
	UnhandledCondensationRequest bool
}

// Build computes the View for the given ordered event sequence.
func Build(log []events.Event) View {
	forgotten := forgottenIDs(log)
	forgotten = expandBatches(log, forgotten)

	kept := make([]events.Event, 0, len(log))
	for _, e := range log {
		if forgotten[e.EventID()] {
			continue
		}
		if !e.LLMConvertible() {
			continue
		}
		kept = append(kept, e)
	}

	kept = insertSummary(log, kept)
	kept = filterUnmatchedToolCalls(kept)

	return View{
		Events:                  kept,
		UnhandledCondensationRequest: unhandledRequest(log),
	}
}

// forgottenIDs is the union of every Condensation's forgotten_event_ids,
// plus the IDs of the Condensation and CondensationRequest events
// themselves (bookkeeping events are never sent to the LLM directly).
func forgottenIDs(log []events.Event) map[events.ID]bool {
	forgotten := map[events.ID]bool{}
	for _, e := range log {
		switch c := e.(type) {
		case events.Condensation:
			forgotten[c.EventID()] = true
			for _, id := range c.ForgottenEventIDs {
				forgotten[id] = true
			}
		case events.CondensationRequest:
			forgotten[c.EventID()] = true
		}
	}
	return forgotten
}

// expandBatches grows forgotten to cover every ActionEvent sharing an
// llm_response_id with a forgotten member, so a batch is never split.
func expandBatches(log []events.Event, forgotten map[events.ID]bool) map[events.ID]bool {
	batches := map[string][]events.ID{}
	batchForgotten := map[string]bool{}

	for _, e := range log {
		a, ok := e.(events.ActionEvent)
		if !ok || a.LLMResponseID == "" {
			continue
		}
		batches[a.LLMResponseID] = append(batches[a.LLMResponseID], a.EventID())
		if forgotten[a.EventID()] {
			batchForgotten[a.LLMResponseID] = true
		}
	}

	out := map[events.ID]bool{}
	for id := range forgotten {
		out[id] = true
	}
	for responseID, ids := range batches {
		if !batchForgotten[responseID] {
			continue
		}
		for _, id := range ids {
			out[id] = true
		}
	}
	return out
}

// insertSummary splices a synthesized CondensationSummaryEvent into kept at
// SummaryOffset, if the most recent Condensation in log carries both a
// Summary and a SummaryOffset.
func insertSummary(log []events.Event, kept []events.Event) []events.Event {
	var latest *events.Condensation
	for i := len(log) - 1; i >= 0; i-- {
		if c, ok := log[i].(events.Condensation); ok {
			latest = &c
			break
		}
	}
	if latest == nil || latest.Summary == "" || latest.SummaryOffset == nil {
		return kept
	}

	offset := *latest.SummaryOffset
	if offset < 0 {
		offset = 0
	}
	if offset > len(kept) {
		offset = len(kept)
	}

	summary := events.CondensationSummaryEvent{
		Base:    events.Base{ID: latest.EventID(), Timestamp: latest.EventTimestamp(), Source: latest.EventSource()},
		Summary: latest.Summary,
	}

	out := make([]events.Event, 0, len(kept)+1)
	out = append(out, kept[:offset]...)
	out = append(out, summary)
	out = append(out, kept[offset:]...)
	return out
}

// filterUnmatchedToolCalls drops ActionEvents with no matching observation
// or rejection, and ObservationEvents with no matching ActionEvent, so a
// separated thinking/tool-call pair never reaches the provider alone.
func filterUnmatchedToolCalls(kept []events.Event) []events.Event {
	hasAnswer := map[string]bool{}
	hasAction := map[string]bool{}
	for _, e := range kept {
		switch v := e.(type) {
		case events.ObservationEvent:
			hasAnswer[v.ToolCallID] = true
		case events.UserRejectObservation:
			hasAnswer[v.ToolCallID] = true
		case events.ActionEvent:
			hasAction[v.ToolCallID] = true
		}
	}

	out := make([]events.Event, 0, len(kept))
	for _, e := range kept {
		switch v := e.(type) {
		case events.ActionEvent:
			if !hasAnswer[v.ToolCallID] {
				continue
			}
		case events.ObservationEvent:
			if !hasAction[v.ToolCallID] {
				continue
			}
		case events.UserRejectObservation:
			if !hasAction[v.ToolCallID] {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// unhandledRequest reports whether the last condensation-related event in
// log is a CondensationRequest not yet superseded by a Condensation.
func unhandledRequest(log []events.Event) bool {
	for i := len(log) - 1; i >= 0; i-- {
		switch log[i].(type) {
		case events.CondensationRequest:
			return true
		case events.Condensation:
			return false
		}
	}
	return false
}
