// Package confirm implements the confirmation gate and the hook-style
// blocked-actions/blocked-messages bookkeeping consulted before the step
// loop executes a tool call or processes a user message.
package confirm

import (
	"sync"

	"github.com/haasonsaas/nexus/pkg/events"
)

// DefaultRejectionReason is the literal reason surfaced to the LLM when a
// user declines a pending action, matched to the original implementation's
// default string rather than inventing new wording.
const DefaultRejectionReason = "User rejected the action."

// Requires reports whether the given batch of ActionEvents needs user
// confirmation under policy, honoring the special case that a lone `finish`
// call always skips confirmation.
func Requires(policy events.ConfirmationMode, batch []events.ActionEvent) bool {
	if policy == events.ConfirmationNever {
		return false
	}
	if len(batch) == 1 && batch[0].ToolName == "finish" {
		return false
	}
	switch policy {
	case events.ConfirmationAlways:
		return true
	case events.ConfirmationRisky:
		for _, a := range batch {
			if a.SecurityRisk == events.SecurityRiskMedium || a.SecurityRisk == events.SecurityRiskHigh {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Gate tracks actions and messages blocked by a hook processor. It is part
// of conversation state and must be persisted so it survives resume; the
// EventService owns one Gate per conversation, guarded by its own lock.
type Gate struct {
	mu              sync.Mutex
	blockedActions  map[events.ID]string // action id -> reason
	blockedMessages map[events.ID]string
}

// NewGate builds an empty Gate.
func NewGate() *Gate {
	return &Gate{
		blockedActions:  map[events.ID]string{},
		blockedMessages: map[events.ID]string{},
	}
}

// BlockAction marks actionID as blocked by a PreToolUse hook, with reason
// surfaced to the LLM as the rejection observation on the next turn.
func (g *Gate) BlockAction(actionID events.ID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockedActions[actionID] = reason
}

// ActionBlocked reports whether actionID was blocked, and its reason.
func (g *Gate) ActionBlocked(actionID events.ID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.blockedActions[actionID]
	return reason, ok
}

// ClearAction removes actionID's blocked entry once its rejection
// observation has been appended.
func (g *Gate) ClearAction(actionID events.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blockedActions, actionID)
}

// BlockMessage marks a user MessageEvent as blocked by a UserPromptSubmit
// hook; blocked messages are never processed by the step loop.
func (g *Gate) BlockMessage(messageID events.ID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blockedMessages[messageID] = reason
}

// MessageBlocked reports whether messageID was blocked.
func (g *Gate) MessageBlocked(messageID events.ID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.blockedMessages[messageID]
	return reason, ok
}

// Snapshot returns copies of both maps for persistence.
func (g *Gate) Snapshot() (blockedActions, blockedMessages map[events.ID]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ba := make(map[events.ID]string, len(g.blockedActions))
	for k, v := range g.blockedActions {
		ba[k] = v
	}
	bm := make(map[events.ID]string, len(g.blockedMessages))
	for k, v := range g.blockedMessages {
		bm[k] = v
	}
	return ba, bm
}

// Restore replaces both maps wholesale, used when resuming a conversation
// from persisted metadata.
func (g *Gate) Restore(blockedActions, blockedMessages map[events.ID]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if blockedActions == nil {
		blockedActions = map[events.ID]string{}
	}
	if blockedMessages == nil {
		blockedMessages = map[events.ID]string{}
	}
	g.blockedActions = blockedActions
	g.blockedMessages = blockedMessages
}
