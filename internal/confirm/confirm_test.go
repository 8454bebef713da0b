package confirm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/pkg/events"
)

func TestRequiresNeverSkipsConfirmation(t *testing.T) {
	batch := []events.ActionEvent{{ToolName: "execute_bash", SecurityRisk: events.SecurityRiskHigh}}
	require.False(t, Requires(events.ConfirmationNever, batch))
}

func TestRequiresAlwaysConfirmsEveryBatch(t *testing.T) {
	batch := []events.ActionEvent{{ToolName: "read_file"}}
	require.True(t, Requires(events.ConfirmationAlways, batch))
}

func TestRequiresLoneFinishNeverGated(t *testing.T) {
	batch := []events.ActionEvent{{ToolName: "finish"}}
	require.False(t, Requires(events.ConfirmationAlways, batch))
}

func TestRequiresRiskyOnlyGatesMediumAndHigh(t *testing.T) {
	low := []events.ActionEvent{{ToolName: "execute_bash", SecurityRisk: events.SecurityRiskLow}}
	require.False(t, Requires(events.ConfirmationRisky, low))

	high := []events.ActionEvent{{ToolName: "execute_bash", SecurityRisk: events.SecurityRiskHigh}}
	require.True(t, Requires(events.ConfirmationRisky, high))
}

func TestGateBlockAndClearAction(t *testing.T) {
	g := NewGate()
	id := events.ID("action-1")

	_, blocked := g.ActionBlocked(id)
	require.False(t, blocked)

	g.BlockAction(id, "denied by policy")
	reason, blocked := g.ActionBlocked(id)
	require.True(t, blocked)
	require.Equal(t, "denied by policy", reason)

	g.ClearAction(id)
	_, blocked = g.ActionBlocked(id)
	require.False(t, blocked)
}

func TestGateSnapshotAndRestoreRoundTrip(t *testing.T) {
	g := NewGate()
	g.BlockAction(events.ID("a1"), "reason-a")
	g.BlockMessage(events.ID("m1"), "reason-m")

	actions, messages := g.Snapshot()

	restored := NewGate()
	restored.Restore(actions, messages)

	reason, ok := restored.ActionBlocked(events.ID("a1"))
	require.True(t, ok)
	require.Equal(t, "reason-a", reason)

	reason, ok = restored.MessageBlocked(events.ID("m1"))
	require.True(t, ok)
	require.Equal(t, "reason-m", reason)
}

func TestGateRestoreNilMapsBecomeEmpty(t *testing.T) {
	g := NewGate()
	g.Restore(nil, nil)
	_, ok := g.ActionBlocked(events.ID("anything"))
	require.False(t, ok)
}
