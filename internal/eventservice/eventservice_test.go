package eventservice

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/internal/condense"
	"github.com/haasonsaas/nexus/internal/eventlog"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/pubsub"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/pkg/events"
)

func newTestService(t *testing.T, provider llmclient.Provider) *EventService {
	t.Helper()
	log, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	conv := events.Conversation{ID: "conv-1", Status: events.StatusIdle, ConfirmationPolicy: events.ConfirmationNever}
	return New(conv, log, pubsub.New(), nil, Deps{
		Provider:  provider,
		Executor:  toolexec.BuiltinExecutor{},
		Condenser: condense.NoopCondenser{},
		Workspace: t.TempDir(),
	})
}

func TestStartDrivesToFinishedOnPlainTextReply(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider(llmclient.StepResult{
		Content: []events.ContentBlock{events.TextBlock("hello")},
	}))

	require.NoError(t, svc.Start(context.Background()))
	require.Equal(t, events.StatusFinished, svc.Conversation().Status)

	page, err := svc.SearchEvents("", 10, nil, eventlog.SortTimestampAsc)
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
}

func TestSendMessageWithoutRunOnlyAppends(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider())

	stamped, err := svc.SendMessage(context.Background(), []events.ContentBlock{events.TextBlock("hi")}, false)
	require.NoError(t, err)
	require.NotEmpty(t, stamped.EventID())
	require.Equal(t, events.StatusIdle, svc.Conversation().Status)
}

func TestPauseNeverOverwritesWaitingForConfirmation(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider(llmclient.StepResult{
		ToolCalls: []llmclient.ToolCallResult{
			{ToolName: "execute_bash", ToolCallID: "call-1", Action: events.BashAction{Command: "echo hi"}, SecurityRisk: events.SecurityRiskHigh},
		},
	}))
	svc.conv.ConfirmationPolicy = events.ConfirmationAlways

	require.NoError(t, svc.Start(context.Background()))
	require.Equal(t, events.StatusWaitingForConfirmation, svc.Conversation().Status)

	require.NoError(t, svc.Pause())
	require.Equal(t, events.StatusWaitingForConfirmation, svc.Conversation().Status)
}

func TestPauseOnIdleConversationSetsPaused(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider())
	require.NoError(t, svc.Pause())
	require.Equal(t, events.StatusPaused, svc.Conversation().Status)
}

func TestRespondToConfirmationRejectRecordsUserRejectObservation(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider(llmclient.StepResult{
		ToolCalls: []llmclient.ToolCallResult{
			{ToolName: "execute_bash", ToolCallID: "call-1", Action: events.BashAction{Command: "echo hi"}, SecurityRisk: events.SecurityRiskHigh},
		},
	}))
	svc.conv.ConfirmationPolicy = events.ConfirmationAlways

	require.NoError(t, svc.Start(context.Background()))
	require.Equal(t, events.StatusWaitingForConfirmation, svc.Conversation().Status)

	require.NoError(t, svc.RespondToConfirmation(context.Background(), false, nil))

	page, err := svc.SearchEvents("", 50, []events.Kind{events.KindUserRejectObservation}, eventlog.SortTimestampAsc)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestRespondToConfirmationWithoutPendingBatchErrors(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider())
	err := svc.RespondToConfirmation(context.Background(), true, nil)
	require.ErrorIs(t, err, ErrNotWaitingForConfirmation)
}

func TestCloseRejectsFurtherMutators(t *testing.T) {
	svc := newTestService(t, llmclient.NewFakeProvider())
	require.NoError(t, svc.Close())

	_, err := svc.SendMessage(context.Background(), nil, false)
	require.ErrorIs(t, err, ErrClosed)
}
