package condense

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/view"
	"github.com/haasonsaas/nexus/pkg/events"
)

func viewOf(n int) view.View {
	evs := make([]events.Event, n)
	for i := range evs {
		evs[i] = events.MessageEvent{Base: events.NewBase(events.SourceAgent), Role: events.RoleUser}
	}
	return view.View{Events: evs}
}

func TestNoopCondenserNeverCondenses(t *testing.T) {
	result, err := NoopCondenser{}.Condense(context.Background(), viewOf(500))
	require.NoError(t, err)
	require.True(t, result.Unchanged)
	require.Nil(t, result.Condensation)
}

func TestThresholdCondenserUnchangedBelowMaxEvents(t *testing.T) {
	c := NewThresholdCondenser(DefaultThresholdConfig(), llmclient.NewFakeProvider())
	result, err := c.Condense(context.Background(), viewOf(50))
	require.NoError(t, err)
	require.True(t, result.Unchanged)
}

func TestThresholdCondenserForgetsOldestPrefix(t *testing.T) {
	cfg := ThresholdConfig{MaxEvents: 100, KeepLastN: 20, SummaryPrompt: "summarize"}
	provider := llmclient.NewFakeProvider()
	c := NewThresholdCondenser(cfg, provider)

	v := viewOf(150)
	result, err := c.Condense(context.Background(), v)
	require.NoError(t, err)
	require.False(t, result.Unchanged)
	require.NotNil(t, result.Condensation)
	require.Len(t, result.Condensation.ForgottenEventIDs, 130)
	require.Equal(t, "summary", result.Condensation.Summary)
	require.Equal(t, 0, *result.Condensation.SummaryOffset)
}

func TestThresholdCondenserPropagatesSummarizeError(t *testing.T) {
	cfg := DefaultThresholdConfig()
	provider := llmclient.NewFakeProvider()
	boom := errors.New("provider unavailable")
	provider.SummarizeFunc = func(ctx context.Context, prompt string, forgotten []events.Event) (string, error) {
		return "", boom
	}
	c := NewThresholdCondenser(cfg, provider)

	_, err := c.Condense(context.Background(), viewOf(150))
	require.ErrorIs(t, err, boom)
}
