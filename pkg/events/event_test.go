package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTripsMessageEvent(t *testing.T) {
	e := MessageEvent{
		Base:    Base{ID: "m1", Source: SourceUser},
		Role:    RoleUser,
		Content: []ContentBlock{TextBlock("hi")},
	}

	data, err := e.MarshalJSON()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	msg, ok := parsed.(MessageEvent)
	require.True(t, ok)
	require.Equal(t, e.EventID(), msg.EventID())
	require.Equal(t, e.Role, msg.Role)
}

func TestParseUnknownKindReturnsErrUnknownKind(t *testing.T) {
	_, err := Parse([]byte(`{"kind":"NotAThing"}`))
	require.Error(t, err)
	var unknown *ErrUnknownKind
	require.ErrorAs(t, err, &unknown)
}

func TestWithIDSetsBaseIDAcrossVariants(t *testing.T) {
	stamped := WithID(MessageEvent{Role: RoleUser}, ID("new-id"))
	msg, ok := stamped.(MessageEvent)
	require.True(t, ok)
	require.Equal(t, ID("new-id"), msg.EventID())

	stamped = WithID(PauseEvent{}, ID("pause-id"))
	pause, ok := stamped.(PauseEvent)
	require.True(t, ok)
	require.Equal(t, ID("pause-id"), pause.EventID())
}

func TestNewBaseSetsSourceAndTimestamp(t *testing.T) {
	b := NewBase(SourceAgent)
	require.Equal(t, SourceAgent, b.EventSource())
	require.False(t, b.EventTimestamp().IsZero())
}
