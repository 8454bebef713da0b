package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalParseActionRoundTripsBashAction(t *testing.T) {
	a := BashAction{Command: "ls -la", Cwd: "/workspace", TimeoutSeconds: 30}

	data, err := MarshalAction(a)
	require.NoError(t, err)

	parsed, err := ParseAction(data)
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}

func TestParseActionUnknownKindFallsBackToGeneric(t *testing.T) {
	data, err := MarshalAction(GenericAction{ToolName: "browser_click"})
	require.NoError(t, err)

	// Corrupt the discriminator to something unregistered.
	mutated := []byte(`{"action_kind":"browser_click","payload":{"x":1}}`)

	parsed, err := ParseAction(mutated)
	require.NoError(t, err)
	generic, ok := parsed.(GenericAction)
	require.True(t, ok)
	require.JSONEq(t, `{"x":1}`, string(generic.Raw))

	// Sanity: round-tripping a genuine GenericAction also still works.
	parsed2, err := ParseAction(data)
	require.NoError(t, err)
	require.Equal(t, ActionKindGeneric, parsed2.ActionKind())
}

func TestMarshalActionNilProducesEmptyEnvelope(t *testing.T) {
	data, err := MarshalAction(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"action_kind":"","payload":null}`, string(data))
}

func TestParseActionRoundTripsEveryKnownKind(t *testing.T) {
	cases := []Action{
		BashAction{Command: "echo hi"},
		FinishAction{Message: "done"},
		FileReadAction{Path: "a.txt"},
		FileWriteAction{Path: "a.txt", Content: "hi"},
	}
	for _, a := range cases {
		data, err := MarshalAction(a)
		require.NoError(t, err)
		parsed, err := ParseAction(data)
		require.NoError(t, err)
		require.Equal(t, a.ActionKind(), parsed.ActionKind())
	}
}
