package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalParseObservationRoundTripsBashObservation(t *testing.T) {
	exitCode := 0
	o := BashObservation{Output: "hi\n", ExitCode: &exitCode}

	data, err := MarshalObservation(o)
	require.NoError(t, err)

	parsed, err := ParseObservation(data)
	require.NoError(t, err)
	require.Equal(t, o, parsed)
	require.False(t, parsed.Error())
}

func TestObservationErrorReflectsIsError(t *testing.T) {
	o := FileReadObservation{IsError: true, Content: "no such file"}
	require.True(t, o.Error())

	ok := FileWriteObservation{BytesWritten: 12}
	require.False(t, ok.Error())
}

func TestParseObservationUnknownKindFallsBackToGeneric(t *testing.T) {
	mutated := []byte(`{"observation_kind":"browser_click","payload":{"ok":true}}`)

	parsed, err := ParseObservation(mutated)
	require.NoError(t, err)
	generic, ok := parsed.(GenericObservation)
	require.True(t, ok)
	require.JSONEq(t, `{"ok":true}`, string(generic.Raw))
}

func TestMarshalObservationNilProducesEmptyEnvelope(t *testing.T) {
	data, err := MarshalObservation(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"observation_kind":"","payload":null}`, string(data))
}
