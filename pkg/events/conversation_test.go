package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutionStatusTerminal(t *testing.T) {
	require.True(t, StatusFinished.Terminal())
	require.True(t, StatusError.Terminal())
	require.True(t, StatusStopped.Terminal())

	require.False(t, StatusIdle.Terminal())
	require.False(t, StatusRunning.Terminal())
	require.False(t, StatusPaused.Terminal())
	require.False(t, StatusWaitingForConfirmation.Terminal())
}
