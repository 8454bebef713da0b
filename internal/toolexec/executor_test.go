package toolexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/pkg/events"
)

func TestBuiltinExecutorDispatchesFinish(t *testing.T) {
	var exec BuiltinExecutor
	obs, err := exec.Execute(context.Background(), t.TempDir(), events.FinishAction{Message: "done"})
	require.NoError(t, err)
	finish, ok := obs.(events.FinishObservation)
	require.True(t, ok)
	require.Equal(t, "done", finish.Message)
}

func TestBuiltinExecutorRejectsUnsupportedAction(t *testing.T) {
	var exec BuiltinExecutor
	_, err := exec.Execute(context.Background(), t.TempDir(), events.GenericAction{ToolName: "browser_click"})
	require.ErrorIs(t, err, ErrUnsupportedAction)
}
