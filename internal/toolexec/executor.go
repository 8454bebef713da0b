// Package toolexec implements the built-in tool executors (bash, file
// read/write, finish) that the step loop invokes to turn an ActionEvent
// into an ObservationEvent. External tool executors (browser, MCP, ...)
// are out of scope per spec and are modeled only as GenericAction/
// GenericObservation pass-through.
package toolexec

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/pkg/events"
)

// Executor turns a tool call's Action into its Observation. Implementations
// must never block indefinitely without honoring ctx cancellation, since
// executor calls happen outside the EventService's critical section.
type Executor interface {
	Execute(ctx context.Context, workspace string, action events.Action) (events.Observation, error)
}

// BuiltinExecutor dispatches bash/file_read/file_write/finish actions to
// their concrete implementations. Any other Action kind (GenericAction,
// i.e. an external/MCP tool) is rejected with ErrUnsupportedAction so the
// caller can decide whether that is scaffold-level (AgentErrorEvent) or
// just an is_error observation.
type BuiltinExecutor struct{}

// ErrUnsupportedAction is returned for Action kinds this executor does not
// implement.
var ErrUnsupportedAction = fmt.Errorf("toolexec: unsupported action kind")

func (BuiltinExecutor) Execute(ctx context.Context, workspace string, action events.Action) (events.Observation, error) {
	switch a := action.(type) {
	case events.BashAction:
		return RunBash(ctx, workspace, a), nil
	case events.FileReadAction:
		return RunFileRead(workspace, a), nil
	case events.FileWriteAction:
		return RunFileWrite(workspace, a), nil
	case events.FinishAction:
		return events.FinishObservation{Message: a.Message}, nil
	default:
		return nil, ErrUnsupportedAction
	}
}
