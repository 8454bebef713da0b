package bashapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/pubsub"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/pkg/events"
)

// ExecuteRequest is the body of POST /bash/execute_bash_command.
type ExecuteRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Cwd            string `json:"cwd,omitempty"`
}

// Service runs bash commands against a single shared workspace root and
// records every BashCommand/BashOutput it produces, independent of any
// conversation. Subscribers (the bash events socket in ws.go) observe both
// event kinds as they are appended.
type Service struct {
	log       *Log
	workspace string
	bus       *pubsub.Bus
}

// New builds a Service. workspace anchors execute_bash's cwd resolution,
// matching the top-level /file routes rather than any per-conversation
// workspace.
func New(log *Log, workspace string) *Service {
	return &Service{log: log, workspace: workspace, bus: pubsub.New()}
}

// Execute appends the BashCommand immediately and returns it, then runs the
// command asynchronously, appending and broadcasting the terminal
// BashOutput once it completes. The original protocol treats execution as
// fire-and-forget from the caller's perspective: progress is observed via
// the bash event log/socket, not the POST response.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (events.BashCommand, error) {
	commandID := events.ID(uuid.NewString())
	cmdEvent := events.BashCommand{
		Base:           events.NewBase(events.SourceUser),
		CommandID:      commandID,
		Command:        req.Command,
		TimeoutSeconds: req.TimeoutSeconds,
		Cwd:            req.Cwd,
	}
	stamped, err := s.log.Append(cmdEvent)
	if err != nil {
		return events.BashCommand{}, err
	}
	stampedCmd := stamped.(events.BashCommand)
	s.bus.Dispatch(stampedCmd)

	go s.run(context.WithoutCancel(ctx), commandID, req)

	return stampedCmd, nil
}

func (s *Service) run(ctx context.Context, commandID events.ID, req ExecuteRequest) {
	obs := toolexec.RunBash(ctx, s.workspace, events.BashAction{
		Command:        req.Command,
		TimeoutSeconds: req.TimeoutSeconds,
		Cwd:            req.Cwd,
	})

	out := events.BashOutput{
		Base:            events.NewBase(events.SourceEnvironment),
		CommandID:       commandID,
		Output:          obs.Output,
		ExitCode:        obs.ExitCode,
		TimeoutOccurred: obs.TimeoutOccurred,
	}
	stamped, err := s.log.Append(out)
	if err != nil {
		return
	}
	s.bus.Dispatch(stamped)
}

// GetEvent returns one bash event by ID.
func (s *Service) GetEvent(id events.ID) (events.Event, error) {
	return s.log.GetByID(id)
}

// BatchGetEvents returns events aligned with ids; missing entries are nil.
func (s *Service) BatchGetEvents(ids []events.ID) ([]events.Event, error) {
	return s.log.BatchGet(ids)
}

// SearchEvents returns one page of bash events.
func (s *Service) SearchEvents(cursor string, limit int, filter Filter, order SortOrder) (Page, error) {
	return s.log.Search(cursor, limit, filter, order)
}

// ClearEvents deletes every stored bash event and returns how many were
// removed.
func (s *Service) ClearEvents() (int, error) {
	return s.log.Clear()
}

// Subscribe registers a handler invoked with every BashCommand/BashOutput
// this Service appends from this point forward.
func (s *Service) Subscribe(handler pubsub.Handler) pubsub.SubscriptionID {
	return s.bus.Subscribe(handler)
}

// Unsubscribe removes a previously registered handler.
func (s *Service) Unsubscribe(id pubsub.SubscriptionID) {
	s.bus.Unsubscribe(id)
}
