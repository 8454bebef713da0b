// Package eventservice owns one conversation's lifecycle: its EventLog, its
// PubSub fan-out, its confirmation Gate, and the goroutine that drives the
// step loop. It is the single place conversation status transitions happen,
// matching the precedence rule in events.ExecutionStatus's doc comment: a
// terminal status always wins, then WAITING_FOR_CONFIRMATION, then PAUSED.
package eventservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/condense"
	"github.com/haasonsaas/nexus/internal/confirm"
	"github.com/haasonsaas/nexus/internal/eventlog"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/pubsub"
	"github.com/haasonsaas/nexus/internal/step"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/pkg/events"
)

// ErrClosed is returned by any mutator called after Close.
var ErrClosed = errors.New("eventservice: conversation is closed")

// ErrNotWaitingForConfirmation is returned by RespondToConfirmation when the
// conversation isn't currently gated on one.
var ErrNotWaitingForConfirmation = errors.New("eventservice: not waiting for confirmation")

// MaxIterations bounds how many steps a single Start/Resume drive will run
// before yielding control back, guarding against a runaway tool-call loop.
const MaxIterations = 500

// Deps are the collaborators EventService needs to drive a conversation,
// supplied once at construction by internal/convservice on behalf of the
// composition root.
type Deps struct {
	Provider     llmclient.Provider
	Executor     toolexec.Executor
	Condenser    condense.Condenser
	Registry     *toolexec.Registry
	SystemPrompt string
	Tools        []events.ToolSchema
	Workspace    string
	Logger       *slog.Logger
}

// EventService drives one conversation: its EventLog is the source of
// truth, its PubSub fans out every appended event, and its Gate tracks
// hook-blocked actions/messages. All public mutators acquire mu; the step
// loop releases mu around LLM calls and tool executions so pause() and
// send_message() stay responsive mid-step.
type EventService struct {
	mu sync.Mutex

	conv events.Conversation
	log  *eventlog.Log
	bus  *pubsub.Bus
	gate *confirm.Gate
	deps Deps

	pendingConfirmation []events.ActionEvent
	inFlightIterations  int
	closed              bool

	cancelRun context.CancelFunc
}

// New builds an EventService for an already-initialized conversation. log
// and bus are owned exclusively by this EventService from here on.
func New(conv events.Conversation, log *eventlog.Log, bus *pubsub.Bus, gate *confirm.Gate, deps Deps) *EventService {
	if gate == nil {
		gate = confirm.NewGate()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	svc := &EventService{
		conv: conv,
		log:  log,
		bus:  bus,
		gate: gate,
		deps: deps,
	}
	log.OnAppend(func(_ uint64, event events.Event) {
		bus.Dispatch(event)
	})
	return svc
}

// Conversation returns a snapshot of the conversation metadata.
func (s *EventService) Conversation() events.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// SearchEvents delegates to the EventLog; it does not require the
// EventService lock since EventLog guards its own state.
func (s *EventService) SearchEvents(cursor string, limit int, kinds []events.Kind, order eventlog.SortOrder) (eventlog.Page, error) {
	return s.log.Search(cursor, limit, kinds, order)
}

// CountEvents delegates to the EventLog.
func (s *EventService) CountEvents(kinds []events.Kind) (int, error) {
	return s.log.Count(kinds)
}

// GetEvent delegates to the EventLog.
func (s *EventService) GetEvent(id events.ID) (events.Event, error) {
	return s.log.GetByID(id)
}

// BatchGetEvents delegates to the EventLog.
func (s *EventService) BatchGetEvents(ids []events.ID) ([]events.Event, error) {
	return s.log.BatchGet(ids)
}

// SubscribeToEvents delegates to PubSub.
func (s *EventService) SubscribeToEvents(handler pubsub.Handler) pubsub.SubscriptionID {
	return s.bus.Subscribe(handler)
}

// UnsubscribeFromEvents delegates to PubSub.
func (s *EventService) UnsubscribeFromEvents(id pubsub.SubscriptionID) {
	s.bus.Unsubscribe(id)
}

// Start transitions an IDLE conversation to RUNNING and drives the step
// loop until it yields (FINISHED/ERROR/PAUSED/WAITING_FOR_CONFIRMATION) or
// MaxIterations is reached. On the very first mutator called against a
// conversation (an empty log), it appends the SystemPromptEvent before
// doing anything else, per EventLog invariant 5: SystemPromptEvent, if
// present, is the first event.
func (s *EventService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.conv.Status = events.StatusRunning
	s.mu.Unlock()

	if err := s.ensureSystemPrompt(); err != nil {
		return err
	}

	return s.drive(ctx)
}

// ensureSystemPrompt appends a SystemPromptEvent if the log is still empty.
// Both Start and SendMessage call this, since either may be the first
// mutator invoked against a freshly created conversation.
func (s *EventService) ensureSystemPrompt() error {
	n, err := s.log.Len()
	if err != nil {
		return fmt.Errorf("eventservice: check log length: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, _, err := s.log.Append(events.SystemPromptEvent{
		Base:         events.NewBase(events.SourceAgent),
		SystemPrompt: s.deps.SystemPrompt,
		Tools:        s.deps.Tools,
	}); err != nil {
		return fmt.Errorf("eventservice: append system prompt: %w", err)
	}
	return nil
}

// SendMessage appends a user MessageEvent and, if run is true, drives the
// step loop afterward.
func (s *EventService) SendMessage(ctx context.Context, content []events.ContentBlock, run bool) (events.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	if err := s.ensureSystemPrompt(); err != nil {
		return nil, err
	}

	_, stamped, err := s.log.Append(events.MessageEvent{
		Base:    events.NewBase(events.SourceUser),
		Role:    events.RoleUser,
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("eventservice: append message: %w", err)
	}

	if !run {
		return stamped, nil
	}

	s.mu.Lock()
	s.conv.Status = events.StatusRunning
	s.mu.Unlock()

	if err := s.drive(ctx); err != nil {
		return stamped, err
	}
	return stamped, nil
}

// Pause requests the step loop stop after its current iteration. It never
// overwrites a WAITING_FOR_CONFIRMATION or terminal status, per the
// precedence rule on events.ExecutionStatus.
func (s *EventService) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.conv.Status.Terminal() || s.conv.Status == events.StatusWaitingForConfirmation {
		return nil
	}
	s.conv.Status = events.StatusPaused
	return nil
}

// Resume transitions a PAUSED conversation back to RUNNING and drives it.
func (s *EventService) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conv.Status == events.StatusPaused {
		s.conv.Status = events.StatusRunning
	}
	s.mu.Unlock()
	return s.drive(ctx)
}

// RespondToConfirmation accepts or rejects the pending action batch. On
// accept, blocked actions stay blocked (the caller rejected them
// individually via a hook elsewhere), the batch runs and the step loop is
// driven again. On reject, every pending action is marked blocked with
// reason, so ExecuteBatch turns each into a UserRejectObservation instead
// of running it; the conversation then stays IDLE until the next mutator.
func (s *EventService) RespondToConfirmation(ctx context.Context, accept bool, reason *string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conv.Status != events.StatusWaitingForConfirmation {
		s.mu.Unlock()
		return ErrNotWaitingForConfirmation
	}
	batch := s.pendingConfirmation
	s.pendingConfirmation = nil

	rejectReason := confirm.DefaultRejectionReason
	if reason != nil && *reason != "" {
		rejectReason = *reason
	}
	if !accept {
		for _, a := range batch {
			s.gate.BlockAction(a.EventID(), rejectReason)
		}
	}
	if accept {
		s.conv.Status = events.StatusRunning
	} else {
		s.conv.Status = events.StatusIdle
	}
	deps := s.stepDeps()
	s.mu.Unlock()

	if err := step.ExecuteBatch(ctx, deps, batch); err != nil {
		return fmt.Errorf("eventservice: execute confirmed batch: %w", err)
	}
	if !accept {
		return nil
	}

	return s.drive(ctx)
}

// Close stops the step loop (if running) and marks the EventService unable
// to accept further mutators. It does not close the underlying EventLog;
// internal/convservice owns that lifecycle since the log may outlive this
// particular in-memory EventService across a process restart.
func (s *EventService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancelRun != nil {
		s.cancelRun()
	}
	return nil
}

func (s *EventService) stepDeps() step.Deps {
	return step.Deps{
		Log:                 s.log,
		Provider:            s.deps.Provider,
		Executor:            s.deps.Executor,
		Condenser:           s.deps.Condenser,
		Schemas:             s.deps.Registry,
		Workspace:           s.deps.Workspace,
		Model:               s.conv.Agent.Model,
		SystemPrompt:        s.deps.SystemPrompt,
		Tools:               s.deps.Tools,
		ConfirmationPolicy:  s.conv.ConfirmationPolicy,
		Gate:                s.gate,
	}
}

// drive runs steps until the loop yields or MaxIterations is hit. The lock
// is held only around status reads/writes between steps; step.Run itself
// is called with the lock released so Pause/SendMessage stay responsive.
func (s *EventService) drive(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
	defer cancel()

	for iterations := 0; iterations < MaxIterations; iterations++ {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.conv.Status != events.StatusRunning {
			s.mu.Unlock()
			return nil
		}
		deps := s.stepDeps()
		s.inFlightIterations++
		s.mu.Unlock()

		history, err := s.log.All()
		if err != nil {
			s.mu.Lock()
			s.inFlightIterations--
			s.mu.Unlock()
			return fmt.Errorf("eventservice: load history: %w", err)
		}

		outcome, err := step.Run(runCtx, deps, history)

		s.mu.Lock()
		s.inFlightIterations--
		s.conv.UpdatedAt = time.Now().UTC()
		if err != nil {
			s.conv.Status = events.StatusError
			s.deps.Logger.Error("step failed", "conversation_id", s.conv.ID, "error", err)
			s.mu.Unlock()
			return err
		}

		s.conv.Stats.NumSteps++
		s.conv.Stats.PromptTokens += outcome.PromptTokens
		s.conv.Stats.OutputTokens += outcome.OutputTokens

		// A concurrent Pause() may have fired between the last status check
		// and here; it always wins over what the step decided, except a
		// step's own terminal/confirmation outcome still takes precedence
		// per events.ExecutionStatus's documented ordering.
		if s.conv.Status == events.StatusPaused && !outcome.Status.Terminal() && outcome.Status != events.StatusWaitingForConfirmation {
			s.mu.Unlock()
			return nil
		}

		s.conv.Status = outcome.Status
		if outcome.Status == events.StatusWaitingForConfirmation {
			s.pendingConfirmation = outcome.PendingConfirmation
		}
		yield := outcome.Status.Terminal() || outcome.Status == events.StatusWaitingForConfirmation || outcome.Status == events.StatusPaused
		s.mu.Unlock()

		if yield {
			return nil
		}

		if err := runCtx.Err(); err != nil {
			return nil
		}
	}
	return nil
}
