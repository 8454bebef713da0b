// Package convservice implements ConversationService: the process-wide
// registry of EventServices, their lifecycle (create/load/start/pause/
// resume/delete), and the webhook/metadata subscriber wiring each
// conversation's PubSub feeds.
package convservice

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/condense"
	"github.com/haasonsaas/nexus/internal/eventservice"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/pubsub"
	"github.com/haasonsaas/nexus/internal/store"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/internal/webhook"
	"github.com/haasonsaas/nexus/pkg/events"
)

// ErrNotFound is returned for operations against an unknown conversation id.
var ErrNotFound = errors.New("convservice: conversation not found")

// NewConversationOptions carries the fields a caller supplies when creating
// a conversation; everything else (ID, timestamps, status) is derived.
type NewConversationOptions struct {
	Agent              events.AgentSpec
	ConfirmationPolicy events.ConfirmationMode
	SystemPrompt       string
	Tools              []events.ToolSchema
}

// Service is the process-wide conversation registry. Webhooks are
// configured once, server-wide (spec.md §6.6's top-level `webhooks` field),
// and wired identically into every conversation's PubSub.
type Service struct {
	mu            sync.RWMutex
	store         *store.Store
	provider      llmclient.Provider
	executor      toolexec.Executor
	registry      *toolexec.Registry
	condenserFn   func() condense.Condenser
	webhooks      []webhook.Spec
	logger        *slog.Logger
	conversations map[string]*entry
	index         *store.CockroachIndex
}

// SetCockroachIndex attaches an optional secondary search index; a nil
// argument (the default) disables it. Safe to call before or after
// LoadAll.
func (s *Service) SetCockroachIndex(index *store.CockroachIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
}

type entry struct {
	svc      *eventservice.EventService
	bus      *pubsub.Bus
	webhooks []*webhook.Subscriber
}

// New builds a Service. condenserFn is called once per conversation to
// build its Condenser (so each conversation can get its own, e.g. wrapping
// the shared provider); pass a func returning condense.NoopCondenser{} to
// disable condensation entirely.
func New(st *store.Store, provider llmclient.Provider, executor toolexec.Executor, registry *toolexec.Registry, condenserFn func() condense.Condenser, webhooks []webhook.Spec, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         st,
		provider:      provider,
		executor:      executor,
		registry:      registry,
		condenserFn:   condenserFn,
		webhooks:      webhooks,
		logger:        logger,
		conversations: map[string]*entry{},
	}
}

// LoadAll reloads every conversation found on disk into the registry
// without starting their step loops, for process startup.
func (s *Service) LoadAll() error {
	ids, err := s.store.ListConversationIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := s.load(id); err != nil {
			s.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		}
	}
	return nil
}

// Create makes a new conversation, persists its initial state, and wires
// its webhook subscribers, but does not start its step loop.
func (s *Service) Create(opts NewConversationOptions) (*eventservice.EventService, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	conv := events.Conversation{
		ID:                 id,
		CreatedAt:          now,
		UpdatedAt:          now,
		Agent:              opts.Agent,
		ConfirmationPolicy: opts.ConfirmationPolicy,
		Status:             events.StatusIdle,
	}

	if err := s.store.CreateConversation(conv); err != nil {
		return nil, err
	}

	svc, ent, err := s.build(conv, opts.SystemPrompt, opts.Tools)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conversations[id] = ent
	s.mu.Unlock()

	s.notifyConversation(context.Background(), ent, conv, "created")
	return svc, nil
}

func (s *Service) load(id string) (*eventservice.EventService, error) {
	conv, err := s.store.LoadMeta(id)
	if err != nil {
		return nil, err
	}
	svc, ent, err := s.build(conv, "", nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conversations[id] = ent
	s.mu.Unlock()
	return svc, nil
}

func (s *Service) build(conv events.Conversation, systemPrompt string, tools []events.ToolSchema) (*eventservice.EventService, *entry, error) {
	log, err := s.store.OpenEventLog(conv.ID)
	if err != nil {
		return nil, nil, err
	}
	gate, err := s.store.LoadGate(conv.ID)
	if err != nil {
		return nil, nil, err
	}
	workspace, err := s.store.WorkspaceDir(conv.ID)
	if err != nil {
		return nil, nil, err
	}
	conv.WorkspaceDir = workspace

	bus := pubsub.New()
	condenser := condense.Condenser(condense.NoopCondenser{})
	if s.condenserFn != nil {
		condenser = s.condenserFn()
	}
	if len(tools) == 0 && s.registry != nil {
		tools = s.registry.List()
	}

	svc := eventservice.New(conv, log, bus, gate, eventservice.Deps{
		Provider:     s.provider,
		Executor:     s.executor,
		Condenser:    condenser,
		Registry:     s.registry,
		SystemPrompt: systemPrompt,
		Tools:        tools,
		Workspace:    workspace,
		Logger:       s.logger,
	})

	var subs []*webhook.Subscriber
	for _, spec := range s.webhooks {
		sub := webhook.New(spec, s.logger)
		subs = append(subs, sub)
		bus.Subscribe(func(e events.Event) { sub.Enqueue(e) })
	}

	return svc, &entry{svc: svc, bus: bus, webhooks: subs}, nil
}

// List returns a snapshot of every registered conversation's metadata,
// sorted by id, for the search/count HTTP endpoints.
func (s *Service) List() []events.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Conversation, 0, len(s.conversations))
	for _, ent := range s.conversations {
		out = append(out, ent.svc.Conversation())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the EventService for id.
func (s *Service) Get(id string) (*eventservice.EventService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ent.svc, nil
}

// Start starts id's step loop.
func (s *Service) Start(ctx context.Context, id string) error {
	ent, err := s.entry(id)
	if err != nil {
		return err
	}
	return ent.svc.Start(ctx)
}

// Pause pauses id's step loop and persists its metadata (meta.json). The
// confirmation gate's blocked maps are not saved.
func (s *Service) Pause(ctx context.Context, id string) error {
	ent, err := s.entry(id)
	if err != nil {
		return err
	}
	if err := ent.svc.Pause(); err != nil {
		return err
	}
	s.persist(ent)
	s.notifyConversation(ctx, ent, ent.svc.Conversation(), "paused")
	return nil
}

// Resume resumes id's step loop.
func (s *Service) Resume(ctx context.Context, id string) error {
	ent, err := s.entry(id)
	if err != nil {
		return err
	}
	if err := ent.svc.Resume(ctx); err != nil {
		return err
	}
	s.notifyConversation(ctx, ent, ent.svc.Conversation(), "resumed")
	return nil
}

// Delete closes id's EventService, flushes its webhooks, and removes its
// on-disk state.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	ent, ok := s.conversations[id]
	if ok {
		delete(s.conversations, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	conv := ent.svc.Conversation()
	ent.svc.Close()
	for _, sub := range ent.webhooks {
		sub.Close()
	}
	s.notifyConversation(ctx, ent, conv, "deleted")
	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.Warn("cockroach index delete failed", "conversation_id", id, "error", err)
	}
	return s.store.DeleteConversation(id)
}

// Shutdown closes every registered EventService and flushes every webhook
// subscriber, for graceful process exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.conversations))
	for _, ent := range s.conversations {
		entries = append(entries, ent)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ent := range entries {
		wg.Add(1)
		go func(ent *entry) {
			defer wg.Done()
			ent.svc.Close()
			s.persist(ent)
			for _, sub := range ent.webhooks {
				sub.Close()
			}
		}(ent)
	}
	wg.Wait()
}

func (s *Service) entry(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ent, nil
}

func (s *Service) persist(ent *entry) {
	conv := ent.svc.Conversation()
	if err := s.store.SaveMeta(conv); err != nil {
		s.logger.Error("failed to persist conversation metadata", "conversation_id", conv.ID, "error", err)
	}
}

func (s *Service) notifyConversation(ctx context.Context, ent *entry, conv events.Conversation, action string) {
	if err := s.index.Upsert(ctx, conv); err != nil {
		s.logger.Warn("cockroach index upsert failed", "conversation_id", conv.ID, "action", action, "error", err)
	}
	for _, sub := range ent.webhooks {
		go func(sub *webhook.Subscriber) {
			if err := sub.NotifyConversation(ctx, webhook.ConversationInfo{Conversation: conv, Action: action}); err != nil {
				s.logger.Warn("webhook conversation notify failed", "conversation_id", conv.ID, "action", action, "error", err)
			}
		}(sub)
	}
}

