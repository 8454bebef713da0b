// Package store persists conversation metadata and manages the on-disk
// layout described in spec.md §6.7: one directory per conversation under
// conversations_path, holding meta.json and the EventLog's database file,
// plus a matching per-conversation workspace directory.
//
// Atomic writes: every file is written to a sibling temp file in the same
// directory, fsynced, and renamed over the target, per spec.md §6.7 — the
// same pattern the teacher's internal/sessions store uses for its JSON
// snapshots.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/nexus/internal/confirm"
	"github.com/haasonsaas/nexus/internal/eventlog"
	"github.com/haasonsaas/nexus/pkg/events"
)

const (
	metaFileName      = "meta.json"
	gateFileName      = "gate_state.json"
	eventsDBFileName  = "events.db"
	eventServiceDir   = "event_service"
)

// Store manages the conversations_path/workspace_path directory layout.
type Store struct {
	conversationsRoot string
	workspaceRoot     string
}

// New builds a Store rooted at the given directories, creating them if
// absent.
func New(conversationsRoot, workspaceRoot string) (*Store, error) {
	if err := os.MkdirAll(conversationsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("store: create conversations root: %w", err)
	}
	if err := os.MkdirAll(workspaceRoot, 0o755); err != nil {
		return nil, fmt.Errorf("store: create workspace root: %w", err)
	}
	return &Store{conversationsRoot: conversationsRoot, workspaceRoot: workspaceRoot}, nil
}

func (s *Store) conversationDir(id string) string {
	return filepath.Join(s.conversationsRoot, id)
}

// WorkspaceDir returns (creating if absent) the workspace directory for id.
func (s *Store) WorkspaceDir(id string) (string, error) {
	dir := filepath.Join(s.workspaceRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create workspace dir: %w", err)
	}
	return dir, nil
}

// ListConversationIDs returns every conversation directory name found under
// the conversations root, for startup reload.
func (s *Store) ListConversationIDs() ([]string, error) {
	entries, err := os.ReadDir(s.conversationsRoot)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// CreateConversation creates the on-disk directory layout for a new
// conversation and persists its initial metadata.
func (s *Store) CreateConversation(conv events.Conversation) error {
	dir := s.conversationDir(conv.ID)
	if err := os.MkdirAll(filepath.Join(dir, eventServiceDir), 0o755); err != nil {
		return fmt.Errorf("store: create conversation dir: %w", err)
	}
	return s.SaveMeta(conv)
}

// SaveMeta atomically persists conv's metadata to meta.json.
func (s *Store) SaveMeta(conv events.Conversation) error {
	dir := s.conversationDir(conv.ID)
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	return atomicWrite(filepath.Join(dir, metaFileName), data)
}

// LoadMeta reads a conversation's persisted metadata.
func (s *Store) LoadMeta(id string) (events.Conversation, error) {
	var conv events.Conversation
	data, err := os.ReadFile(filepath.Join(s.conversationDir(id), metaFileName))
	if err != nil {
		return conv, fmt.Errorf("store: read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &conv); err != nil {
		return conv, fmt.Errorf("store: parse metadata: %w", err)
	}
	return conv, nil
}

// gateState is the JSON shape persisted for a confirm.Gate, so hook-blocked
// actions/messages survive an EventService resume.
type gateState struct {
	BlockedActions  map[events.ID]string `json:"blocked_actions,omitempty"`
	BlockedMessages map[events.ID]string `json:"blocked_messages,omitempty"`
}

// SaveGate atomically persists gate's blocked-action/message state.
func (s *Store) SaveGate(id string, gate *confirm.Gate) error {
	ba, bm := gate.Snapshot()
	data, err := json.MarshalIndent(gateState{BlockedActions: ba, BlockedMessages: bm}, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal gate state: %w", err)
	}
	return atomicWrite(filepath.Join(s.conversationDir(id), gateFileName), data)
}

// LoadGate restores a confirm.Gate from persisted state, returning an empty
// Gate (not an error) if no state was ever persisted.
func (s *Store) LoadGate(id string) (*confirm.Gate, error) {
	gate := confirm.NewGate()
	data, err := os.ReadFile(filepath.Join(s.conversationDir(id), gateFileName))
	if os.IsNotExist(err) {
		return gate, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read gate state: %w", err)
	}
	var state gateState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("store: parse gate state: %w", err)
	}
	gate.Restore(state.BlockedActions, state.BlockedMessages)
	return gate, nil
}

// OpenEventLog opens (creating if absent) the BoltDB-backed EventLog for a
// conversation.
func (s *Store) OpenEventLog(id string) (*eventlog.Log, error) {
	dir := filepath.Join(s.conversationDir(id), eventServiceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create event_service dir: %w", err)
	}
	return eventlog.Open(filepath.Join(dir, eventsDBFileName))
}

// DeleteConversation removes a conversation's entire on-disk directory
// (metadata, gate state, event log) and its workspace directory.
func (s *Store) DeleteConversation(id string) error {
	if err := os.RemoveAll(s.conversationDir(id)); err != nil {
		return fmt.Errorf("store: delete conversation dir: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.workspaceRoot, id)); err != nil {
		return fmt.Errorf("store: delete workspace dir: %w", err)
	}
	return nil
}

// atomicWrite writes data to a sibling temp file, fsyncs it, and renames it
// over path, so a crash never leaves a partially-written file in place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
