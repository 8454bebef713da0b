// Package webhook implements WebhookSubscriber: a per-conversation outbound
// fan-out of events and conversation-info updates to a configured HTTP
// endpoint, with buffered batching, an idle flush timer, and bounded retry.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/events"
)

// Spec configures one WebhookSubscriber, per spec.md §4.7. Yaml tags let it
// decode directly out of a $include'd webhooks overlay file (see
// internal/config/loader.go) as well as the primary json5 config.
type Spec struct {
	BaseURL         string            `json:"base_url" yaml:"base_url"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	EventBufferSize int               `json:"event_buffer_size,omitempty" yaml:"event_buffer_size,omitempty"`
	FlushDelaySecs  float64           `json:"flush_delay,omitempty" yaml:"flush_delay,omitempty"`
	NumRetries      int               `json:"num_retries,omitempty" yaml:"num_retries,omitempty"`
	RetryDelaySecs  float64           `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	SessionAPIKey   string            `json:"-" yaml:"-"` // set by convservice, not user config
}

func (s Spec) bufferSize() int {
	if s.EventBufferSize < 1 {
		return 1
	}
	return s.EventBufferSize
}

func (s Spec) flushDelay() time.Duration {
	if s.FlushDelaySecs <= 0 {
		return time.Second
	}
	return time.Duration(s.FlushDelaySecs * float64(time.Second))
}

func (s Spec) retryDelay() time.Duration {
	if s.RetryDelaySecs <= 0 {
		return 0
	}
	return time.Duration(s.RetryDelaySecs * float64(time.Second))
}

// ConversationInfo is the payload POSTed to {base_url}/conversations on
// create/pause/resume/delete, per SPEC_FULL §6.8's supplement from
// original_source/.
type ConversationInfo struct {
	Conversation events.Conversation `json:"conversation"`
	Action       string              `json:"action"` // created|paused|resumed|deleted
}

// Subscriber is one conversation's outbound webhook fan-out point. Events
// queue in append order; the queue is drained by a goroutine started for
// each flush, either when it fills to EventBufferSize or FlushDelay elapses
// since the last enqueue, whichever comes first.
type Subscriber struct {
	spec   Spec
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	queue   []events.Event
	timer   *time.Timer
	closed  bool
	flushWG sync.WaitGroup
}

// New builds a Subscriber for spec. It does not start any goroutine itself;
// flushes are scheduled lazily by Enqueue's idle timer.
func New(spec Spec, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		spec:   spec,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Enqueue appends event to the pending queue. It flushes immediately if the
// buffer is now full, otherwise (re)arms the idle timer.
func (s *Subscriber) Enqueue(event events.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	full := len(s.queue) >= s.spec.bufferSize()
	if s.timer != nil {
		s.timer.Stop()
	}
	if full {
		s.timer = nil
		s.mu.Unlock()
		s.flushAsync()
		return
	}
	s.timer = time.AfterFunc(s.spec.flushDelay(), s.flushAsync)
	s.mu.Unlock()
}

func (s *Subscriber) flushAsync() {
	s.flushWG.Add(1)
	go func() {
		defer s.flushWG.Done()
		s.flush(context.Background())
	}()
}

// flush snapshots and clears the queue, then POSTs it with bounded retry.
// On total failure the snapshot is put back at the front of the queue for a
// future flush, per spec.md §4.7.
func (s *Subscriber) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()

	if err := s.postWithRetry(ctx, s.spec.BaseURL+"/events", batch); err != nil {
		s.logger.Warn("webhook flush failed, requeueing", "base_url", s.spec.BaseURL, "error", err, "n", len(batch))
		s.mu.Lock()
		s.queue = append(append([]events.Event{}, batch...), s.queue...)
		s.mu.Unlock()
	}
}

// NotifyConversation POSTs a ConversationInfo to {base_url}/conversations,
// with the same bounded retry as event batches but no queueing: conversation
// lifecycle notifications are sent individually as they occur.
func (s *Subscriber) NotifyConversation(ctx context.Context, info ConversationInfo) error {
	return s.postWithRetry(ctx, s.spec.BaseURL+"/conversations", info)
}

func (s *Subscriber) postWithRetry(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.spec.NumRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.spec.retryDelay()):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.spec.Headers {
			req.Header.Set(k, v)
		}
		if s.spec.SessionAPIKey != "" {
			req.Header.Set("X-Session-API-Key", s.spec.SessionAPIKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: %s returned status %d", url, resp.StatusCode)
	}
	return lastErr
}

// Close flushes once synchronously (no further retry scheduling beyond the
// bounded pass already in flight) and cancels any pending idle timer.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.flush(context.Background())
	s.flushWG.Wait()
	return nil
}
