// Package condense implements the condenser seam: a pluggable summarizer
// that, given the current View, may emit a Condensation event forgetting a
// prefix of the log and substituting a synthesized summary.
package condense

import (
	"context"

	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/view"
	"github.com/haasonsaas/nexus/pkg/events"
)

// Result is the outcome of a Condense call.
type Result struct {
	Unchanged    bool
	Condensation *events.Condensation
}

// Condenser decides, given the current view, whether to forget a prefix of
// the log. Called at most once per step, after building the View and before
// the LLM call, and only when the View reports an unhandled
// CondensationRequest; a condenser's own trigger (e.g. an event-count
// threshold) is evaluated only within such a call.
type Condenser interface {
	Condense(ctx context.Context, v view.View) (Result, error)
}

// NoopCondenser never condenses. It is the default when no condenser is
// configured, so step §4.3's condensation check is effectively skipped.
type NoopCondenser struct{}

func (NoopCondenser) Condense(context.Context, view.View) (Result, error) {
	return Result{Unchanged: true}, nil
}

// ThresholdConfig configures ThresholdCondenser.
type ThresholdConfig struct {
	// MaxEvents triggers condensation once the View exceeds this many
	// LLM-convertible events.
	MaxEvents int
	// KeepLastN events are always left uncondensed, immediately preceding
	// the new turn.
	KeepLastN int
	// SummaryPrompt is prepended to the forgotten prefix when asking the
	// LLM to summarize it.
	SummaryPrompt string
}

// DefaultThresholdConfig mirrors the teacher's session-compaction defaults
// scaled to the agent-step event granularity.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MaxEvents:     100,
		KeepLastN:     20,
		SummaryPrompt: "Summarize the following conversation history concisely, preserving key decisions, outcomes, and any pending tasks.",
	}
}

// ThresholdCondenser forgets the oldest events once the View grows past
// MaxEvents, replacing them with an LLM-generated summary.
type ThresholdCondenser struct {
	cfg      ThresholdConfig
	provider llmclient.Provider
}

// NewThresholdCondenser builds a ThresholdCondenser that asks provider to
// summarize the forgotten prefix.
func NewThresholdCondenser(cfg ThresholdConfig, provider llmclient.Provider) *ThresholdCondenser {
	return &ThresholdCondenser{cfg: cfg, provider: provider}
}

func (c *ThresholdCondenser) Condense(ctx context.Context, v view.View) (Result, error) {
	if len(v.Events) <= c.cfg.MaxEvents {
		return Result{Unchanged: true}, nil
	}

	cut := len(v.Events) - c.cfg.KeepLastN
	if cut <= 0 {
		return Result{Unchanged: true}, nil
	}

	forgotten := v.Events[:cut]
	forgottenIDs := make([]events.ID, 0, len(forgotten))
	for _, e := range forgotten {
		forgottenIDs = append(forgottenIDs, e.EventID())
	}

	summary, err := c.provider.Summarize(ctx, c.cfg.SummaryPrompt, forgotten)
	if err != nil {
		return Result{}, err
	}

	offset := 0
	cond := events.Condensation{
		Base:              events.NewBase(events.SourceEnvironment),
		ForgottenEventIDs: forgottenIDs,
		Summary:           summary,
		SummaryOffset:     &offset,
	}
	return Result{Condensation: &cond}, nil
}
