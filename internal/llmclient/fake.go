package llmclient

import (
	"context"
	"sync"

	"github.com/haasonsaas/nexus/pkg/events"
)

// FakeProvider is a deterministic, in-memory Provider for tests: it returns
// a scripted sequence of StepResults, one per call, and records every view
// it was given so assertions can inspect exactly what the step loop sent.
type FakeProvider struct {
	mu      sync.Mutex
	results []StepResult
	errs    []error
	calls   int
	seen    [][]events.Event

	SummarizeFunc func(ctx context.Context, prompt string, forgotten []events.Event) (string, error)
}

// NewFakeProvider builds a FakeProvider that returns results in order, one
// per Step call; calling Step more times than len(results) repeats the last
// result.
func NewFakeProvider(results ...StepResult) *FakeProvider {
	return &FakeProvider{results: results}
}

// WithErrors configures Step to fail with errs[n] on the n-th call before
// falling back to results once errs is exhausted. Used to exercise the step
// loop's retry decorator.
func (f *FakeProvider) WithErrors(errs ...error) *FakeProvider {
	f.errs = errs
	return f
}

func (f *FakeProvider) Step(ctx context.Context, model string, systemPrompt string, tools []events.ToolSchema, view []events.Event) (StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen = append(f.seen, view)
	idx := f.calls
	f.calls++

	if idx < len(f.errs) && f.errs[idx] != nil {
		return StepResult{}, f.errs[idx]
	}
	if len(f.results) == 0 {
		return StepResult{}, nil
	}
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

func (f *FakeProvider) Summarize(ctx context.Context, prompt string, forgotten []events.Event) (string, error) {
	if f.SummarizeFunc != nil {
		return f.SummarizeFunc(ctx, prompt, forgotten)
	}
	return "summary", nil
}

// Calls reports how many times Step was invoked.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// SeenViews returns every view Step was called with, in call order.
func (f *FakeProvider) SeenViews() [][]events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen
}

// fakeRetryableError lets tests script a retryable provider failure.
type fakeRetryableError struct{ msg string }

func (e *fakeRetryableError) Error() string   { return e.msg }
func (e *fakeRetryableError) Retryable() bool { return true }

// NewFakeRetryableError builds a retryable error for FakeProvider.WithErrors.
func NewFakeRetryableError(msg string) error {
	return &fakeRetryableError{msg: msg}
}
