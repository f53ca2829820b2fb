// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/jonathan/erc-protest-agent/internal/llm"
)

// Fake answers Generate calls from a script and records every request.
type Fake struct {
	mu        sync.Mutex
	responses []Response
	requests  []llm.Request
	// Handler, when set, answers every call instead of the script.
	Handler func(ctx context.Context, req llm.Request) (string, error)
}

// Response is one scripted answer.
type Response struct {
	Text string
	Err  error
}

// New returns a Fake that replies with the given answers in order. Once the
// script runs out the last answer repeats.
func New(responses ...Response) *Fake {
	return &Fake{responses: responses}
}

// Text returns a Fake that always answers text.
func Text(text string) *Fake {
	return New(Response{Text: text})
}

// Failing returns a Fake that always fails with err.
func Failing(err error) *Fake {
	return New(Response{Err: err})
}

// Generate implements llm.Client.
func (f *Fake) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.Handler
	var resp Response
	if len(f.responses) > 0 {
		resp = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	f.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if resp.Err != nil {
		return "", resp.Err
	}
	if resp.Text == "" {
		return "", llm.ErrEmptyResponse
	}
	return resp.Text, nil
}

// Requests returns a copy of every request seen.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Calls returns the number of Generate calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// GetModel implements llm.Client.
func (f *Fake) GetModel(tier llm.ModelTier) string { return "fake-" + string(tier) }

// Provider implements llm.Client.
func (f *Fake) Provider() llm.Provider { return llm.Provider("fake") }

// Close implements llm.Client.
func (f *Fake) Close() error { return nil }

var _ llm.Client = (*Fake)(nil)
