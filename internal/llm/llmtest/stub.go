// Package llmtest provides a scripted Inference for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/xaenox/recipebot/internal/llm"
)

// ErrScripted is a canned provider failure.
var ErrScripted = errors.New("llmtest: scripted failure")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Stub answers inference calls from a script and records every request.
type Stub struct {
	mu      sync.Mutex
	handler func(req llm.Request) (string, error)
	calls   []llm.Request
}

// Func returns a stub that delegates to fn.
func Func(fn func(req llm.Request) (string, error)) *Stub {
	return &Stub{handler: fn}
}

// Sequence returns a stub answering with replies in order. Calls beyond the
// script fail with ErrScripted.
func Sequence(replies ...Reply) *Stub {
	var next int
	return Func(func(llm.Request) (string, error) {
		if next >= len(replies) {
			return "", ErrScripted
		}
		r := replies[next]
		next++
		return r.Text, r.Err
	})
}

// Pipeline routes by call shape: deterministic text calls are
// classification, deterministic structured calls are extraction and creative
// calls are composition.
func Pipeline(classify, extract, compose Reply) *Stub {
	return Func(func(req llm.Request) (string, error) {
		switch {
		case req.Mode == llm.Creative:
			return compose.Text, compose.Err
		case req.Format == llm.Structured:
			return extract.Text, extract.Err
		default:
			return classify.Text, classify.Err
		}
	})
}

func (s *Stub) Infer(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.handler(req)
}

// Calls returns a copy of the recorded requests.
func (s *Stub) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}
