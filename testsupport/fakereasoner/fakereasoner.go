// Package fakereasoner provides a scripted reasoning.Service for tests.
package fakereasoner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
)

// Step is one scripted answer
type Step struct {
	text  string
	err   error
	delay time.Duration
	fn    func(req reasoning.Request) (string, error)
}

func Reply(text string) Step {
	return Step{text: text}
}

func Fail(err error) Step {
	return Step{err: err}
}

// Handle answers with fn, e.g. to route on the prompt content
func Handle(fn func(req reasoning.Request) (string, error)) Step {
	return Step{fn: fn}
}

// After delays the answer by d. A canceled context ends the wait with a timeout.
func (s Step) After(d time.Duration) Step {
	s.delay = d
	return s
}

// Fake replays its steps in order, the last step is repeated once exhausted.
type Fake struct {
	mu       sync.Mutex
	steps    []Step
	requests []reasoning.Request
}

func New(steps ...Step) *Fake {
	return &Fake{steps: steps}
}

func (f *Fake) Generate(ctx context.Context, req reasoning.Request) (string, error) {
	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	var s Step
	switch {
	case len(f.steps) == 0:
		s = Fail(fmt.Errorf("%w: no scripted response", reasoning.ErrService))
	case idx < len(f.steps):
		s = f.steps[idx]
	default:
		s = f.steps[len(f.steps)-1]
	}
	f.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", reasoning.ErrTimeout, ctx.Err())
		}
	}
	if s.fn != nil {
		return s.fn(req)
	}
	return s.text, s.err
}

// Calls returns the number of invocations so far
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the received requests
func (f *Fake) Requests() []reasoning.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]reasoning.Request, len(f.requests))
	copy(ret, f.requests)
	return ret
}
