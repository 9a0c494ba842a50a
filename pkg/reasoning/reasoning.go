// Package reasoning defines the contract of the generative reasoning service.
// The service is an opaque capability: submit a prompt, receive text or fail.
package reasoning

import (
	"context"
	"errors"
)

var (
	ErrTimeout = errors.New("reasoning service timeout")
	ErrService = errors.New("reasoning service error")
)

type Request struct {
	Prompt        string
	Temperature   float64
	MaxCandidates int
}

// Service returns the raw text produced for a request.
// Failures are ErrTimeout or ErrService (possibly wrapped).
// The returned text is not guaranteed to be well-formed.
type Service interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Service interface
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
