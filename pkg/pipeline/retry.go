package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/parse"
)

// Class is the typed outcome of a single attempt
type Class int

const (
	ClassSuccess Class = iota
	ClassMalformed
	ClassTimeout
	ClassServiceError
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassMalformed:
		return "malformed"
	case ClassTimeout:
		return "timeout"
	default:
		return "service_error"
	}
}

// BackoffPolicy computes the pause before the next attempt.
// Scale multiplies the base delays, Cap bounds the result (0 means no cap).
type BackoffPolicy struct {
	Scale float64
	Cap   time.Duration
}

//nolint:gochecknoglobals // default policy
var DefaultBackoff = BackoffPolicy{Scale: 1, Cap: 30 * time.Second}

// Backoff returns the delay after the failed attempt (1-based) using DefaultBackoff
func Backoff(attempt int, c Class) time.Duration {
	return DefaultBackoff.Delay(attempt, c)
}

// Delay returns the pause after the failed attempt (1-based).
// Malformed output is retried immediately once with a stricter prompt, timeouts
// wait longest.
func (p BackoffPolicy) Delay(attempt int, c Class) time.Duration {
	var base time.Duration
	switch c {
	case ClassSuccess:
		return 0
	case ClassMalformed:
		if attempt <= 1 {
			return 0
		}
		base = 500 * time.Millisecond * time.Duration(attempt)
	case ClassTimeout:
		base = 5 * time.Second * time.Duration(attempt)
	default:
		base = 2 * time.Second * time.Duration(attempt)
	}
	d := time.Duration(float64(base) * p.Scale)
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return max(0, d)
}

// classify maps an error of a single attempt to its class
func classify(err error) Class {
	switch {
	case err == nil:
		return ClassSuccess
	case errors.Is(err, parse.ErrMalformed):
		return ClassMalformed
	case errors.Is(err, reasoning.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	default:
		return ClassServiceError
	}
}

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
