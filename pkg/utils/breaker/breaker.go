// Package breaker provides the circuit breaker settings shared by the
// outbound HTTP clients.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mpapenbr/racestrategy-service-go/log"
)

type (
	Option func(*gobreaker.Settings)
)

// WithConsecutiveFailures sets the number of consecutive failures which opens the breaker
func WithConsecutiveFailures(n uint32) Option {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithOpenTimeout sets the duration the breaker stays open before probing again
func WithOpenTimeout(d time.Duration) Option {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

func New[T any](name string, opts ...Option) *gobreaker.CircuitBreaker[T] {
	l := log.Default().Named("breaker")
	s := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// a canceled caller says nothing about the health of the remote side
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state changed",
				log.String("name", name),
				log.String("from", from.String()),
				log.String("to", to.String()))
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return gobreaker.NewCircuitBreaker[T](s)
}

// IsOpen reports whether err was returned because the breaker rejected the call
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
