// Package broadcast fans out the values of a source channel to any number of
// subscribers. Slow subscribers miss values instead of blocking the others.
package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racestrategy-service-go/log"
)

const DefaultSkipTimeout = 50 * time.Millisecond

type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type (
	Option[T any] func(*server[T])
	server[T any] struct {
		name           string
		source         <-chan T
		listeners      []chan T
		addListener    chan chan T
		removeListener chan (<-chan T)
		ctx            context.Context
		cancel         context.CancelFunc
		skipTimeout    time.Duration
		bufSize        int
		l              *log.Logger
		numRcv         atomic.Int64
		numSnd         atomic.Int64
		numSkip        atomic.Int64
		numListener    atomic.Int64
	}
)

// WithSkipTimeout sets how long a value waits for a busy subscriber
func WithSkipTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) {
		s.skipTimeout = d
	}
}

// WithBufferSize sets the channel capacity of new subscriptions
func WithBufferSize[T any](n int) Option[T] {
	return func(s *server[T]) {
		s.bufSize = n
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(s *server[T]) {
		s.l = l
	}
}

// New starts a server forwarding values of source until Close is called
// or source is closed.
func New[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		skipTimeout:    DefaultSkipTimeout,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	go s.serve()
	return s
}

// Subscribe returns a channel receiving all values from now on.
// After Close the returned channel is already closed.
func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T, s.bufSize)
	select {
	case s.addListener <- ch:
	case <-s.ctx.Done():
		close(ch)
	}
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	select {
	case s.removeListener <- ch:
	case <-s.ctx.Done():
	}
}

func (s *server[T]) Close() {
	s.l.Info("closing broadcast server",
		log.String("name", s.name),
		log.Int64("rcv", s.numRcv.Load()),
		log.Int64("snd", s.numSnd.Load()),
		log.Int64("skip", s.numSkip.Load()))
	s.cancel()
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("rss.broadcast")
	attrs := metric.WithAttributes(attribute.String("name", s.name))
	for _, d := range []struct {
		name  string
		desc  string
		value *atomic.Int64
	}{
		{"rss.broadcast.rcv", "Number of received messages", &s.numRcv},
		{"rss.broadcast.snd", "Number of sent messages", &s.numSnd},
		{"rss.broadcast.skip", "Number of skipped messages", &s.numSkip},
		{"rss.broadcast.listener", "Number of listeners", &s.numListener},
	} {
		v := d.value
		if _, err := meter.Int64ObservableGauge(d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(v.Load(), attrs)
				return nil
			})); err != nil {
			s.l.Error("failed to register metric",
				log.String("metric", d.name), log.ErrorField(err))
		}
	}
}

//nolint:cyclop // select loop
func (s *server[T]) serve() {
	defer func() {
		for _, ch := range s.listeners {
			close(ch)
		}
		s.listeners = nil
		s.numListener.Store(0)
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.addListener:
			s.listeners = append(s.listeners, ch)
			s.numListener.Store(int64(len(s.listeners)))
		case ch := <-s.removeListener:
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
			s.numListener.Store(int64(len(s.listeners)))
		case msg, ok := <-s.source:
			if !ok {
				s.l.Debug("source closed", log.String("name", s.name))
				s.cancel()
				return
			}
			s.numRcv.Add(1)
			s.dispatch(msg)
		}
	}
}

func (s *server[T]) dispatch(msg T) {
	for _, listener := range s.listeners {
		select {
		case listener <- msg:
			s.numSnd.Add(1)
		case <-time.After(s.skipTimeout):
			s.numSkip.Add(1)
		}
	}
}
