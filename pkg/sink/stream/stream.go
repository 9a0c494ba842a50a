// Package stream makes pipeline results available to live subscribers.
package stream

import (
	"context"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/broadcast"
)

const subscriberBuffer = 8

type (
	Option func(*Hub)
	Hub    struct {
		source chan *pipeline.Result
		bcst   broadcast.Server[*pipeline.Result]
		l      *log.Logger
	}
)

func WithLogger(l *log.Logger) Option {
	return func(h *Hub) {
		h.l = l
	}
}

func New(opts ...Option) *Hub {
	ret := &Hub{
		source: make(chan *pipeline.Result),
		l:      log.Default().Named("sink.stream"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.bcst = broadcast.New("results", ret.source,
		broadcast.WithBufferSize[*pipeline.Result](subscriberBuffer),
		broadcast.WithLogger[*pipeline.Result](ret.l))
	return ret
}

// Deliver implements pipeline.Sink
func (h *Hub) Deliver(ctx context.Context, res *pipeline.Result) error {
	select {
	case h.source <- res:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns the results of session, all sessions if session is empty.
// The channel is closed when ctx is done or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, session string) <-chan *pipeline.Result {
	in := h.bcst.Subscribe()
	out := make(chan *pipeline.Result, subscriberBuffer)
	go func() {
		defer close(out)
		defer h.bcst.CancelSubscription(in)
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-in:
				if !ok {
					return
				}
				if session != "" && res.Session != session {
					continue
				}
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (h *Hub) Close() {
	h.bcst.Close()
}
