// Package source decides which telemetry the strategy pipeline works on.
package source

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

var (
	ErrNoTelemetryAvailable = errors.New("no telemetry available")
	ErrUnreachable          = errors.New("telemetry source unreachable")
)

// TelemetrySource is a remote provider of enriched records (pull fallback).
// Implementations return ErrUnreachable (wrapped) on failure.
type TelemetrySource interface {
	Fetch(ctx context.Context, limit int) ([]model.EnrichedRecord, error)
}

// BufferReader is the read side of the telemetry buffer
type BufferReader interface {
	Snapshot(limit int) []model.EnrichedRecord
}

type Origin string

const (
	OriginExplicit Origin = "explicit"
	OriginBuffer   Origin = "buffer"
	OriginExternal Origin = "external"
)

type Resolution struct {
	Records []model.EnrichedRecord // chronological unless supplied explicitly
	Origin  Origin
}

const (
	DefaultLimit   = 10
	DefaultTimeout = 5 * time.Second
)

type (
	Option   func(*Resolver)
	Resolver struct {
		buffer   BufferReader
		external TelemetrySource
		limit    int
		timeout  time.Duration
		l        *log.Logger
	}
)

func WithBuffer(b BufferReader) Option {
	return func(r *Resolver) {
		r.buffer = b
	}
}

func WithExternal(s TelemetrySource) Option {
	return func(r *Resolver) {
		r.external = s
	}
}

func WithLimit(n int) Option {
	return func(r *Resolver) {
		r.limit = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.l = l
	}
}

func NewResolver(opts ...Option) *Resolver {
	ret := &Resolver{
		limit:   DefaultLimit,
		timeout: DefaultTimeout,
		l:       log.Default().Named("source"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Resolve picks the telemetry with strict precedence: explicit records,
// buffer contents, external pull. Lower ranked sources are not consulted once
// a higher ranked one yields data. Resolve never modifies the buffer.
func (r *Resolver) Resolve(ctx context.Context, explicit []model.EnrichedRecord) (*Resolution, error) {
	if len(explicit) > 0 {
		return &Resolution{Records: explicit, Origin: OriginExplicit}, nil
	}
	if r.buffer != nil {
		if recs := r.buffer.Snapshot(r.limit); len(recs) > 0 {
			return &Resolution{Records: recs, Origin: OriginBuffer}, nil
		}
	}
	if r.external == nil {
		return nil, ErrNoTelemetryAvailable
	}
	pullCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	recs, err := r.external.Fetch(pullCtx, r.limit)
	if err != nil {
		r.l.Warn("external telemetry pull failed", log.ErrorField(err))
		return nil, fmt.Errorf("%w: %w", ErrNoTelemetryAvailable, err)
	}
	if len(recs) == 0 {
		return nil, ErrNoTelemetryAvailable
	}
	recs = slices.Clone(recs)
	slices.SortStableFunc(recs, func(a, b model.EnrichedRecord) int { return a.Lap - b.Lap })
	r.l.Debug("using external telemetry", log.Int("records", len(recs)))
	return &Resolution{Records: recs, Origin: OriginExternal}, nil
}
