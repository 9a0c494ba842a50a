// Package service exposes the operations of the strategy service independent
// of any transport: ingestion, generation, buffer introspection and reset.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/normalize"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/processing/enrich"
)

type Status string

const (
	StatusProcessed         Status = "received_and_processed"
	StatusWaitingForData    Status = "received_waiting_for_more_data"
	StatusGenerationFailed  Status = "received_but_generation_failed"
	StatusGenerationStarted Status = "received_generation_started"
)

// EnrichedSink receives every enriched record, e.g. to forward it to the next stage
type EnrichedSink interface {
	PublishEnriched(ctx context.Context, session string, rec model.EnrichedRecord,
		rc *model.RaceContext) error
}

type IngestResult struct {
	Session  string               `json:"session"`
	Enriched model.EnrichedRecord `json:"enriched"`
	Context  *model.RaceContext   `json:"race_context,omitempty"`
	Status   Status               `json:"status"`
	Trigger  pipeline.Trigger     `json:"trigger"`
	// set if the triggered run finished while the ingestion waited for it
	Strategies      *pipeline.Result `json:"strategies,omitempty"`
	GenerationError string           `json:"generation_error,omitempty"`
}

type GenerateRequest struct {
	Session   string
	Telemetry []model.EnrichedRecord
	Context   *model.RaceContext
	Rank      bool
}

type BufferInfo struct {
	Session  string                 `json:"session"`
	Size     int                    `json:"size"`
	Capacity int                    `json:"capacity"`
	Records  []model.EnrichedRecord `json:"records"`
	Context  *model.RaceContext     `json:"latest_context,omitempty"`
}

type SessionState struct {
	Session    string           `json:"session"`
	State      pipeline.State   `json:"state"`
	InFlight   bool             `json:"in_flight"`
	BufferSize int              `json:"buffer_size"`
	LastResult *pipeline.Result `json:"last_result,omitempty"`
}

type (
	Option  func(*Service)
	Service struct {
		normalizer *normalize.Normalizer
		engine     *enrich.Engine
		pipeline   *pipeline.Pipeline
		sinks      []EnrichedSink
		await      time.Duration
		ingested   metric.Int64Counter
		enrichTime metric.Float64Histogram
		l          *log.Logger
	}
)

func WithNormalizer(n *normalize.Normalizer) Option {
	return func(s *Service) {
		s.normalizer = n
	}
}

func WithEngine(e *enrich.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

func WithEnrichedSinks(sinks ...EnrichedSink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithAwaitGeneration lets ingestion wait up to d for a triggered run so the
// strategies can be returned with the ingestion result. 0 disables waiting.
func WithAwaitGeneration(d time.Duration) Option {
	return func(s *Service) {
		s.await = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.l = l
	}
}

func New(p *pipeline.Pipeline, opts ...Option) *Service {
	ret := &Service{
		pipeline: p,
		l:        log.Default().Named("service"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.normalizer == nil {
		ret.normalizer, _ = normalize.New(normalize.DefaultAliases)
	}
	if ret.engine == nil {
		ret.engine = enrich.NewEngine()
	}
	meter := otel.Meter("rss.service")
	var err error
	if ret.ingested, err = meter.Int64Counter("rss.ingest.records",
		metric.WithDescription("Number of ingested telemetry records"),
		metric.WithUnit("{count}")); err != nil {
		ret.l.Error("failed to register metric", log.ErrorField(err))
	}
	if ret.enrichTime, err = meter.Float64Histogram("rss.ingest.enrich",
		metric.WithDescription("processing of a raw telemetry record"),
		metric.WithUnit("s")); err != nil {
		ret.l.Error("failed to register metric", log.ErrorField(err))
	}
	return ret
}

// IngestRaw normalizes and enriches a vendor payload and feeds the result
// into the session buffer.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) IngestRaw(ctx context.Context, session string, raw map[string]any) (
	*IngestResult, error,
) {
	rec, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return s.IngestTelemetry(ctx, session, rec)
}

// IngestTelemetry enriches a canonical record and feeds the result into the
// session buffer. Only invalid telemetry fails, generation never does.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) IngestTelemetry(
	ctx context.Context,
	session string,
	rec *model.TelemetryRecord,
) (*IngestResult, error) {
	start := time.Now()
	enriched, rc, err := s.engine.Enrich(session, rec)
	if err != nil {
		return nil, err
	}
	if s.enrichTime != nil {
		s.enrichTime.Record(ctx, time.Since(start).Seconds())
	}
	for _, sink := range s.sinks {
		if err := sink.PublishEnriched(ctx, session, enriched, rc); err != nil {
			s.l.Warn("forwarding enriched record failed",
				log.String("session", session), log.ErrorField(err))
		}
	}
	return s.IngestEnriched(ctx, session, enriched, rc), nil
}

// IngestEnriched stores an already enriched record (webhook push) and
// evaluates the auto-trigger.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Service) IngestEnriched(
	ctx context.Context,
	session string,
	rec model.EnrichedRecord,
	rc *model.RaceContext,
) *IngestResult {
	tr := s.pipeline.OnIngest(session, rec, rc)
	ret := &IngestResult{
		Session:  session,
		Enriched: rec,
		Context:  rc,
		Trigger:  tr,
		Status:   StatusProcessed,
	}
	switch {
	case tr.Reason == pipeline.TriggerBelowThreshold:
		ret.Status = StatusWaitingForData
	case tr.Fired:
		ret.Status = StatusGenerationStarted
		if s.await > 0 {
			s.awaitRun(ctx, ret)
		}
	}
	if s.ingested != nil {
		s.ingested.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(ret.Status))))
	}
	s.l.Debug("ingested",
		log.String("session", session),
		log.Int("lap", rec.Lap),
		log.String("status", string(ret.Status)))
	return ret
}

func (s *Service) awaitRun(ctx context.Context, ret *IngestResult) {
	waitCtx, cancel := context.WithTimeout(ctx, s.await)
	defer cancel()
	res, ok := ret.Trigger.Wait(waitCtx)
	if !ok {
		return
	}
	if res.State == pipeline.StateFailed {
		ret.Status = StatusGenerationFailed
		ret.GenerationError = res.Error
		return
	}
	ret.Status = StatusProcessed
	ret.Strategies = res
}

// Generate runs the pipeline synchronously
func (s *Service) Generate(ctx context.Context, req *GenerateRequest) (*pipeline.Result, error) {
	return s.pipeline.Run(ctx, pipeline.Request{
		Session:   req.Session,
		Telemetry: req.Telemetry,
		Context:   req.Context,
		Rank:      req.Rank,
	})
}

// BufferInfo returns size and the most recent limit records of the session buffer
func (s *Service) BufferInfo(session string, limit int) *BufferInfo {
	ret := &BufferInfo{Session: session, Records: []model.EnrichedRecord{}}
	b, ok := s.pipeline.Buffers().Lookup(session)
	if !ok {
		return ret
	}
	ret.Size = b.Len()
	ret.Capacity = b.Cap()
	ret.Records = b.Snapshot(limit)
	ret.Context, _ = b.LatestContext()
	return ret
}

func (s *Service) State(session string) *SessionState {
	ret := &SessionState{
		Session:  session,
		State:    s.pipeline.State(session),
		InFlight: s.pipeline.InFlight(session),
	}
	if b, ok := s.pipeline.Buffers().Lookup(session); ok {
		ret.BufferSize = b.Len()
	}
	ret.LastResult, _ = s.pipeline.LastResult(session)
	return ret
}

// Reset discards enrichment state, buffer and pipeline bookkeeping of session
func (s *Service) Reset(session string) {
	s.engine.Reset(session)
	s.pipeline.ResetSession(session)
	s.l.Info("session reset", log.String("session", session))
}

// Sessions returns the keys of all sessions with buffered data
func (s *Service) Sessions() []string {
	return s.pipeline.Buffers().Sessions()
}
