// Package pipeline drives the strategy generation for a session:
// telemetry resolution, candidate generation, validation and the optional
// ranking stage. Runs are either requested explicitly or triggered
// automatically on ingestion.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/buffer"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/pkg/source"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/analysis"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/parse"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/prompt"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/validate"
)

const (
	DefaultThreshold       = 3
	DefaultMaxAttempts     = 3
	DefaultCandidates      = 5
	DefaultTopK            = 3
	DefaultGenerateTimeout = 30 * time.Second
	DefaultRankTimeout     = 60 * time.Second

	generationTemperature = 0.9
	rankingTemperature    = 0.3

	stageGeneration = "generation"
	stageRanking    = "ranking"
)

// Request describes a pipeline run. Telemetry and Context are optional, the
// session buffer is used when they are missing.
type Request struct {
	Session   string
	Telemetry []model.EnrichedRecord
	Context   *model.RaceContext
	Rank      bool
	runID     string
}

type Result struct {
	RunID       string                       `json:"run_id"`
	Session     string                       `json:"session"`
	State       State                        `json:"state"`
	Transitions []Transition                 `json:"transitions"`
	Origin      source.Origin                `json:"telemetry_origin,omitempty"`
	Summary     *analysis.Summary            `json:"summary,omitempty"`
	Context     *model.RaceContext           `json:"race_context,omitempty"`
	Candidates  []model.Candidate            `json:"strategies"`
	Rejected    map[int][]validate.Violation `json:"rejected,omitempty"`
	Ranking     *model.Ranking               `json:"ranking,omitempty"`
	// Degraded is set if the ranking stage failed and the unranked list is returned
	Degraded string `json:"degraded,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Sink receives the results of completed runs
type Sink interface {
	Deliver(ctx context.Context, res *Result) error
}

type SinkFunc func(ctx context.Context, res *Result) error

func (f SinkFunc) Deliver(ctx context.Context, res *Result) error {
	return f(ctx, res)
}

type (
	Option   func(*Pipeline)
	Pipeline struct {
		reasoner        reasoning.Service
		buffers         *buffer.Registry
		external        source.TelemetrySource
		telemetryLimit  int
		resolverTimeout time.Duration
		threshold       int
		maxAttempts     int
		candidates      int
		topK            int
		fast            bool
		autoRank        bool
		wetExemption    bool
		generateTimeout time.Duration
		rankTimeout     time.Duration
		backoff         BackoffPolicy
		sleep           SleepFunc
		sinks           []Sink
		metrics         *metrics
		tracer          trace.Tracer
		l               *log.Logger

		mu       sync.Mutex
		sessions map[string]*sessionRun

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup
	}
)

func WithBuffers(r *buffer.Registry) Option {
	return func(p *Pipeline) {
		p.buffers = r
	}
}

func WithExternalSource(s source.TelemetrySource) Option {
	return func(p *Pipeline) {
		p.external = s
	}
}

func WithTelemetryLimit(n int) Option {
	return func(p *Pipeline) {
		p.telemetryLimit = n
	}
}

func WithResolverTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.resolverTimeout = d
	}
}

// WithThreshold sets the number of buffered records required for auto-trigger
func WithThreshold(n int) Option {
	return func(p *Pipeline) {
		p.threshold = n
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		p.maxAttempts = max(1, n)
	}
}

func WithCandidates(n int) Option {
	return func(p *Pipeline) {
		p.candidates = n
	}
}

func WithTopK(n int) Option {
	return func(p *Pipeline) {
		p.topK = n
	}
}

// WithFastMode uses the condensed prompts
func WithFastMode(b bool) Option {
	return func(p *Pipeline) {
		p.fast = b
	}
}

// WithAutoRank enables the ranking stage for auto-triggered runs
func WithAutoRank(b bool) Option {
	return func(p *Pipeline) {
		p.autoRank = b
	}
}

func WithWetExemption(b bool) Option {
	return func(p *Pipeline) {
		p.wetExemption = b
	}
}

func WithStageTimeouts(generate, rank time.Duration) Option {
	return func(p *Pipeline) {
		p.generateTimeout = generate
		p.rankTimeout = rank
	}
}

func WithBackoff(b BackoffPolicy) Option {
	return func(p *Pipeline) {
		p.backoff = b
	}
}

func WithSleep(s SleepFunc) Option {
	return func(p *Pipeline) {
		p.sleep = s
	}
}

func WithSinks(s ...Sink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, s...)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.l = l
	}
}

func New(reasoner reasoning.Service, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Pipeline{
		reasoner:        reasoner,
		telemetryLimit:  source.DefaultLimit,
		resolverTimeout: source.DefaultTimeout,
		threshold:       DefaultThreshold,
		maxAttempts:     DefaultMaxAttempts,
		candidates:      DefaultCandidates,
		topK:            DefaultTopK,
		wetExemption:    true,
		generateTimeout: DefaultGenerateTimeout,
		rankTimeout:     DefaultRankTimeout,
		backoff:         DefaultBackoff,
		sleep:           sleepCtx,
		l:               log.Default().Named("pipeline"),
		sessions:        make(map[string]*sessionRun),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.buffers == nil {
		ret.buffers = buffer.NewRegistry(buffer.DefaultCapacity)
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("rss.pipeline")
	}
	ret.metrics = newMetrics(ret.l)
	return ret
}

// Buffers returns the registry holding the session buffers
func (p *Pipeline) Buffers() *buffer.Registry {
	return p.buffers
}

// Run executes the pipeline for req. On failure the returned result carries
// the transitions up to the Failed state together with the error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID:      lo.Ternary(req.runID != "", req.runID, uuid.NewString()),
		Session:    req.Session,
		State:      StateIdle,
		Candidates: []model.Candidate{},
	}
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("session", req.Session),
		attribute.String("run", res.RunID),
		attribute.Bool("rank", req.Rank)))
	defer span.End()
	sr := p.session(req.Session)
	gen := sr.generation()
	l := p.l.With(log.String("session", req.Session), log.String("run", res.RunID))
	move := func(s State) {
		res.Transitions = append(res.Transitions, Transition{From: res.State, To: s, At: time.Now()})
		res.State = s
		sr.setState(gen, s)
		span.AddEvent(s.String())
	}
	fail := func(err error) (*Result, error) {
		move(StateFailed)
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Error)
		p.metrics.run(ctx, StateFailed, time.Since(start))
		l.Warn("run failed", log.ErrorField(err))
		sr.setLast(gen, res)
		return res, err
	}

	move(StateAwaitingTelemetry)
	buf := p.buffers.Get(req.Session)
	resolver := source.NewResolver(
		source.WithBuffer(buf),
		source.WithExternal(p.external),
		source.WithLimit(p.telemetryLimit),
		source.WithTimeout(p.resolverTimeout),
		source.WithLogger(l))
	resolution, err := resolver.Resolve(ctx, req.Telemetry)
	if err != nil {
		return fail(err)
	}
	res.Origin = resolution.Origin
	rc := req.Context
	if rc == nil {
		rc, _ = buf.LatestContext()
	}
	if rc == nil {
		return fail(ErrNoRaceContext)
	}
	rc = rc.Clone()
	if rc.RaceInfo.CurrentLap == 0 {
		rc.RaceInfo.CurrentLap = lo.MaxBy(resolution.Records, func(a, b model.EnrichedRecord) bool {
			return a.Lap > b.Lap
		}).Lap
	}
	res.Context = rc
	if rc.RaceInfo.TotalLaps <= rc.RaceInfo.CurrentLap {
		return fail(fmt.Errorf("%w: total laps unknown", ErrNoRaceContext))
	}
	telemetry := chronological(resolution.Records)
	summary := analysis.Summarize(telemetry, rc.RaceInfo.TotalLaps)
	res.Summary = &summary
	in := &prompt.Input{Summary: summary, Context: rc, Telemetry: telemetry}

	move(StateGenerating)
	var cands []model.Candidate
	attempts, err := p.attempt(ctx, l, stageGeneration, p.generateTimeout,
		reasoning.Request{Temperature: generationTemperature, MaxCandidates: p.candidates},
		func(v prompt.Variant) string { return prompt.Generation(in, p.candidates, v) },
		func(text string) (err error) {
			cands, err = parse.Candidates(text)
			return err
		})
	res.Attempts = attempts
	if err != nil {
		return fail(err)
	}

	move(StateValidating)
	valid, rejected := validate.Filter(cands, rc, validate.WithWetExemption(p.wetExemption))
	if len(rejected) > 0 {
		res.Rejected = rejected
		l.Info("candidates rejected",
			log.Int("rejected", len(rejected)), log.Int("valid", len(valid)))
	}
	if len(valid) == 0 {
		return fail(&GenerationFailedError{
			Reason:   ReasonAllIllegal,
			Stage:    stageGeneration,
			Attempts: attempts,
			Rejected: rejected,
		})
	}
	res.Candidates = valid

	if req.Rank {
		move(StateRanking)
		ranking, err := p.rank(ctx, l, in, valid)
		if err != nil {
			res.Degraded = fmt.Sprintf("ranking unavailable: %v", err)
			l.Warn("ranking failed, returning unranked strategies", log.ErrorField(err))
		} else {
			res.Ranking = ranking
		}
	}
	move(StateCompleted)
	p.metrics.run(ctx, StateCompleted, time.Since(start))
	l.Info("run completed",
		log.Int("strategies", len(res.Candidates)),
		log.Bool("ranked", res.Ranking != nil),
		log.Duration("duration", time.Since(start)))
	if !sr.setLast(gen, res) {
		l.Info("session reset during run, result not delivered")
		return res, nil
	}
	p.deliver(res)
	return res, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (p *Pipeline) rank(
	ctx context.Context,
	l *log.Logger,
	in *prompt.Input,
	valid []model.Candidate,
) (*model.Ranking, error) {
	var ranking *model.Ranking
	_, err := p.attempt(ctx, l, stageRanking, p.rankTimeout,
		reasoning.Request{Temperature: rankingTemperature, MaxCandidates: p.topK},
		func(v prompt.Variant) string { return prompt.Ranking(in, valid, p.topK, v) },
		func(text string) error {
			r, err := parse.Ranking(text)
			if err != nil {
				return err
			}
			ranking, err = attachCandidates(r, valid, p.topK)
			return err
		})
	if err != nil {
		return nil, err
	}
	return ranking, nil
}

// attachCandidates keeps the ranked entries which refer to a valid candidate.
// Ranks must be unique and within 1..topK, outcome probabilities must not
// exceed 100 in sum.
func attachCandidates(r *model.Ranking, valid []model.Candidate, topK int) (*model.Ranking, error) {
	byID := lo.KeyBy(valid, func(c model.Candidate) int { return c.StrategyID })
	maxRank := lo.Ternary(topK > 0, topK, len(valid))
	ranks := map[int]bool{}
	ret := &model.Ranking{Situational: r.Situational}
	for _, s := range r.Strategies {
		c, ok := byID[s.StrategyID]
		if !ok {
			continue
		}
		switch {
		case s.Rank < 1 || s.Rank > maxRank:
			return nil, fmt.Errorf("%w: rank %d outside 1..%d", parse.ErrMalformed, s.Rank, maxRank)
		case ranks[s.Rank]:
			return nil, fmt.Errorf("%w: rank %d used twice", parse.ErrMalformed, s.Rank)
		case s.PredictedOutcome.Sum() > 100:
			return nil, fmt.Errorf("%w: outcome probabilities of rank %d sum to %d",
				parse.ErrMalformed, s.Rank, s.PredictedOutcome.Sum())
		}
		ranks[s.Rank] = true
		s.Candidate = c
		if s.StrategyName == "" {
			s.StrategyName = c.StrategyName
		}
		ret.Strategies = append(ret.Strategies, s)
	}
	if len(ret.Strategies) == 0 {
		return nil, fmt.Errorf("%w: ranking refers to unknown strategies", parse.ErrMalformed)
	}
	slices.SortStableFunc(ret.Strategies, func(a, b model.RankedStrategy) int {
		return a.Rank - b.Rank
	})
	return ret, nil
}

// attempt runs the bounded retry loop of a stage.
// Malformed output switches to the strict prompt variant.
//
//nolint:whitespace,funlen // can't make both editor and linter happy
func (p *Pipeline) attempt(
	ctx context.Context,
	l *log.Logger,
	stage string,
	timeout time.Duration,
	req reasoning.Request,
	build func(prompt.Variant) string,
	accept func(text string) error,
) (int, error) {
	variant := lo.Ternary(p.fast, prompt.VariantFast, prompt.VariantNormal)
	var last error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		req.Prompt = build(variant)
		callCtx, span := p.tracer.Start(ctx, stage, trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("variant", variant.String())))
		callCtx, cancel := context.WithTimeout(callCtx, timeout)
		text, err := p.reasoner.Generate(callCtx, req)
		cancel()
		if err == nil {
			err = accept(text)
		}
		class := classify(err)
		span.SetAttributes(attribute.String("outcome", class.String()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.metrics.attempt(ctx, stage, class)
		if class == ClassSuccess {
			return attempt, nil
		}
		last = err
		l.Info("attempt failed",
			log.String("stage", stage),
			log.Int("attempt", attempt),
			log.String("class", class.String()),
			log.ErrorField(err))
		if attempt == p.maxAttempts {
			break
		}
		if class == ClassMalformed {
			variant = prompt.VariantStrict
		}
		if err := p.sleep(ctx, p.backoff.Delay(attempt, class)); err != nil {
			return attempt, &GenerationFailedError{
				Reason: ReasonRetriesExhausted, Stage: stage, Attempts: attempt, Last: err,
			}
		}
	}
	return p.maxAttempts, &GenerationFailedError{
		Reason: ReasonRetriesExhausted, Stage: stage, Attempts: p.maxAttempts, Last: last,
	}
}

func (p *Pipeline) deliver(res *Result) {
	for _, s := range p.sinks {
		if err := s.Deliver(p.ctx, res); err != nil {
			p.l.Warn("sink delivery failed",
				log.String("run", res.RunID), log.ErrorField(err))
		}
	}
}

// State returns the current state of session
func (p *Pipeline) State(session string) State {
	return p.session(session).getState()
}

// LastResult returns the result of the most recent finished run of session
func (p *Pipeline) LastResult(session string) (*Result, bool) {
	r := p.session(session).getLast()
	return r, r != nil
}

func chronological(recs []model.EnrichedRecord) []model.EnrichedRecord {
	ret := slices.Clone(recs)
	slices.SortStableFunc(ret, func(a, b model.EnrichedRecord) int { return a.Lap - b.Lap })
	return ret
}
