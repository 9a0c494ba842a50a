package server

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/buffer"
	"github.com/mpapenbr/racestrategy-service-go/pkg/config"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning/demo"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning/gemini"
	"github.com/mpapenbr/racestrategy-service-go/pkg/service"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/natssink"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/radio"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/stream"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/webhook"
	"github.com/mpapenbr/racestrategy-service-go/pkg/source/httpsource"
)

// Components holds the wired service and everything that needs a shutdown
type Components struct {
	Service  *service.Service
	Pipeline *pipeline.Pipeline
	Hub      *stream.Hub // nil unless requested
	closers  []func()
}

type (
	BuildOption  func(*buildConfig)
	buildConfig struct {
		withHub   bool
		withSinks bool
		reasoner  reasoning.Service
	}
)

// WithStream adds the live result stream
func WithStream() BuildOption {
	return func(c *buildConfig) {
		c.withHub = true
	}
}

// WithConfiguredSinks adds the webhook, nats and radio sinks if configured
func WithConfiguredSinks() BuildOption {
	return func(c *buildConfig) {
		c.withSinks = true
	}
}

// WithReasoner replaces the configured reasoning service
func WithReasoner(r reasoning.Service) BuildOption {
	return func(c *buildConfig) {
		c.reasoner = r
	}
}

// Build wires the service according to the resolved configuration
//
//nolint:funlen // wiring
func Build(opts ...BuildOption) (*Components, error) {
	bc := &buildConfig{}
	for _, opt := range opts {
		opt(bc)
	}
	ret := &Components{}
	reasoner := bc.reasoner
	if reasoner == nil {
		reasoner = newReasoner()
	}

	var (
		pipelineSinks []pipeline.Sink
		enrichedSinks []service.EnrichedSink
	)
	if bc.withHub {
		ret.Hub = stream.New()
		ret.closers = append(ret.closers, ret.Hub.Close)
		pipelineSinks = append(pipelineSinks, ret.Hub)
	}
	if bc.withSinks {
		if config.NextStageURL != "" {
			wh := webhook.New(config.NextStageURL)
			pipelineSinks = append(pipelineSinks, wh)
			enrichedSinks = append(enrichedSinks, wh)
		}
		if config.NatsURL != "" {
			conn, err := nats.Connect(config.NatsURL, nats.Name("rss"))
			if err != nil {
				ret.Close()
				return nil, err
			}
			ret.closers = append(ret.closers, conn.Close)
			pub := natssink.New(conn, natssink.WithPrefix(config.NatsPrefix))
			pipelineSinks = append(pipelineSinks, pub)
			enrichedSinks = append(enrichedSinks, pub)
		}
		if config.RadioDir != "" {
			pipelineSinks = append(pipelineSinks, radio.New(config.RadioDir,
				radio.WithRegion(config.RadioRegion),
				radio.WithVoice(config.RadioVoice)))
		}
	}

	pOpts := []pipeline.Option{
		pipeline.WithBuffers(buffer.NewRegistry(config.BufferCapacity)),
		pipeline.WithTelemetryLimit(config.TelemetryLimit),
		pipeline.WithThreshold(config.TriggerThreshold),
		pipeline.WithMaxAttempts(config.MaxAttempts),
		pipeline.WithCandidates(config.CandidateCount),
		pipeline.WithTopK(config.TopK),
		pipeline.WithFastMode(config.FastMode),
		pipeline.WithAutoRank(config.AutoRank),
		pipeline.WithWetExemption(config.WetExemption),
		pipeline.WithStageTimeouts(
			duration("generate-timeout", config.GenerateTimeout, pipeline.DefaultGenerateTimeout),
			duration("rank-timeout", config.RankTimeout, pipeline.DefaultRankTimeout)),
		pipeline.WithBackoff(pipeline.BackoffPolicy{
			Scale: config.BackoffScale,
			Cap:   duration("backoff-cap", config.BackoffCap, pipeline.DefaultBackoff.Cap),
		}),
		pipeline.WithSinks(pipelineSinks...),
	}
	if config.TelemetrySourceURL != "" {
		pOpts = append(pOpts, pipeline.WithExternalSource(httpsource.New(config.TelemetrySourceURL)))
	}
	ret.Pipeline = pipeline.New(reasoner, pOpts...)
	ret.closers = append(ret.closers, ret.Pipeline.Close)

	ret.Service = service.New(ret.Pipeline,
		service.WithEnrichedSinks(enrichedSinks...),
		service.WithAwaitGeneration(duration("await-generation", config.AwaitGeneration, 0)))
	return ret, nil
}

// Close shuts down in reverse order of creation
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func newReasoner() reasoning.Service {
	var ret reasoning.Service = gemini.New(config.GeminiAPIKey,
		gemini.WithBaseURL(config.GeminiBaseURL),
		gemini.WithModel(config.GeminiModel),
		gemini.WithTimeout(duration("gemini-timeout", config.GeminiTimeout, gemini.DefaultTimeout)))
	if config.GeminiAPIKey == "" {
		log.Warn("no api key for the reasoning service configured")
	}
	if config.DemoMode {
		log.Info("demo mode enabled, reasoning responses are cached")
		ret = demo.New(ret,
			demo.WithExpiration(duration("demo-cache-ttl", config.DemoCacheTTL, time.Hour)))
	}
	return ret
}

func duration(name, value string, defaultVal time.Duration) time.Duration {
	if value == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("invalid duration, using default",
			log.String("flag", name),
			log.String("value", value),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return d
}
