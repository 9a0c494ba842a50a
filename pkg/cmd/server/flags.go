package server

import (
	"github.com/spf13/pflag"

	"github.com/mpapenbr/racestrategy-service-go/pkg/config"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning/gemini"
)

// AddPipelineFlags registers the flags needed to build the strategy pipeline.
// They are shared by all commands running a pipeline in process.
//
//nolint:funlen // flag list
func AddPipelineFlags(fs *pflag.FlagSet) {
	fs.StringVar(&config.GeminiAPIKey,
		"gemini-api-key",
		"",
		"api key of the reasoning service")
	fs.StringVar(&config.GeminiModel,
		"gemini-model",
		gemini.DefaultModel,
		"model used for generation and ranking")
	fs.StringVar(&config.GeminiBaseURL,
		"gemini-base-url",
		gemini.DefaultBaseURL,
		"base url of the reasoning service")
	fs.StringVar(&config.GeminiTimeout,
		"gemini-timeout",
		"30s",
		"timeout of a single reasoning request")
	fs.BoolVar(&config.DemoMode,
		"demo-mode",
		false,
		"cache reasoning responses by prompt")
	fs.StringVar(&config.DemoCacheTTL,
		"demo-cache-ttl",
		"1h",
		"lifetime of cached reasoning responses (0 keeps them forever)")
	fs.BoolVar(&config.FastMode,
		"fast-mode",
		false,
		"use the short generation prompt")
	fs.IntVar(&config.BufferCapacity,
		"buffer-capacity",
		100,
		"enriched records kept per session")
	fs.IntVar(&config.TriggerThreshold,
		"trigger-threshold",
		pipeline.DefaultThreshold,
		"buffered records needed before a run is triggered")
	fs.IntVar(&config.MaxAttempts,
		"max-attempts",
		pipeline.DefaultMaxAttempts,
		"generation attempts per run")
	fs.IntVar(&config.CandidateCount,
		"candidates",
		pipeline.DefaultCandidates,
		"strategies requested per generation")
	fs.IntVar(&config.TopK,
		"top-k",
		pipeline.DefaultTopK,
		"strategies kept by the ranking")
	fs.BoolVar(&config.AutoRank,
		"auto-rank",
		true,
		"rank the candidates of triggered runs")
	fs.BoolVar(&config.WetExemption,
		"wet-exemption",
		true,
		"skip the two compound rule in wet races")
	fs.Float64Var(&config.BackoffScale,
		"backoff-scale",
		1,
		"factor applied to retry delays")
	fs.StringVar(&config.BackoffCap,
		"backoff-cap",
		"30s",
		"upper bound of a retry delay")
	fs.StringVar(&config.GenerateTimeout,
		"generate-timeout",
		"30s",
		"timeout of the generation stage")
	fs.StringVar(&config.RankTimeout,
		"rank-timeout",
		"60s",
		"timeout of the ranking stage")
	fs.StringVar(&config.TelemetrySourceURL,
		"telemetry-source-url",
		"",
		"remote enrichment service used when a session buffer is empty")
	fs.IntVar(&config.TelemetryLimit,
		"telemetry-limit",
		10,
		"enriched records used per run")
}
