package config

// this holds the resolved configuration values from CLI
//
//nolint:lll,gochecknoglobals // readablity
var (
	WaitForServices   string // duration to wait for other services to be ready
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, e.g. "*:warn pipeline:debug"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry, "stdout" prints the metrics
	ProfilingPort     int    // port for profiling
	EnvFile           string // optional .env file loaded before the config is resolved

	HTTPAddr string // listen addr of the http api

	GeminiAPIKey  string // api key of the reasoning service
	GeminiModel   string // model used for generation and ranking
	GeminiBaseURL string // base url of the reasoning service
	GeminiTimeout string // per request timeout of the reasoning service
	DemoMode      bool   // cache reasoning responses
	DemoCacheTTL  string // lifetime of cached reasoning responses
	FastMode      bool   // use the short generation prompt

	BufferCapacity   int     // records kept per session
	TriggerThreshold int     // buffered records needed for an auto-triggered run
	MaxAttempts      int     // generation attempts per run
	CandidateCount   int     // candidates requested per generation
	TopK             int     // strategies kept by the ranking
	AutoRank         bool    // rank auto-triggered runs
	WetExemption     bool    // skip the two compound rule in wet races
	BackoffScale     float64 // factor applied to retry delays
	BackoffCap       string  // upper bound of a retry delay
	GenerateTimeout  string  // timeout of a generation call
	RankTimeout      string  // timeout of a ranking call
	AwaitGeneration  string  // how long an ingestion waits for its triggered run, 0 disables

	TelemetrySourceURL string // optional remote enrichment service used as telemetry fallback
	TelemetryLimit     int    // records used per run

	NextStageURL string // callback url receiving enriched records and results
	NatsURL      string // publish results and enriched records if set
	NatsPrefix   string // subject prefix

	KafkaBrokers        []string // consume raw telemetry if set
	KafkaTopic          string
	KafkaGroupID        string
	KafkaDefaultSession string   // session of messages without key

	RadioDir    string // render driver audio scripts into this dir if set
	RadioRegion string // aws region of polly
	RadioVoice  string // polly voice id
)
