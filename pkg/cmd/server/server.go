package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/config"
	"github.com/mpapenbr/racestrategy-service-go/pkg/endpoints/api"
	"github.com/mpapenbr/racestrategy-service-go/pkg/ingest/kafkaingest"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/natssink"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/radio"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "starts the strategy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&config.HTTPAddr,
		"http-addr",
		"a",
		"localhost:8080",
		"http server listen address")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout prints them)")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().StringVar(&config.AwaitGeneration,
		"await-generation",
		"0s",
		"how long an ingestion waits for the run it triggered (0 returns immediately)")
	cmd.Flags().StringVar(&config.NextStageURL,
		"next-stage-url",
		"",
		"callback url receiving enriched records and strategy results")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"publish enriched records and strategy results to this nats server")
	cmd.Flags().StringVar(&config.NatsPrefix,
		"nats-prefix",
		natssink.DefaultPrefix,
		"subject prefix for nats messages")
	cmd.Flags().StringSliceVar(&config.KafkaBrokers,
		"kafka-brokers",
		nil,
		"consume raw telemetry from these kafka brokers")
	cmd.Flags().StringVar(&config.KafkaTopic,
		"kafka-topic",
		"telemetry",
		"kafka topic with raw telemetry")
	cmd.Flags().StringVar(&config.KafkaGroupID,
		"kafka-group-id",
		"rss",
		"kafka consumer group")
	cmd.Flags().StringVar(&config.KafkaDefaultSession,
		"kafka-default-session",
		"",
		"session for kafka messages without key")
	cmd.Flags().StringVar(&config.RadioDir,
		"radio-dir",
		"",
		"render the driver audio script of the recommended strategy into this directory")
	cmd.Flags().StringVar(&config.RadioRegion,
		"radio-region",
		radio.DefaultRegion,
		"aws region used for speech synthesis")
	cmd.Flags().StringVar(&config.RadioVoice,
		"radio-voice",
		radio.DefaultVoice,
		"voice used for speech synthesis")
	AddPipelineFlags(cmd.Flags())
	return cmd
}

//nolint:funlen,cyclop // by design
func startServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	if err := waitForRequiredServices(ctx); err != nil {
		log.Error("required services not ready", log.ErrorField(err))
		return err
	}

	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err := config.SetupTelemetry(ctx); err == nil {
			defer telemetry.Shutdown()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err := otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	comps, err := Build(WithStream(), WithConfiguredSinks())
	if err != nil {
		log.Error("server could not be started", log.ErrorField(err))
		return err
	}
	defer comps.Close()

	handler := api.New(comps.Service,
		api.WithSubscriber(comps.Hub),
		api.WithDemoMode(config.DemoMode),
		api.WithFastMode(config.FastMode),
		api.WithTelemetrySource(config.TelemetrySourceURL))

	//nolint:gosec // streaming endpoints need unlimited write timeouts
	server := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           h2c.NewHandler(newCORS().Handler(handler.Router()), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting http server", log.String("addr", config.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if len(config.KafkaBrokers) > 0 {
		consumer := kafkaingest.New(
			kafkaingest.NewReader(kafkaingest.Config{
				Brokers: config.KafkaBrokers,
				Topic:   config.KafkaTopic,
				GroupID: config.KafkaGroupID,
			}),
			comps.Service,
			kafkaingest.WithDefaultSession(config.KafkaDefaultSession))
		g.Go(func() error {
			return consumer.Run(gCtx)
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	setupGoRoutinesDump()
	log.Info("Server started")

	err = g.Wait()
	log.Info("Server terminated")
	return err
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

// waitForRequiredServices checks that the configured brokers accept connections
func waitForRequiredServices(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	addrs := []string{}
	if addr := utils.ExtractAddr(config.NatsURL); addr != "" {
		addrs = append(addrs, addr)
	}
	for _, broker := range config.KafkaBrokers {
		if addr := utils.ExtractAddr(broker); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	g, gCtx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		g.Go(func() error {
			return utils.WaitForTCP(gCtx, addr, timeout)
		})
	}
	log.Debug("Waiting for connection checks to return", log.Strings("addrs", addrs))
	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug("Required services are available")
	return nil
}

func newCORS() *cors.Cors {
	// To let web developers play with the service from browsers, we need a
	// very permissive CORS setup.
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowOriginFunc: func(origin string) bool {
			// Allow all origins, which effectively disables CORS.
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Type", "Cache-Control"},
	})
}
