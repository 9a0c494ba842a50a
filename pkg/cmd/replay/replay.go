package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/cmd/server"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
)

//nolint:gochecknoglobals // cli values
var (
	addr    string
	delay   string
	session string
	output  string
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "commands to replay recorded telemetry scenarios",
	}
	cmd.PersistentFlags().StringVar(&delay, "delay", "0s",
		"pause between two laps (0 means: go as fast as possible)")
	cmd.PersistentFlags().StringVar(&session, "session", "",
		"session key, overrides the key of the scenario (default: file name)")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "yaml",
		"output format (yaml, json)")
	cmd.AddCommand(newHTTPCmd())
	cmd.AddCommand(newLocalCmd())
	return cmd
}

func newHTTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http scenario...",
		Short: "sends the scenarios to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := NewHTTPIngester(addr, nil)
			summaries, err := replayAll(cmd.Context(), args, target)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), summaries)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server address")
	return cmd
}

func newLocalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local scenario...",
		Short: "runs the scenarios against an in-process pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := server.Build()
			if err != nil {
				return err
			}
			defer comps.Close()
			summaries, err := replayAll(cmd.Context(), args, comps.Service)
			if err != nil {
				return err
			}
			comps.Pipeline.WaitIdle()
			results := map[string]*pipeline.Result{}
			for _, s := range summaries {
				if res, ok := comps.Pipeline.LastResult(s.Session); ok {
					results[s.Session] = res
				}
			}
			return write(cmd.OutOrStdout(), map[string]any{
				"summaries": summaries,
				"results":   results,
			})
		},
	}
	server.AddPipelineFlags(cmd.Flags())
	return cmd
}

// replayAll plays the scenario files in parallel, one session per file
func replayAll(ctx context.Context, files []string, target Ingester) ([]*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	pause, err := time.ParseDuration(delay)
	if err != nil {
		return nil, fmt.Errorf("invalid delay: %w", err)
	}
	if session != "" && len(files) > 1 {
		return nil, fmt.Errorf("--session can only be used with a single scenario")
	}
	ret := make([]*Summary, len(files))
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			sc, err := LoadScenario(file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			sc.Session = sessionKey(sc, file)
			log.Info("replaying scenario",
				log.String("file", file),
				log.String("session", sc.Session),
				log.Int("laps", len(sc.Laps)))
			summary, err := Play(gCtx, sc, target, pause)
			if err != nil {
				return err
			}
			mu.Lock()
			ret[i] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

func sessionKey(sc *Scenario, file string) string {
	switch {
	case session != "":
		return session
	case sc.Session != "":
		return sc.Session
	default:
		return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
}

func write(w io.Writer, v any) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	// round trip through json to honor the json names of the result types
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

