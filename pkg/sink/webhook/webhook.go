// Package webhook forwards enriched records and pipeline results to a
// downstream HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
)

const DefaultTimeout = 5 * time.Second

type Kind string

const (
	KindEnriched   Kind = "enriched"
	KindStrategies Kind = "strategies"
)

// Envelope is the body posted to the callback url
type Envelope struct {
	Kind      Kind                  `json:"kind"`
	Session   string                `json:"session"`
	Timestamp time.Time             `json:"timestamp"`
	Enriched  *model.EnrichedRecord `json:"enriched,omitempty"`
	Context   *model.RaceContext    `json:"race_context,omitempty"`
	Result    *pipeline.Result      `json:"result,omitempty"`
}

type (
	Option    func(*Forwarder)
	Forwarder struct {
		url     string
		timeout time.Duration
		hc      *http.Client
		l       *log.Logger
	}
)

func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		f.timeout = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(f *Forwarder) {
		f.hc = hc
	}
}

func WithLogger(l *log.Logger) Option {
	return func(f *Forwarder) {
		f.l = l
	}
}

func New(url string, opts ...Option) *Forwarder {
	ret := &Forwarder{
		url:     url,
		timeout: DefaultTimeout,
		hc:      http.DefaultClient,
		l:       log.Default().Named("sink.webhook"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// PublishEnriched implements service.EnrichedSink
//
//nolint:whitespace // can't make both editor and linter happy
func (f *Forwarder) PublishEnriched(
	ctx context.Context,
	session string,
	rec model.EnrichedRecord,
	rc *model.RaceContext,
) error {
	return f.post(ctx, &Envelope{
		Kind: KindEnriched, Session: session, Enriched: &rec, Context: rc,
	})
}

// Deliver implements pipeline.Sink
func (f *Forwarder) Deliver(ctx context.Context, res *pipeline.Result) error {
	return f.post(ctx, &Envelope{Kind: KindStrategies, Session: res.Session, Result: res})
}

func (f *Forwarder) post(ctx context.Context, env *Envelope) error {
	env.Timestamp = time.Now().UTC()
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.hc.Do(req)
	if err != nil {
		return fmt.Errorf("forward %s: %w", env.Kind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("forward %s: unexpected status %d", env.Kind, resp.StatusCode)
	}
	f.l.Debug("forwarded", log.String("kind", string(env.Kind)), log.String("session", env.Session))
	return nil
}
