// Package httpsource pulls enriched telemetry from a remote enrichment service.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/source"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/breaker"
)

type (
	Option func(*Client)
	Client struct {
		baseURL string
		hc      *http.Client
		cb      *gobreaker.CircuitBreaker[[]model.EnrichedRecord]
		l       *log.Logger
	}
)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(c *Client) {
		c.cb = breaker.New[[]model.EnrichedRecord]("telemetry-source", opts...)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.l = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	ret := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      http.DefaultClient,
		l:       log.Default().Named("source.http"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.cb == nil {
		ret.cb = breaker.New[[]model.EnrichedRecord]("telemetry-source")
	}
	return ret
}

// the remote service answers either with a plain list or wrapped in "data"
type response struct {
	Data []model.EnrichedRecord `json:"data"`
}

// Fetch implements source.TelemetrySource.
// Every failure is reported as source.ErrUnreachable.
func (c *Client) Fetch(ctx context.Context, limit int) ([]model.EnrichedRecord, error) {
	ret, err := c.cb.Execute(func() ([]model.EnrichedRecord, error) {
		return c.fetch(ctx, limit)
	})
	if err != nil {
		if breaker.IsOpen(err) {
			c.l.Debug("breaker rejected call", log.ErrorField(err))
		}
		return nil, fmt.Errorf("%w: %w", source.ErrUnreachable, err)
	}
	return ret, nil
}

func (c *Client) fetch(ctx context.Context, limit int) ([]model.EnrichedRecord, error) {
	u, err := url.Parse(c.baseURL + "/enriched")
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decode(body)
}

func decode(body []byte) ([]model.EnrichedRecord, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var ret []model.EnrichedRecord
		if err := json.Unmarshal(body, &ret); err != nil {
			return nil, err
		}
		return ret, nil
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return r.Data, nil
}
