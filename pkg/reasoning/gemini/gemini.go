// Package gemini implements reasoning.Service on top of the Gemini
// generateContent REST endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/breaker"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-pro"
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

type (
	Option func(*Client)
	Client struct {
		baseURL string
		model   string
		apiKey  string
		timeout time.Duration
		hc      *http.Client
		cb      *gobreaker.CircuitBreaker[string]
		l       *log.Logger
	}
)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithModel(m string) Option {
	return func(c *Client) {
		c.model = m
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(c *Client) {
		c.cb = breaker.New[string]("gemini", opts...)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.l = l
	}
}

func New(apiKey string, opts ...Option) *Client {
	ret := &Client{
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		hc:      http.DefaultClient,
		l:       log.Default().Named("reasoning.gemini"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.cb == nil {
		ret.cb = breaker.New[string]("gemini")
	}
	return ret
}

type (
	part struct {
		Text string `json:"text"`
	}
	content struct {
		Parts []part `json:"parts"`
	}
	generationConfig struct {
		Temperature float64 `json:"temperature"`
	}
	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}
	generateResponse struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
)

// Generate implements reasoning.Service
func (c *Client) Generate(ctx context.Context, req reasoning.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	text, err := c.cb.Execute(func() (string, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		err = classify(ctx, err)
		c.l.Warn("generate failed",
			log.Duration("duration", time.Since(start)), log.ErrorField(err))
		return "", err
	}
	c.l.Debug("generate done",
		log.Duration("duration", time.Since(start)), log.Int("length", len(text)))
	return text, nil
}

func (c *Client) generate(ctx context.Context, req reasoning.Request) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{Temperature: req.Temperature},
	})
	if err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data)))
	}
	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response")
	}
	parts := make([]string, 0, len(gr.Candidates[0].Content.Parts))
	for _, p := range gr.Candidates[0].Content.Parts {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, ""), nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", reasoning.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", reasoning.ErrService, err)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
