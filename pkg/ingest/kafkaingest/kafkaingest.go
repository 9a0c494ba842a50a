// Package kafkaingest consumes raw telemetry messages from a kafka topic.
// The message key selects the session, the value is a single raw lap as JSON
// object.
package kafkaingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/service"
)

var ErrNoSession = errors.New("message carries no session")

const sessionField = "session"

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Ingester interface {
	IngestRaw(ctx context.Context, session string, raw map[string]any) (
		*service.IngestResult, error)
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type (
	Option   func(*Consumer)
	Consumer struct {
		reader         Reader
		target         Ingester
		defaultSession string
		retryDelay     time.Duration
		l              *log.Logger
		msgCounter     metric.Int64Counter
	}
)

// WithDefaultSession is used for messages without key and session field
func WithDefaultSession(session string) Option {
	return func(c *Consumer) {
		c.defaultSession = session
	}
}

// WithRetryDelay sets the pause after a failed read
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		c.retryDelay = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Consumer) {
		c.l = l
	}
}

// NewReader creates a kafka-go reader for cfg
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
}

func New(reader Reader, target Ingester, opts ...Option) *Consumer {
	ret := &Consumer{
		reader:     reader,
		target:     target,
		retryDelay: time.Second,
		l:          log.Default().Named("ingest.kafka"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	var err error
	meter := otel.Meter("rss.ingest")
	if ret.msgCounter, err = meter.Int64Counter("rss.ingest.kafka.messages",
		metric.WithDescription("Number of consumed kafka messages"),
		metric.WithUnit("{message}")); err != nil {
		ret.l.Warn("could not create counter", log.ErrorField(err))
	}
	return ret
}

// Run consumes messages until ctx is done. Broken messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.l.Info("kafka ingest started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.l.Info("kafka ingest stopped")
				return nil
			}
			c.l.Warn("kafka read error", log.ErrorField(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		outcome := "ok"
		if err := c.Handle(ctx, m); err != nil {
			outcome = "rejected"
			c.l.Warn("kafka message rejected",
				log.String("topic", m.Topic),
				log.Int64("offset", m.Offset),
				log.ErrorField(err))
		}
		if c.msgCounter != nil {
			c.msgCounter.Add(ctx, 1,
				metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}

// Handle feeds a single message into the ingester
func (c *Consumer) Handle(ctx context.Context, m kafka.Message) error {
	raw := map[string]any{}
	if err := json.Unmarshal(m.Value, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	session := c.session(m, raw)
	if session == "" {
		return ErrNoSession
	}
	res, err := c.target.IngestRaw(ctx, session, raw)
	if err != nil {
		return err
	}
	c.l.Debug("kafka message ingested",
		log.String("session", session),
		log.String("status", string(res.Status)))
	return nil
}

func (c *Consumer) session(m kafka.Message, raw map[string]any) string {
	if len(m.Key) > 0 {
		return string(m.Key)
	}
	if s, ok := raw[sessionField].(string); ok && s != "" {
		return s
	}
	return c.defaultSession
}
