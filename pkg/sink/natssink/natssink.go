// Package natssink publishes enriched records and strategy results on NATS
// subjects keyed by session.
package natssink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
)

const DefaultPrefix = "rss"

// Conn is the part of *nats.Conn used by the publisher
type Conn interface {
	Publish(subj string, data []byte) error
}

type enrichedMsg struct {
	Session  string               `json:"session"`
	Enriched model.EnrichedRecord `json:"enriched"`
	Context  *model.RaceContext   `json:"race_context,omitempty"`
}

type (
	Option    func(*Publisher)
	Publisher struct {
		conn   Conn
		prefix string
		l      *log.Logger
	}
)

func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

func New(conn Conn, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:   conn,
		prefix: DefaultPrefix,
		l:      log.Default().Named("sink.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (p *Publisher) StrategySubject(session string) string {
	return fmt.Sprintf("%s.strategy.%s", p.prefix, subjectToken(session))
}

func (p *Publisher) EnrichedSubject(session string) string {
	return fmt.Sprintf("%s.enriched.%s", p.prefix, subjectToken(session))
}

//nolint:whitespace // can't make both editor and linter happy
func (p *Publisher) PublishEnriched(
	ctx context.Context,
	session string,
	rec model.EnrichedRecord,
	rc *model.RaceContext,
) error {
	data, err := json.Marshal(enrichedMsg{Session: session, Enriched: rec, Context: rc})
	if err != nil {
		return err
	}
	return p.publish(p.EnrichedSubject(session), data)
}

func (p *Publisher) Deliver(ctx context.Context, res *pipeline.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return p.publish(p.StrategySubject(res.Session), data)
}

func (p *Publisher) publish(subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		p.l.Warn("publish failed", log.String("subject", subject), log.ErrorField(err))
		return err
	}
	p.l.Debug("published", log.String("subject", subject), log.Int("size", len(data)))
	return nil
}

// subjectToken replaces characters with a special meaning in NATS subjects
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
