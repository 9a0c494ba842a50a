package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/service"
)

var ErrEmptyScenario = errors.New("scenario contains no laps")

// Scenario is a recorded sequence of raw laps of one session.
// JSON files are accepted as well.
type Scenario struct {
	Session string           `yaml:"session"`
	Laps    []map[string]any `yaml:"laps"`
}

type Ingester interface {
	IngestRaw(ctx context.Context, session string, raw map[string]any) (
		*service.IngestResult, error)
}

// Summary counts the outcome of a replay
type Summary struct {
	Session  string                 `json:"session" yaml:"session"`
	Sent     int                    `json:"sent" yaml:"sent"`
	Rejected int                    `json:"rejected" yaml:"rejected"`
	Statuses map[service.Status]int `json:"statuses" yaml:"statuses"`
	Runs     []string               `json:"runs,omitempty" yaml:"runs,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var ret Scenario
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(ret.Laps) == 0 {
		return nil, ErrEmptyScenario
	}
	return &ret, nil
}

// Play sends the laps of sc in order and pauses delay between two laps.
// Rejected laps are counted and logged, they do not stop the replay.
//
//nolint:whitespace // can't make both editor and linter happy
func Play(
	ctx context.Context,
	sc *Scenario,
	target Ingester,
	delay time.Duration,
) (*Summary, error) {
	ret := &Summary{Session: sc.Session, Statuses: map[service.Status]int{}}
	for i, lap := range sc.Laps {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return ret, ctx.Err()
			case <-time.After(delay):
			}
		}
		res, err := target.IngestRaw(ctx, sc.Session, lap)
		if err != nil {
			if ctx.Err() != nil {
				return ret, ctx.Err()
			}
			ret.Rejected++
			log.Warn("lap rejected",
				log.String("session", sc.Session), log.Int("index", i), log.ErrorField(err))
			continue
		}
		ret.Sent++
		ret.Statuses[res.Status]++
		if res.Trigger.Fired {
			ret.Runs = append(ret.Runs, res.Trigger.RunID)
		}
	}
	return ret, nil
}
