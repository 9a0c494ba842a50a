// Package validate checks strategy candidates against the race legality rules.
// All functions are pure.
package validate

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

type Code string

const (
	CodeStopCountInvalid     Code = "STOP_COUNT_INVALID"
	CodeStopCountMismatch    Code = "STOP_COUNT_MISMATCH"
	CodePitLapsNotIncreasing Code = "PIT_LAPS_NOT_INCREASING"
	CodePitLapOutOfRange     Code = "PIT_LAP_OUT_OF_RANGE"
	CodeTireSequenceLength   Code = "TIRE_SEQUENCE_LENGTH"
	CodeTooFewCompounds      Code = "TOO_FEW_COMPOUNDS"
	CodeInvalidCompound      Code = "INVALID_COMPOUND"
	CodeDuplicateStrategyID  Code = "DUPLICATE_STRATEGY_ID"
)

type Violation struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

type (
	Option func(*config)
	config struct {
		wetExemption bool
	}
)

// WithWetExemption controls whether the two-compound rule is skipped in wet races.
// Enabled by default.
func WithWetExemption(enabled bool) Option {
	return func(c *config) {
		c.wetExemption = enabled
	}
}

// Validate returns all violations of c. An empty result means c is legal.
func Validate(c *model.Candidate, rc *model.RaceContext, opts ...Option) []Violation {
	cfg := config{wetExemption: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	ret := []Violation{}
	add := func(code Code, format string, args ...any) {
		ret = append(ret, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if c.StopCount < 1 {
		add(CodeStopCountInvalid, "stop_count must be at least 1, got %d", c.StopCount)
	}
	if c.StopCount != len(c.PitLaps) {
		add(CodeStopCountMismatch, "stop_count %d does not match %d pit laps",
			c.StopCount, len(c.PitLaps))
	}
	for i := 1; i < len(c.PitLaps); i++ {
		if c.PitLaps[i] <= c.PitLaps[i-1] {
			add(CodePitLapsNotIncreasing, "pit laps must be strictly increasing: %v", c.PitLaps)
			break
		}
	}
	current, total := rc.RaceInfo.CurrentLap, rc.RaceInfo.TotalLaps
	for _, lap := range c.PitLaps {
		if lap <= current || lap >= total {
			add(CodePitLapOutOfRange, "pit lap %d not within (%d, %d)", lap, current, total)
		}
	}
	if len(c.TireSequence) != c.StopCount+1 {
		add(CodeTireSequenceLength, "tire sequence has %d entries, expected %d",
			len(c.TireSequence), c.StopCount+1)
	}
	invalid := lo.Filter(c.TireSequence, func(item model.Compound, _ int) bool {
		return !item.Valid()
	})
	for _, item := range invalid {
		add(CodeInvalidCompound, "unknown compound %q", item)
	}
	if !(cfg.wetExemption && isWet(c, rc)) {
		if n := len(lo.Uniq(normalized(c.TireSequence))); n < 2 {
			add(CodeTooFewCompounds, "at least 2 different compounds required, got %d", n)
		}
	}
	return ret
}

// Filter splits cands into the legal ones and the violations of the rejected ones
// keyed by strategy id. The order of the legal candidates is kept.
// Only the first candidate of an id is considered, later ones are rejected with
// DUPLICATE_STRATEGY_ID. Violations of candidates sharing an id are collected.
//
//nolint:whitespace // can't make both editor and linter happy
func Filter(cands []model.Candidate, rc *model.RaceContext, opts ...Option) (
	valid []model.Candidate, rejected map[int][]Violation,
) {
	valid = []model.Candidate{}
	rejected = map[int][]Violation{}
	seen := map[int]bool{}
	for i := range cands {
		id := cands[i].StrategyID
		if seen[id] {
			rejected[id] = append(rejected[id], Violation{
				Code:    CodeDuplicateStrategyID,
				Message: fmt.Sprintf("strategy_id %d used more than once", id),
			})
			continue
		}
		seen[id] = true
		if v := Validate(&cands[i], rc, opts...); len(v) > 0 {
			rejected[id] = append(rejected[id], v...)
			continue
		}
		valid = append(valid, cands[i])
	}
	return valid, rejected
}

func isWet(c *model.Candidate, rc *model.RaceContext) bool {
	if rc.RaceInfo.WeatherCondition == model.WeatherWet {
		return true
	}
	return lo.ContainsBy(c.TireSequence, func(item model.Compound) bool {
		p, err := model.ParseCompound(string(item))
		return err == nil && p.IsWet()
	})
}

func normalized(seq []model.Compound) []model.Compound {
	return lo.FilterMap(seq, func(item model.Compound, _ int) (model.Compound, bool) {
		p, err := model.ParseCompound(string(item))
		return p, err == nil
	})
}
