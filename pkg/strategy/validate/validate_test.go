//nolint:funlen // ok for tests
package validate

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

func raceAt(current, total int, weather string) *model.RaceContext {
	return &model.RaceContext{RaceInfo: model.RaceInfo{
		CurrentLap: current, TotalLaps: total, WeatherCondition: weather,
	}}
}

func codes(v []Violation) []Code {
	ret := []Code{}
	for _, item := range v {
		ret = append(ret, item.Code)
	}
	return ret
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cand model.Candidate
		rc   *model.RaceContext
		opts []Option
		want []Code
	}{
		{
			name: "legal one stopper",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{model.CompoundMedium, model.CompoundHard},
			},
			rc:   raceAt(15, 50, model.WeatherDry),
			want: []Code{},
		},
		{
			name: "stop count does not match pit laps",
			cand: model.Candidate{
				StopCount: 2, PitLaps: []int{10},
				TireSequence: []model.Compound{"soft", "medium", "hard"},
			},
			rc:   raceAt(5, 50, model.WeatherDry),
			want: []Code{CodeStopCountMismatch},
		},
		{
			name: "pit laps not increasing",
			cand: model.Candidate{
				StopCount: 2, PitLaps: []int{30, 25},
				TireSequence: []model.Compound{"soft", "medium", "hard"},
			},
			rc:   raceAt(5, 50, model.WeatherDry),
			want: []Code{CodePitLapsNotIncreasing},
		},
		{
			name: "pit lap equal to current and total lap",
			cand: model.Candidate{
				StopCount: 2, PitLaps: []int{15, 50},
				TireSequence: []model.Compound{"soft", "medium", "hard"},
			},
			rc:   raceAt(15, 50, model.WeatherDry),
			want: []Code{CodePitLapOutOfRange, CodePitLapOutOfRange},
		},
		{
			name: "tire sequence too short",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{"medium"},
			},
			rc:   raceAt(15, 50, model.WeatherDry),
			want: []Code{CodeTireSequenceLength, CodeTooFewCompounds},
		},
		{
			name: "single compound in dry race",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{"hard", "HARD"},
			},
			rc:   raceAt(15, 50, model.WeatherDry),
			want: []Code{CodeTooFewCompounds},
		},
		{
			name: "unknown compound",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{"medium", "hyper"},
			},
			rc:   raceAt(15, 50, model.WeatherDry),
			want: []Code{CodeInvalidCompound, CodeTooFewCompounds},
		},
		{
			name: "zero stops",
			cand: model.Candidate{
				StopCount: 0, PitLaps: []int{},
				TireSequence: []model.Compound{"medium"},
			},
			rc:   raceAt(15, 50, model.WeatherDry),
			want: []Code{CodeStopCountInvalid, CodeTooFewCompounds},
		},
		{
			name: "wet race exempts compound rule",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{"intermediate", "intermediate"},
			},
			rc:   raceAt(15, 50, model.WeatherWet),
			want: []Code{},
		},
		{
			name: "wet compound in sequence exempts compound rule",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{"wet", "wet"},
			},
			rc:   raceAt(15, 50, model.WeatherMixed),
			want: []Code{},
		},
		{
			name: "wet exemption disabled",
			cand: model.Candidate{
				StopCount: 1, PitLaps: []int{20},
				TireSequence: []model.Compound{"wet", "wet"},
			},
			rc:   raceAt(15, 50, model.WeatherWet),
			opts: []Option{WithWetExemption(false)},
			want: []Code{CodeTooFewCompounds},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(&tt.cand, tt.rc, tt.opts...)
			assert.DeepEqual(t, codes(got), tt.want)
		})
	}
}

func TestValidate_MessagesArePresent(t *testing.T) {
	got := Validate(&model.Candidate{StopCount: 2, PitLaps: []int{10}}, raceAt(5, 50, ""))
	assert.Assert(t, len(got) > 0)
	for _, v := range got {
		assert.Assert(t, v.Message != "", "code %s", v.Code)
	}
}

func TestFilter(t *testing.T) {
	rc := raceAt(15, 50, model.WeatherDry)
	cands := []model.Candidate{
		{
			StrategyID: 1, StopCount: 1, PitLaps: []int{20},
			TireSequence: []model.Compound{"medium", "hard"},
		},
		{
			StrategyID: 2, StopCount: 2, PitLaps: []int{10},
			TireSequence: []model.Compound{"soft", "medium", "hard"},
		},
		{
			StrategyID: 3, StopCount: 2, PitLaps: []int{25, 40},
			TireSequence: []model.Compound{"soft", "hard", "soft"},
		},
	}
	valid, rejected := Filter(cands, rc)
	assert.Equal(t, len(valid), 2)
	assert.Equal(t, valid[0].StrategyID, 1)
	assert.Equal(t, valid[1].StrategyID, 3)
	assert.Check(t, is.Len(rejected, 1))
	assert.Check(t, is.Contains(rejected, 2))
}

func TestFilter_DuplicateIDs(t *testing.T) {
	rc := raceAt(15, 50, model.WeatherDry)
	legal := model.Candidate{
		StrategyID: 1, StrategyName: "first", StopCount: 1, PitLaps: []int{20},
		TireSequence: []model.Compound{"medium", "hard"},
	}
	illegal := model.Candidate{
		StrategyID: 2, StopCount: 1, PitLaps: []int{60},
		TireSequence: []model.Compound{"hard", "hard"},
	}
	second := legal
	second.StrategyName = "second"
	illegalAgain := illegal

	valid, rejected := Filter([]model.Candidate{legal, illegal, second, illegalAgain}, rc)
	assert.Equal(t, len(valid), 1)
	assert.Equal(t, valid[0].StrategyName, "first")
	assert.DeepEqual(t, codes(rejected[1]), []Code{CodeDuplicateStrategyID})
	assert.DeepEqual(t, codes(rejected[2]), []Code{
		CodePitLapOutOfRange, CodeTooFewCompounds, CodeDuplicateStrategyID,
	})
}
