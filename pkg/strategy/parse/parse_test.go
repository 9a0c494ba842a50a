//nolint:funlen // ok for tests
package parse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

const validCandidates = `{"strategies": [{"strategy_id": 1, "strategy_name": "One Stop",
"stop_count": 1, "pit_laps": [32], "tire_sequence": ["Medium", "inter"],
"brief_description": "safe", "risk_level": "low", "key_assumption": "no rain"}]}`

func TestCandidates(t *testing.T) {
	want := []model.Candidate{{
		StrategyID: 1, StrategyName: "One Stop", StopCount: 1, PitLaps: []int{32},
		TireSequence:     []model.Compound{model.CompoundMedium, model.CompoundIntermediate},
		BriefDescription: "safe", RiskLevel: model.RiskLow, KeyAssumption: "no rain",
	}}
	tests := []struct {
		name string
		text string
	}{
		{"plain", validCandidates},
		{"json fence", "```json\n" + validCandidates + "\n```"},
		{"plain fence", "```\n" + validCandidates + "\n```"},
		{"surrounding prose", "Here you go:\n" + validCandidates + "\nGood luck!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Candidates(tt.text)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Candidates() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCandidates_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no json", "sorry, I cannot help with that"},
		{"truncated", `{"strategies": [{"strategy_id": 1, "stop_count": 1`},
		{"missing strategies", `{"result": []}`},
		{"empty strategies", `{"strategies": []}`},
		{"wrong type", `{"strategies": [{"strategy_id": "one", "stop_count": 1, "pit_laps": [], "tire_sequence": []}]}`},
		{"missing field", `{"strategies": [{"strategy_id": 1, "pit_laps": [20], "tire_sequence": ["soft"]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Candidates(tt.text)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestCandidates_KeepsUnknownCompound(t *testing.T) {
	got, err := Candidates(`{"strategies": [{"strategy_id": 1, "stop_count": 1,
		"pit_laps": [20], "tire_sequence": ["soft", "hyper"]}]}`)
	require.NoError(t, err)
	assert.Equal(t, []model.Compound{model.CompoundSoft, "hyper"}, got[0].TireSequence)
}

func TestRanking(t *testing.T) {
	text := "```json\n" + `{"top_strategies": [{"rank": 1, "strategy_id": 3,
"strategy_name": "Undercut", "classification": "RECOMMENDED",
"predicted_outcome": {"finish_position_most_likely": 2, "p1_probability": 20,
"p2_probability": 40, "p3_probability": 20, "p4_or_worse_probability": 20, "confidence_score": 70},
"driver_audio_script": "Box this lap",
"ecu_commands": {"fuel_mode": "RICH", "brake_balance_adjustment": -1}}],
"situational_context": {"time_sensitivity": "within 2 laps"}}` + "\n```"
	got, err := Ranking(text)
	require.NoError(t, err)
	require.Len(t, got.Strategies, 1)
	s := got.Strategies[0]
	assert.Equal(t, 3, s.StrategyID)
	assert.Equal(t, model.ClassRecommended, s.Classification)
	assert.Equal(t, 100, s.PredictedOutcome.Sum())
	assert.Equal(t, "Box this lap", s.DriverAudioScript)
	assert.Equal(t, -1, s.ECUCommands.BrakeBalanceAdjustment)
	require.NotNil(t, got.Situational)
	assert.Equal(t, "within 2 laps", got.Situational.TimeSensitivity)
}

func TestRanking_Malformed(t *testing.T) {
	for _, text := range []string{
		`{"top_strategies": [{"rank": 1, "strategy_id": 3, "classification": "BEST"}]}`,
		`{"top_strategies": [{"rank": 0, "strategy_id": 3, "classification": "RECOMMENDED"}]}`,
		`{"top_strategies": [{"rank": 1, "strategy_id": 3, "classification": "RECOMMENDED",
			"predicted_outcome": {"p1_probability": 120}}]}`,
	} {
		_, err := Ranking(text)
		assert.ErrorIs(t, err, ErrMalformed)
	}
}
