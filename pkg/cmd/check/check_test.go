//nolint:funlen // ok for tests
package check

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/validate"
)

const sample = `
race_context:
  race_info:
    track_name: Monza
    total_laps: 50
    current_lap: 10
    weather_condition: %s
    track_temp_celsius: 30
  driver_state:
    driver_name: Driver
    current_position: 3
    current_tire_compound: medium
    tire_age_laps: 10
    fuel_remaining_percent: 70
  competitors: []
candidates:
  - strategy_id: 1
    strategy_name: one stop
    stop_count: 1
    pit_laps: [25]
    tire_sequence: [medium, hard]
  - strategy_id: 2
    strategy_name: stuck on mediums
    stop_count: 1
    pit_laps: [25]
    tire_sequence: [medium, medium]
  - strategy_id: 3
    strategy_name: late stop
    stop_count: 1
    pit_laps: [60]
    tire_sequence: [medium, hard]
`

func input(weather string) []byte {
	return []byte(strings.Replace(sample, "%s", weather, 1))
}

func TestCheck(t *testing.T) {
	in, err := ParseInput(input("Dry"))
	require.NoError(t, err)
	require.Len(t, in.Candidates, 3)

	report := Check(in)
	assert.Equal(t, []int{1}, report.Legal)
	require.Contains(t, report.Rejected, 2)
	assert.Equal(t, validate.CodeTooFewCompounds, report.Rejected[2][0].Code)
	require.Contains(t, report.Rejected, 3)
	assert.Equal(t, validate.CodePitLapOutOfRange, report.Rejected[3][0].Code)

	var out bytes.Buffer
	Print(&out, in, report)
	assert.Contains(t, out.String(), "stuck on mediums")
	assert.Contains(t, out.String(), string(validate.CodeTooFewCompounds))
	assert.Contains(t, out.String(), "legal: [1]")
}

func TestCheckWetExemption(t *testing.T) {
	in, err := ParseInput(input("Wet"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		exemption bool
		want      []int
	}{
		{name: "exempted", exemption: true, want: []int{1, 2}},
		{name: "strict", exemption: false, want: []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Check(in, validate.WithWetExemption(tt.exemption))
			assert.Equal(t, tt.want, report.Legal)
		})
	}
}

func TestParseInputInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "broken yaml", data: "race_context: [unclosed"},
		{name: "missing laps", data: "race_context:\n  race_info:\n    total_laps: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInput([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
