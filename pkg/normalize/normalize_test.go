//nolint:funlen // ok for tests
package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    *model.TelemetryRecord
		wantErr error
	}{
		{
			name: "canonical keys",
			raw: map[string]any{
				"lap": 27, "speed": 282.0, "throttle": 0.91, "brake": 0.05,
				"tire_compound": "medium", "fuel_level": 0.47, "ers": 0.72,
				"track_temp": 38.0, "rain_probability": 0.2,
			},
			want: &model.TelemetryRecord{
				Lap: 27, Speed: 282, Throttle: 0.91, Brake: 0.05,
				TireCompound: model.CompoundMedium, FuelLevel: 0.47,
				ERS: ptr(0.72), TrackTemp: ptr(38.0), RainProbability: ptr(0.2),
			},
		},
		{
			name: "aliases and defaults",
			raw: map[string]any{
				"LapNumber": "12", "Speed": 250, "Throttle": 1.5, "Brakes": -0.2,
				"Compound": "SOFT",
			},
			want: &model.TelemetryRecord{
				Lap: 12, Speed: 250, Throttle: 0.015, Brake: 0,
				TireCompound: model.CompoundSoft, FuelLevel: defaultFuelLevel,
			},
		},
		{
			name: "percent values, bool brake and context fields",
			raw: map[string]any{
				"lap_number": 15, "total_laps": 51, "speed": 285.5, "throttle": 88.0,
				"brake": false, "tire_compound": "inter", "tire_life_laps": 12,
				"track_temperature": 42.5, "rainfall": true, "track_name": "Monza",
				"driver_name": "Alonso", "current_position": 5, "fuel_level": 0.65,
			},
			want: &model.TelemetryRecord{
				Lap: 15, Speed: 285.5, Throttle: 0.88, Brake: 0,
				TireCompound: model.CompoundIntermediate, FuelLevel: 0.65,
				TrackTemp: ptr(42.5), RainProbability: ptr(1.0),
				TotalLaps: 51, TrackName: "Monza", DriverName: "Alonso", Position: 5,
				TireAgeLaps: ptr(12),
			},
		},
		{
			name: "unknown compound is passed through",
			raw:  map[string]any{"lap": 3, "speed": 200, "tire_compound": "Hyper"},
			want: &model.TelemetryRecord{
				Lap: 3, Speed: 200, TireCompound: "hyper", FuelLevel: defaultFuelLevel,
			},
		},
		{
			name:    "nothing recognizable",
			raw:     map[string]any{"foo": 1, "bar": "x"},
			wantErr: ErrUnrecognizedSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_JSONPathAlias(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal(
		[]byte(`{"lap": 4, "speed": 300, "session": {"track": "Spa"}}`), &raw))
	got, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Spa", got.TrackName)
}

func TestNew_CustomTable(t *testing.T) {
	n, err := New(AliasTable{
		FieldLap:   {"$.timing.lap"},
		FieldSpeed: {"$.car.v"},
	})
	require.NoError(t, err)
	got, err := n.Normalize(map[string]any{
		"timing": map[string]any{"lap": 9},
		"car":    map[string]any{"v": 301.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 9, got.Lap)
	assert.InDelta(t, 301.5, got.Speed, 1e-9)

	_, err = New(AliasTable{FieldLap: {"$.timing["}})
	assert.Error(t, err)
}
