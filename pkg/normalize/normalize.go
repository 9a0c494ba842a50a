// Package normalize maps heterogeneous telemetry payloads onto the canonical
// telemetry record. Source keys are resolved through an explicit alias table.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

var ErrUnrecognizedSchema = errors.New("unrecognized telemetry schema")

// canonical field names
const (
	FieldLap             = "lap"
	FieldSpeed           = "speed"
	FieldThrottle        = "throttle"
	FieldBrake           = "brake"
	FieldTireCompound    = "tire_compound"
	FieldFuelLevel       = "fuel_level"
	FieldERS             = "ers"
	FieldTrackTemp       = "track_temp"
	FieldRainProbability = "rain_probability"
	FieldRainfall        = "rainfall"
	FieldTotalLaps       = "total_laps"
	FieldTrackName       = "track_name"
	FieldDriverName      = "driver_name"
	FieldPosition        = "position"
	FieldTireAgeLaps     = "tire_age_laps"
)

// AliasTable maps a canonical field to the accepted source keys.
// A source key starting with '$' is treated as a JSONPath expression.
type AliasTable map[string][]string

//nolint:gochecknoglobals // lookup table
var DefaultAliases = AliasTable{
	FieldLap:             {"lap", "Lap", "LapNumber", "lap_number"},
	FieldSpeed:           {"speed", "Speed"},
	FieldThrottle:        {"throttle", "Throttle"},
	FieldBrake:           {"brake", "Brake", "Brakes"},
	FieldTireCompound:    {"tire_compound", "Compound", "TyreCompound", "Tire"},
	FieldFuelLevel:       {"fuel_level", "Fuel", "FuelRel", "FuelLevel"},
	FieldERS:             {"ers", "ERS", "ERSCharge"},
	FieldTrackTemp:       {"track_temp", "TrackTemp", "track_temperature"},
	FieldRainProbability: {"rain_probability", "RainProb", "PrecipProb"},
	FieldRainfall:        {"rainfall", "Rainfall"},
	FieldTotalLaps:       {"total_laps", "TotalLaps"},
	FieldTrackName:       {"track_name", "TrackName", "$.session.track"},
	FieldDriverName:      {"driver_name", "DriverName", "Driver"},
	FieldPosition:        {"position", "current_position", "Position"},
	FieldTireAgeLaps:     {"tire_age_laps", "tire_life_laps", "TyreLife"},
}

const (
	defaultFuelLevel = 0.5
	defaultCompound  = model.CompoundMedium
)

type Normalizer struct {
	paths map[string][]jp.Expr
}

func New(aliases AliasTable) (*Normalizer, error) {
	ret := &Normalizer{paths: make(map[string][]jp.Expr, len(aliases))}
	for field, keys := range aliases {
		for _, key := range keys {
			var x jp.Expr
			if strings.HasPrefix(key, "$") {
				var err error
				if x, err = jp.ParseString(key); err != nil {
					return nil, fmt.Errorf("alias %q for %s: %w", key, field, err)
				}
			} else {
				x = jp.C(key)
			}
			ret.paths[field] = append(ret.paths[field], x)
		}
	}
	return ret, nil
}

//nolint:gochecknoglobals // built once from the default table
var defaultNormalizer, _ = New(DefaultAliases)

// Normalize uses the DefaultAliases
func Normalize(raw map[string]any) (*model.TelemetryRecord, error) {
	return defaultNormalizer.Normalize(raw)
}

// Normalize maps raw onto a canonical record. Bounded values are clamped,
// missing values are defaulted. The compound is passed through lower-cased so
// that the enrichment can reject unknown values.
//
//nolint:funlen,cyclop // linear mapping
func (n *Normalizer) Normalize(raw map[string]any) (*model.TelemetryRecord, error) {
	lapRaw, hasLap := n.pick(raw, FieldLap)
	speedRaw, hasSpeed := n.pick(raw, FieldSpeed)
	if !hasLap && !hasSpeed {
		return nil, ErrUnrecognizedSchema
	}
	rec := &model.TelemetryRecord{
		FuelLevel:    defaultFuelLevel,
		TireCompound: defaultCompound,
	}
	if v, ok := toInt(lapRaw); ok {
		rec.Lap = v
	}
	if v, ok := toFloat(speedRaw); ok {
		rec.Speed = v
	}
	if v, ok := n.float(raw, FieldThrottle); ok {
		rec.Throttle = unit(v)
	}
	if v, ok := n.float(raw, FieldBrake); ok {
		rec.Brake = unit(v)
	}
	if v, ok := n.pick(raw, FieldTireCompound); ok {
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) != "" {
			if c, err := model.ParseCompound(s); err == nil {
				rec.TireCompound = c
			} else {
				rec.TireCompound = model.Compound(strings.ToLower(strings.TrimSpace(s)))
			}
		}
	}
	if v, ok := n.float(raw, FieldFuelLevel); ok {
		rec.FuelLevel = clamp01(v)
	}
	if v, ok := n.float(raw, FieldERS); ok {
		rec.ERS = ptr(clamp01(v))
	}
	if v, ok := n.float(raw, FieldTrackTemp); ok {
		rec.TrackTemp = ptr(v)
	}
	if v, ok := n.float(raw, FieldRainProbability); ok {
		rec.RainProbability = ptr(clamp01(v))
	} else if v, ok := n.float(raw, FieldRainfall); ok {
		rec.RainProbability = ptr(clamp01(v))
	}
	if v, ok := n.pick(raw, FieldTotalLaps); ok {
		if i, ok := toInt(v); ok && i > 0 {
			rec.TotalLaps = i
		}
	}
	if v, ok := n.pick(raw, FieldPosition); ok {
		if i, ok := toInt(v); ok && i > 0 {
			rec.Position = i
		}
	}
	if v, ok := n.pick(raw, FieldTireAgeLaps); ok {
		if i, ok := toInt(v); ok && i >= 0 {
			rec.TireAgeLaps = ptr(i)
		}
	}
	rec.TrackName = n.str(raw, FieldTrackName)
	rec.DriverName = n.str(raw, FieldDriverName)
	return rec, nil
}

func (n *Normalizer) pick(raw map[string]any, field string) (any, bool) {
	for _, x := range n.paths[field] {
		if v := x.First(raw); v != nil {
			return v, true
		}
	}
	return nil, false
}

func (n *Normalizer) float(raw map[string]any, field string) (float64, bool) {
	v, ok := n.pick(raw, field)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (n *Normalizer) str(raw map[string]any, field string) string {
	if v, ok := n.pick(raw, field); ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

//nolint:cyclop // type switch
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, false
		}
	case bool:
		if x {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// unit maps percentage values (1..100] onto 0..1 and clamps the result
func unit(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func ptr[T any](v T) *T {
	return &v
}
