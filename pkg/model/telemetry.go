package model

import (
	"errors"
	"fmt"
	"strings"
)

type Compound string

const (
	CompoundSoft         Compound = "soft"
	CompoundMedium       Compound = "medium"
	CompoundHard         Compound = "hard"
	CompoundIntermediate Compound = "intermediate"
	CompoundWet          Compound = "wet"
)

var ErrUnknownCompound = errors.New("unknown tire compound")

// Compounds lists all valid compounds, dry ones first
var Compounds = []Compound{
	CompoundSoft, CompoundMedium, CompoundHard, CompoundIntermediate, CompoundWet,
}

// ParseCompound accepts the canonical names (case insensitive) and "inter"
func ParseCompound(s string) (Compound, error) {
	switch c := Compound(strings.ToLower(strings.TrimSpace(s))); c {
	case CompoundSoft, CompoundMedium, CompoundHard, CompoundIntermediate, CompoundWet:
		return c, nil
	case "inter":
		return CompoundIntermediate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompound, s)
	}
}

func (c Compound) Valid() bool {
	_, err := ParseCompound(string(c))
	return err == nil
}

// IsWet reports whether the compound is meant for a wet track
func (c Compound) IsWet() bool {
	return c == CompoundIntermediate || c == CompoundWet
}

type WeatherImpact string

const (
	WeatherImpactLow    WeatherImpact = "low"
	WeatherImpactMedium WeatherImpact = "medium"
	WeatherImpactHigh   WeatherImpact = "high"
)

// TelemetryRecord is the canonical per-lap telemetry after normalization.
// The context fields (TotalLaps and below) are optional and remembered by the
// enrichment session once seen.
//
//nolint:lll // readability
type TelemetryRecord struct {
	Lap             int      `json:"lap"`
	Speed           float64  `json:"speed"`            // km/h
	Throttle        float64  `json:"throttle"`         // 0..1
	Brake           float64  `json:"brake"`            // 0..1
	TireCompound    Compound `json:"tire_compound"`    //
	FuelLevel       float64  `json:"fuel_level"`       // 0..1 fraction of race fuel
	ERS             *float64 `json:"ers,omitempty"`    // 0..1
	TrackTemp       *float64 `json:"track_temp,omitempty"`
	RainProbability *float64 `json:"rain_probability,omitempty"` // 0..1

	TotalLaps   int    `json:"total_laps,omitempty"`
	TrackName   string `json:"track_name,omitempty"`
	DriverName  string `json:"driver_name,omitempty"`
	Position    int    `json:"position,omitempty"`
	TireAgeLaps *int   `json:"tire_age_laps,omitempty"`
}

// EnrichedRecord is the derived per-lap metrics record.
// Values are immutable once produced by the enrichment engine.
//
//nolint:lll // readability
type EnrichedRecord struct {
	Lap                   int           `json:"lap" validate:"gte=1"`
	AeroEfficiency        float64       `json:"aero_efficiency" validate:"gte=0,lte=1"`
	TireDegradationIndex  float64       `json:"tire_degradation_index" validate:"gte=0,lte=1"`
	ERSCharge             float64       `json:"ers_charge" validate:"gte=0,lte=1"`
	FuelOptimizationScore float64       `json:"fuel_optimization_score" validate:"gte=0,lte=1"`
	DriverConsistency     float64       `json:"driver_consistency" validate:"gte=0,lte=1"`
	WeatherImpact         WeatherImpact `json:"weather_impact" validate:"oneof=low medium high"`
}
