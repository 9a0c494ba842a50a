package model

import "slices"

//nolint:lll // readability
type RaceInfo struct {
	TrackName        string  `json:"track_name"`
	TotalLaps        int     `json:"total_laps" validate:"gt=0"`
	CurrentLap       int     `json:"current_lap" validate:"gte=0"`
	WeatherCondition string  `json:"weather_condition"` // Dry, Mixed, Wet
	TrackTemp        float64 `json:"track_temp_celsius"`
}

//nolint:lll // readability
type DriverState struct {
	DriverName           string   `json:"driver_name"`
	Position             int      `json:"current_position" validate:"gt=0"`
	CurrentTireCompound  Compound `json:"current_tire_compound" validate:"oneof=soft medium hard intermediate wet"`
	TireAgeLaps          int      `json:"tire_age_laps" validate:"gte=0"`
	FuelRemainingPercent float64  `json:"fuel_remaining_percent" validate:"gte=0,lte=100"`
}

// Competitor describes another car. GapSeconds is negative if the competitor is ahead.
//
//nolint:lll // readability
type Competitor struct {
	Position     int      `json:"position" validate:"gt=0"`
	Driver       string   `json:"driver"`
	TireCompound Compound `json:"tire_compound" validate:"oneof=soft medium hard intermediate wet"`
	TireAgeLaps  int      `json:"tire_age_laps" validate:"gte=0"`
	GapSeconds   float64  `json:"gap_seconds"`
}

type RaceContext struct {
	RaceInfo    RaceInfo     `json:"race_info"`
	DriverState DriverState  `json:"driver_state"`
	Competitors []Competitor `json:"competitors" validate:"dive"`
}

const (
	WeatherDry   = "Dry"
	WeatherMixed = "Mixed"
	WeatherWet   = "Wet"
)

// LapsRemaining returns the number of laps still to go (never negative)
func (rc *RaceContext) LapsRemaining() int {
	return max(0, rc.RaceInfo.TotalLaps-rc.RaceInfo.CurrentLap)
}

// Clone returns a deep copy
func (rc *RaceContext) Clone() *RaceContext {
	if rc == nil {
		return nil
	}
	ret := *rc
	ret.Competitors = slices.Clone(rc.Competitors)
	return &ret
}
