// Package analysis condenses a telemetry window into the summary figures used
// by the strategy prompts.
package analysis

import (
	"math"

	"github.com/samber/lo"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

const (
	// CliffThreshold is the degradation index at which a tire is considered worn out
	CliffThreshold = 0.85
	ersTrendLimit  = 0.02
	epsilon        = 1e-9
)

type ERSPattern string

const (
	ERSCharging  ERSPattern = "charging"
	ERSStable    ERSPattern = "stable"
	ERSDepleting ERSPattern = "depleting"
)

type FuelMargin string

const (
	FuelCritical    FuelMargin = "critical"
	FuelTight       FuelMargin = "tight"
	FuelOK          FuelMargin = "ok"
	FuelComfortable FuelMargin = "comfortable"
)

type ConsistencyClass string

const (
	ConsistencyExcellent ConsistencyClass = "excellent"
	ConsistencyGood      ConsistencyClass = "good"
	ConsistencyVariable  ConsistencyClass = "variable"
	ConsistencyErratic   ConsistencyClass = "erratic"
)

type Summary struct {
	Laps            int                 `json:"laps"`
	FirstLap        int                 `json:"first_lap"`
	LastLap         int                 `json:"last_lap"`
	CurrentDeg      float64             `json:"current_degradation"`
	DegradationRate float64             `json:"degradation_rate"` // index per lap
	CliffLap        int                 `json:"cliff_lap"`        // 0 if not predictable
	ERSPattern      ERSPattern          `json:"ers_pattern"`
	CurrentERS      float64             `json:"current_ers"`
	FuelMargin      FuelMargin          `json:"fuel_margin"`
	Consistency     ConsistencyClass    `json:"consistency"`
	AvgAero         float64             `json:"avg_aero_efficiency"`
	AvgFuelScore    float64             `json:"avg_fuel_score"`
	AvgConsistency  float64             `json:"avg_consistency"`
	WeatherImpact   model.WeatherImpact `json:"weather_impact"`
}

// Summarize computes the summary for recs (chronological order expected).
// totalLaps is used to clamp the cliff prediction, a value <= 0 disables clamping.
func Summarize(recs []model.EnrichedRecord, totalLaps int) Summary {
	if len(recs) == 0 {
		return Summary{
			ERSPattern:    ERSStable,
			FuelMargin:    FuelOK,
			Consistency:   ConsistencyGood,
			WeatherImpact: model.WeatherImpactLow,
		}
	}
	last := recs[len(recs)-1]
	ret := Summary{
		Laps:          len(recs),
		FirstLap:      recs[0].Lap,
		LastLap:       last.Lap,
		CurrentDeg:    last.TireDegradationIndex,
		CurrentERS:    last.ERSCharge,
		WeatherImpact: last.WeatherImpact,
		AvgAero: mean(lo.Map(recs, func(r model.EnrichedRecord, _ int) float64 {
			return r.AeroEfficiency
		})),
		AvgFuelScore: mean(lo.Map(recs, func(r model.EnrichedRecord, _ int) float64 {
			return r.FuelOptimizationScore
		})),
		AvgConsistency: mean(lo.Map(recs, func(r model.EnrichedRecord, _ int) float64 {
			return r.DriverConsistency
		})),
	}
	ret.DegradationRate = slope(recs, func(r model.EnrichedRecord) float64 {
		return r.TireDegradationIndex
	})
	ret.CliffLap = cliffLap(last.Lap, last.TireDegradationIndex, ret.DegradationRate, totalLaps)
	ret.ERSPattern = ersPattern(slope(recs, func(r model.EnrichedRecord) float64 {
		return r.ERSCharge
	}))
	ret.FuelMargin = fuelMargin(last.FuelOptimizationScore)
	ret.Consistency = consistencyClass(ret.AvgConsistency)
	return ret
}

// slope returns the least squares slope of f over the lap numbers
func slope(recs []model.EnrichedRecord, f func(model.EnrichedRecord) float64) float64 {
	if len(recs) < 2 {
		return 0
	}
	n := float64(len(recs))
	var sx, sy, sxy, sxx float64
	for _, r := range recs {
		x, y := float64(r.Lap), f(r)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

// cliffLap extrapolates linearly to CliffThreshold
func cliffLap(lap int, deg, rate float64, totalLaps int) int {
	if deg >= CliffThreshold {
		return lap + 1
	}
	if rate < epsilon {
		return 0
	}
	ret := lap + int(math.Ceil((CliffThreshold-deg)/rate-epsilon))
	if totalLaps > 0 && ret > totalLaps {
		return totalLaps
	}
	return ret
}

func ersPattern(rate float64) ERSPattern {
	switch {
	case rate > ersTrendLimit:
		return ERSCharging
	case rate < -ersTrendLimit:
		return ERSDepleting
	default:
		return ERSStable
	}
}

func fuelMargin(score float64) FuelMargin {
	switch {
	case score < 0.3:
		return FuelCritical
	case score < 0.6:
		return FuelTight
	case score < 0.85:
		return FuelOK
	default:
		return FuelComfortable
	}
}

func consistencyClass(v float64) ConsistencyClass {
	switch {
	case v >= 0.9:
		return ConsistencyExcellent
	case v >= 0.75:
		return ConsistencyGood
	case v >= 0.5:
		return ConsistencyVariable
	default:
		return ConsistencyErratic
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return lo.Sum(v) / float64(len(v))
}
