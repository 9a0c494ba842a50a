package enrich

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

const (
	speedBaseline     = 330.0 // km/h, minimal baseline for aero efficiency
	consistencyWindow = 5
	consistencyNorm   = 30.0 * 30.0 // speed variance mapped to 0 consistency
	ersSmoothing      = 0.3         // weight of the previous ers value
	neutralFuelScore  = 0.5
	// DefaultConsistency is reported while fewer than 2 laps are in the window
	DefaultConsistency = 1.0
)

//nolint:gochecknoglobals // lookup tables
var (
	baseWear = map[model.Compound]float64{
		model.CompoundSoft:         0.012,
		model.CompoundMedium:       0.008,
		model.CompoundHard:         0.006,
		model.CompoundIntermediate: 0.015,
		model.CompoundWet:          0.020,
	}
	// degradation index of a fresh set
	// wearFloor is the index a new stint starts with. On a compound change the
	// index becomes min(floor, current wear), so hard at 0.01 followed by soft stays 0.01.
	wearFloor = map[model.Compound]float64{
		model.CompoundSoft:         0.02,
		model.CompoundMedium:       0.015,
		model.CompoundHard:         0.01,
		model.CompoundIntermediate: 0.02,
		model.CompoundWet:          0.02,
	}
)

func aeroEfficiency(speed, throttle, brake, baseline float64) float64 {
	return clamp01(0.5*clamp01(speed/baseline) + 0.2*throttle - 0.4*brake)
}

// lapWear computes the wear of a single lap
func lapWear(c model.Compound, speed, throttle, brake float64, trackTemp *float64) float64 {
	tempFactor := 1.0
	if trackTemp != nil {
		switch {
		case *trackTemp > 42:
			tempFactor = 1.25
		case *trackTemp < 15:
			tempFactor = 0.9
		}
	}
	stress := 0.5 + 0.5*throttle + 0.2*math.Max(0, (speed-250)/100) + 0.3*brake
	return baseWear[c] * stress * tempFactor
}

func rawERS(ers *float64, throttle, brake float64) float64 {
	if ers != nil {
		return clamp01(*ers + 0.1*brake - 0.05*throttle)
	}
	return clamp01(0.6 + 0.05*brake - 0.03*throttle)
}

// fuelScore compares the current fuel level with an ideal linear burn from the
// first observed sample down to zero at race end.
func fuelScore(fuel float64, lap, startLap int, startFuel float64, totalLaps int) float64 {
	if totalLaps <= 0 {
		return neutralFuelScore
	}
	ideal := 0.0
	if span := totalLaps - startLap; span > 0 {
		ideal = startFuel * (1 - float64(lap-startLap)/float64(span))
	}
	return clamp01(1 - 2*math.Abs(fuel-clamp01(ideal)))
}

// consistency is 1 minus the normalized population variance of the samples
func consistency(samples []float64) float64 {
	if len(samples) < 2 {
		return DefaultConsistency
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	variance := 0.0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))
	return clamp01(1 - math.Min(1, variance/consistencyNorm))
}

func weatherImpact(rain, trackTemp *float64) model.WeatherImpact {
	score := 0.0
	if rain != nil {
		score += 0.7 * *rain
	}
	if trackTemp != nil {
		if *trackTemp < 12 {
			score += 0.2
		}
		if *trackTemp > 45 {
			score += 0.2
		}
	}
	switch {
	case score < 0.3:
		return model.WeatherImpactLow
	case score < 0.6:
		return model.WeatherImpactMedium
	default:
		return model.WeatherImpactHigh
	}
}

func weatherCondition(rain float64) string {
	switch {
	case rain >= 0.6:
		return model.WeatherWet
	case rain >= 0.3:
		return model.WeatherMixed
	default:
		return model.WeatherDry
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
