package enrich

import (
	"math"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

type sample struct {
	lap   int
	value float64
}

// sampleRing keeps the per-lap performance proxy of the trailing laps.
// A repeated lap replaces its sample instead of adding a new one.
type sampleRing struct {
	items []sample
	size  int
}

func newSampleRing(size int) *sampleRing {
	return &sampleRing{items: make([]sample, 0, size), size: size}
}

func (r *sampleRing) add(lap int, v float64) {
	if n := len(r.items); n > 0 && r.items[n-1].lap == lap {
		r.items[n-1].value = v
		return
	}
	if len(r.items) == r.size {
		r.items = append(r.items[:0], r.items[1:]...)
	}
	r.items = append(r.items, sample{lap: lap, value: v})
}

func (r *sampleRing) values() []float64 {
	ret := make([]float64, len(r.items))
	for i := range r.items {
		ret[i] = r.items[i].value
	}
	return ret
}

// sessionState is owned by a single session and only accessed while the
// session lock is held.
type sessionState struct {
	lastLap int

	stintCompound model.Compound
	stintStartLap int
	wearLap       int // last lap whose wear was accumulated
	wear          float64

	window   *sampleRing
	topSpeed float64
	ers      *float64

	fuelStartLap int
	fuelStart    float64

	// remembered context
	trackName  string
	driverName string
	totalLaps  int
	position   int
	trackTemp  *float64
	rain       *float64
}

func newSessionState() *sessionState {
	return &sessionState{window: newSampleRing(consistencyWindow)}
}

// degradation updates the stint tracking and returns the current index.
// The index never decreases within a stint and resets on a compound change.
func (s *sessionState) degradation(rec *model.TelemetryRecord) float64 {
	switch {
	case s.stintCompound == "":
		s.startStint(rec, wearFloor[rec.TireCompound])
	case s.stintCompound != rec.TireCompound:
		// a stint shorter than the new floor keeps its lower wear, the index never rises on a change
		s.startStint(rec, math.Min(wearFloor[rec.TireCompound], s.wear))
	case rec.Lap > s.wearLap:
		elapsed := float64(rec.Lap - s.wearLap)
		w := lapWear(rec.TireCompound, rec.Speed, rec.Throttle, rec.Brake, rec.TrackTemp)
		s.wear = math.Min(1, s.wear+elapsed*w)
		s.wearLap = rec.Lap
	}
	return s.wear
}

func (s *sessionState) startStint(rec *model.TelemetryRecord, wear float64) {
	s.stintCompound = rec.TireCompound
	s.stintStartLap = rec.Lap
	if rec.TireAgeLaps != nil {
		s.stintStartLap = rec.Lap - *rec.TireAgeLaps
	}
	s.wearLap = rec.Lap
	s.wear = wear
}

func (s *sessionState) tireAge(rec *model.TelemetryRecord) int {
	if rec.TireAgeLaps != nil {
		return *rec.TireAgeLaps
	}
	return max(0, rec.Lap-s.stintStartLap)
}

func (s *sessionState) ersCharge(rec *model.TelemetryRecord) float64 {
	v := rawERS(rec.ERS, rec.Throttle, rec.Brake)
	if s.ers != nil {
		v = clamp01(ersSmoothing*(*s.ers) + (1-ersSmoothing)*v)
	}
	s.ers = &v
	return v
}

func (s *sessionState) aero(rec *model.TelemetryRecord) float64 {
	s.topSpeed = math.Max(s.topSpeed, rec.Speed)
	return aeroEfficiency(rec.Speed, rec.Throttle, rec.Brake,
		math.Max(speedBaseline, s.topSpeed))
}

func (s *sessionState) fuel(rec *model.TelemetryRecord) float64 {
	if s.fuelStartLap == 0 {
		s.fuelStartLap = rec.Lap
		s.fuelStart = rec.FuelLevel
	}
	return fuelScore(rec.FuelLevel, rec.Lap, s.fuelStartLap, s.fuelStart, s.totalLaps)
}

// remember takes over the context fields present in rec
func (s *sessionState) remember(rec *model.TelemetryRecord) {
	if rec.TrackName != "" {
		s.trackName = rec.TrackName
	}
	if rec.DriverName != "" {
		s.driverName = rec.DriverName
	}
	if rec.TotalLaps > 0 {
		s.totalLaps = rec.TotalLaps
	}
	if rec.Position > 0 {
		s.position = rec.Position
	}
	if rec.TrackTemp != nil {
		v := *rec.TrackTemp
		s.trackTemp = &v
	}
	if rec.RainProbability != nil {
		v := *rec.RainProbability
		s.rain = &v
	}
}
