// Package enrich turns canonical telemetry records into derived performance
// metrics. It is the only stateful analytics component: each session key owns
// stint tracking, the consistency window and the remembered race context.
//
// Records of a session must be supplied in non-decreasing lap order. Records
// arriving out of order are not reordered; they neither accumulate wear nor
// update the fuel baseline.
package enrich

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/processing/competitors"
)

var ErrInvalidTelemetry = errors.New("invalid telemetry")

const (
	defaultTrackName  = "Unknown"
	defaultDriverName = "Driver"
)

type (
	Option func(*Engine)
	Engine struct {
		store       *sessionStore
		competitors competitors.Provider
		l           *log.Logger
	}
)

func WithCompetitorProvider(p competitors.Provider) Option {
	return func(e *Engine) {
		e.competitors = p
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

func NewEngine(opts ...Option) *Engine {
	ret := &Engine{
		store:       newSessionStore(),
		competitors: competitors.NewMockProvider(),
		l:           log.Default().Named("enrich"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Enrich computes the enriched metrics for rec and the merged race context.
// Invalid records are rejected before any session state is touched.
//
//nolint:whitespace // can't make both editor and linter happy
func (e *Engine) Enrich(sessionKey string, rec *model.TelemetryRecord) (
	model.EnrichedRecord, *model.RaceContext, error,
) {
	if err := check(rec); err != nil {
		return model.EnrichedRecord{}, nil, err
	}
	in := clamped(rec)
	var (
		out model.EnrichedRecord
		rc  *model.RaceContext
	)
	err := e.store.with(sessionKey, func(st *sessionState) error {
		if in.Lap < st.lastLap {
			e.l.Warn("lap out of order",
				log.String("session", sessionKey),
				log.Int("lap", in.Lap),
				log.Int("lastLap", st.lastLap))
		}
		st.remember(in)
		out = model.EnrichedRecord{
			Lap:                   in.Lap,
			AeroEfficiency:        round(st.aero(in), 3),
			TireDegradationIndex:  round(st.degradation(in), 3),
			ERSCharge:             round(st.ersCharge(in), 3),
			FuelOptimizationScore: round(st.fuel(in), 3),
			DriverConsistency:     round(st.consistencyScore(in), 3),
			WeatherImpact:         weatherImpact(st.rain, st.trackTemp),
		}
		rc = e.raceContext(st, in)
		st.lastLap = max(st.lastLap, in.Lap)
		return nil
	})
	if err != nil {
		return model.EnrichedRecord{}, nil, err
	}
	e.l.Debug("enriched",
		log.String("session", sessionKey),
		log.Int("lap", out.Lap),
		log.Float64("tireDeg", out.TireDegradationIndex))
	return out, rc, nil
}

// Reset discards the state of a session
func (e *Engine) Reset(sessionKey string) {
	e.store.remove(sessionKey)
}

func (e *Engine) ResetAll() {
	e.store.clear()
}

func (e *Engine) Sessions() []string {
	ret := e.store.keys()
	slices.Sort(ret)
	return ret
}

func (s *sessionState) consistencyScore(rec *model.TelemetryRecord) float64 {
	s.window.add(rec.Lap, rec.Speed)
	return consistency(s.window.values())
}

func (e *Engine) raceContext(st *sessionState, rec *model.TelemetryRecord) *model.RaceContext {
	rc := &model.RaceContext{
		RaceInfo: model.RaceInfo{
			TrackName:        orDefault(st.trackName, defaultTrackName),
			TotalLaps:        st.totalLaps,
			CurrentLap:       rec.Lap,
			WeatherCondition: model.WeatherDry,
		},
		DriverState: model.DriverState{
			DriverName:           orDefault(st.driverName, defaultDriverName),
			Position:             max(1, st.position),
			CurrentTireCompound:  rec.TireCompound,
			TireAgeLaps:          st.tireAge(rec),
			FuelRemainingPercent: round(rec.FuelLevel*100, 1),
		},
	}
	if st.rain != nil {
		rc.RaceInfo.WeatherCondition = weatherCondition(*st.rain)
	}
	if st.trackTemp != nil {
		rc.RaceInfo.TrackTemp = *st.trackTemp
	}
	rc.Competitors = e.competitors.Competitors(rc.DriverState, rec.Lap)
	return rc
}

func check(rec *model.TelemetryRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: missing record", ErrInvalidTelemetry)
	}
	if rec.Lap <= 0 {
		return fmt.Errorf("%w: lap must be positive, got %d", ErrInvalidTelemetry, rec.Lap)
	}
	if math.IsNaN(rec.Speed) || rec.Speed < 0 {
		return fmt.Errorf("%w: speed out of range: %v", ErrInvalidTelemetry, rec.Speed)
	}
	for name, v := range map[string]float64{
		"throttle": rec.Throttle, "brake": rec.Brake, "fuel_level": rec.FuelLevel,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a number", ErrInvalidTelemetry, name)
		}
	}
	if _, err := model.ParseCompound(string(rec.TireCompound)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTelemetry, err)
	}
	return nil
}

// clamped returns a copy of rec with bounded fields clamped into range
func clamped(rec *model.TelemetryRecord) *model.TelemetryRecord {
	ret := *rec
	ret.TireCompound, _ = model.ParseCompound(string(rec.TireCompound))
	ret.Throttle = clamp01(rec.Throttle)
	ret.Brake = clamp01(rec.Brake)
	ret.FuelLevel = clamp01(rec.FuelLevel)
	if rec.ERS != nil {
		v := clamp01(*rec.ERS)
		ret.ERS = &v
	}
	if rec.RainProbability != nil {
		v := clamp01(*rec.RainProbability)
		ret.RainProbability = &v
	}
	return &ret
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
