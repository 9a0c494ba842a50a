// Package prompt builds the texts sent to the reasoning service.
package prompt

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/analysis"
)

type Variant int

const (
	VariantNormal Variant = iota
	// VariantStrict is used after the service returned unparsable output
	VariantStrict
	// VariantFast is a condensed prompt for quicker responses
	VariantFast
)

func (v Variant) String() string {
	switch v {
	case VariantStrict:
		return "strict"
	case VariantFast:
		return "fast"
	default:
		return "normal"
	}
}

// maxTelemetryRows limits the telemetry table in the prompt (newest laps first)
const maxTelemetryRows = 10

const jsonEmphasis = "IMPORTANT: You MUST return ONLY valid JSON. " +
	"No markdown, no code blocks, no explanations. Just the raw JSON object."

type Input struct {
	Summary   analysis.Summary
	Context   *model.RaceContext
	Telemetry []model.EnrichedRecord
}

// Generation builds the prompt requesting count candidates
func Generation(in *Input, count int, v Variant) string {
	rc := in.Context
	b := &strings.Builder{}
	if v == VariantFast {
		fmt.Fprintf(b, "Generate %d diverse F1 race strategies for %s at %s.\n\n",
			count, rc.DriverState.DriverName, rc.RaceInfo.TrackName)
		writeCurrent(b, rc)
		fmt.Fprintf(b, "TELEMETRY: Tire deg %.2f (rate %.3f/lap, cliff lap %s), ERS %s, Fuel %s, Driver %s\n\n",
			in.Summary.CurrentDeg, in.Summary.DegradationRate, cliff(in.Summary.CliffLap),
			in.Summary.ERSPattern, in.Summary.FuelMargin, in.Summary.Consistency)
		fmt.Fprintf(b, "Pit laps between %d and %d. Min 2 tire compounds each.\n\n",
			rc.RaceInfo.CurrentLap+1, rc.RaceInfo.TotalLaps-1)
		b.WriteString("JSON: ")
		b.WriteString(candidateExample)
		return b.String()
	}

	fmt.Fprintf(b, "You are an expert F1 strategist. Generate %d diverse race strategies "+
		"based on lap-level telemetry and competitive positioning.\n\n", count)
	b.WriteString("TELEMETRY METRICS (all 0-1):\n" +
		"- tire_degradation_index: higher = more worn\n" +
		"- aero_efficiency: higher = better\n" +
		"- ers_charge: battery state\n" +
		"- fuel_optimization_score: 1 = on the ideal burn\n" +
		"- driver_consistency: 1 = perfectly consistent\n\n")
	writeRaceState(b, rc)
	writeCompetitors(b, rc.Competitors)
	writeTelemetry(b, in.Telemetry)
	writeInsights(b, &in.Summary, rc)
	fmt.Fprintf(b, "TASK: Generate exactly %d strategies.\n", count)
	b.WriteString("DIVERSITY: Conservative (1-stop), Standard (balanced), Aggressive (undercut), " +
		"Reactive (competitor), Contingency (safety car)\n\n")
	b.WriteString("RULES:\n")
	fmt.Fprintf(b, "- Pit laps: %d to %d, strictly increasing\n",
		rc.RaceInfo.CurrentLap+1, rc.RaceInfo.TotalLaps-1)
	b.WriteString("- stop_count equals the number of pit laps\n" +
		"- tire_sequence has stop_count+1 entries of soft, medium, hard, intermediate, wet\n" +
		"- Min 2 different tire compounds (F1 rule)\n" +
		"- risk_level is one of low, medium, high, critical\n\n")
	b.WriteString("OUTPUT FORMAT (JSON only, no markdown):\n")
	b.WriteString(candidateExample)
	if v == VariantStrict {
		b.WriteString("\n\n")
		b.WriteString(jsonEmphasis)
	}
	return b.String()
}

// Ranking builds the prompt requesting the topK ranking of cands
func Ranking(in *Input, cands []model.Candidate, topK int, v Variant) string {
	rc := in.Context
	b := &strings.Builder{}
	fmt.Fprintf(b, "Analyze %d strategies and select the TOP %d for %s at %s.\n\n",
		len(cands), topK, rc.DriverState.DriverName, rc.RaceInfo.TrackName)
	writeCurrent(b, rc)
	last := lastRecord(in.Telemetry)
	fmt.Fprintf(b, "TELEMETRY: Tire deg %.2f (cliff lap %s), Aero %.2f, Fuel %.2f, Driver %.2f\n\n",
		last.TireDegradationIndex, cliff(in.Summary.CliffLap), last.AeroEfficiency,
		last.FuelOptimizationScore, last.DriverConsistency)
	if v != VariantFast {
		writeCompetitors(b, rc.Competitors)
		writeInsights(b, &in.Summary, rc)
	}
	b.WriteString("STRATEGIES:\n")
	for i := range cands {
		c := &cands[i]
		fmt.Fprintf(b, "#%d: %s (%d-stop, laps %v, %s, %s)\n",
			c.StrategyID, c.StrategyName, c.StopCount, c.PitLaps,
			compounds(c.TireSequence), c.RiskLevel)
	}
	fmt.Fprintf(b, "\nSelect TOP %d classified as RECOMMENDED (highest podium chance), "+
		"ALTERNATIVE (viable backup) and CONSERVATIVE (safest).\n", topK)
	b.WriteString("Probabilities are percentages; p1+p2+p3+p4_or_worse must not exceed 100.\n")
	b.WriteString("driver_audio_script is a short radio message to the driver.\n\n")
	b.WriteString("Return JSON in this EXACT format:\n")
	b.WriteString(rankingExample)
	if v == VariantStrict {
		b.WriteString("\n\n")
		b.WriteString(jsonEmphasis)
	}
	return b.String()
}

func writeCurrent(b *strings.Builder, rc *model.RaceContext) {
	fmt.Fprintf(b, "CURRENT: Lap %d/%d, P%d, %s tires (%d laps old), %s\n",
		rc.RaceInfo.CurrentLap, rc.RaceInfo.TotalLaps, rc.DriverState.Position,
		rc.DriverState.CurrentTireCompound, rc.DriverState.TireAgeLaps,
		rc.RaceInfo.WeatherCondition)
}

func writeRaceState(b *strings.Builder, rc *model.RaceContext) {
	fmt.Fprintf(b, "RACE STATE:\nTrack: %s\nCurrent Lap: %d / %d\nWeather: %s\n"+
		"Track Temperature: %.1f C\n\n",
		rc.RaceInfo.TrackName, rc.RaceInfo.CurrentLap, rc.RaceInfo.TotalLaps,
		rc.RaceInfo.WeatherCondition, rc.RaceInfo.TrackTemp)
	fmt.Fprintf(b, "DRIVER STATE:\nDriver: %s\nPosition: P%d\nCurrent Tires: %s (%d laps old)\n"+
		"Fuel Remaining: %.1f%%\n\n",
		rc.DriverState.DriverName, rc.DriverState.Position,
		rc.DriverState.CurrentTireCompound, rc.DriverState.TireAgeLaps,
		rc.DriverState.FuelRemainingPercent)
}

func writeCompetitors(b *strings.Builder, comps []model.Competitor) {
	if len(comps) == 0 {
		return
	}
	b.WriteString("COMPETITORS:\n")
	for _, c := range comps {
		fmt.Fprintf(b, "- P%d %s: %s (%d laps), gap %+.1fs\n",
			c.Position, c.Driver, c.TireCompound, c.TireAgeLaps, c.GapSeconds)
	}
	b.WriteString("\n")
}

func writeTelemetry(b *strings.Builder, recs []model.EnrichedRecord) {
	rows := slices.Clone(recs)
	slices.Reverse(rows)
	if len(rows) > maxTelemetryRows {
		rows = rows[:maxTelemetryRows]
	}
	fmt.Fprintf(b, "ENRICHED TELEMETRY (last %d laps, newest first):\n", len(rows))
	data, _ := json.Marshal(rows)
	b.Write(data)
	b.WriteString("\n\n")
}

func writeInsights(b *strings.Builder, s *analysis.Summary, rc *model.RaceContext) {
	fmt.Fprintf(b, "KEY INSIGHTS:\n"+
		"- Tire degradation: %.3f, rate %.4f per lap\n"+
		"- Projected tire cliff: lap %s\n"+
		"- ERS pattern: %s\n"+
		"- Fuel margin: %s\n"+
		"- Driver consistency: %s\n"+
		"- Laps remaining: %d\n\n",
		s.CurrentDeg, s.DegradationRate, cliff(s.CliffLap), s.ERSPattern,
		s.FuelMargin, s.Consistency, rc.LapsRemaining())
}

func cliff(lap int) string {
	if lap <= 0 {
		return "n/a"
	}
	return fmt.Sprint(lap)
}

func compounds(seq []model.Compound) string {
	parts := make([]string, len(seq))
	for i, c := range seq {
		parts[i] = string(c)
	}
	return strings.Join(parts, "-")
}

func lastRecord(recs []model.EnrichedRecord) model.EnrichedRecord {
	if len(recs) == 0 {
		return model.EnrichedRecord{}
	}
	return recs[len(recs)-1]
}

const candidateExample = `{"strategies": [{"strategy_id": 1, "strategy_name": "Conservative 1-Stop", ` +
	`"stop_count": 1, "pit_laps": [32], "tire_sequence": ["medium", "hard"], ` +
	`"brief_description": "Extend mediums to lap 32, safe finish on hards", ` +
	`"risk_level": "low", "key_assumption": "Tire degradation stays below 0.85 until lap 32"}]}`

const rankingExample = `{
  "top_strategies": [
    {
      "rank": 1,
      "strategy_id": 7,
      "strategy_name": "Strategy Name",
      "classification": "RECOMMENDED",
      "predicted_outcome": {"finish_position_most_likely": 3, "p1_probability": 10,
        "p2_probability": 25, "p3_probability": 40, "p4_or_worse_probability": 25,
        "confidence_score": 75},
      "risk_assessment": {"risk_level": "medium", "key_risks": ["..."], "success_factors": ["..."]},
      "telemetry_insights": {"tire_wear_projection": "...", "aero_status": "...",
        "fuel_margin": "...", "driver_form": "..."},
      "engineer_brief": {"title": "...", "summary": "...", "key_points": ["..."],
        "execution_steps": ["..."]},
      "driver_audio_script": "...",
      "ecu_commands": {"fuel_mode": "RICH", "ers_strategy": "AGGRESSIVE_DEPLOY",
        "engine_mode": "PUSH", "brake_balance_adjustment": 0, "differential_setting": "BALANCED"}
    }
  ],
  "situational_context": {
    "critical_decision_point": "...",
    "telemetry_alert": "...",
    "key_assumption": "...",
    "time_sensitivity": "..."
  }
}`
