package model

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Candidate is a strategy proposal as produced by the generation stage.
// Legality is checked by the validator, not enforced here.
type Candidate struct {
	StrategyID       int        `json:"strategy_id" yaml:"strategy_id"`
	StrategyName     string     `json:"strategy_name" yaml:"strategy_name"`
	StopCount        int        `json:"stop_count" yaml:"stop_count"`
	PitLaps          []int      `json:"pit_laps" yaml:"pit_laps"`
	TireSequence     []Compound `json:"tire_sequence" yaml:"tire_sequence"`
	BriefDescription string     `json:"brief_description" yaml:"brief_description"`
	RiskLevel        RiskLevel  `json:"risk_level" yaml:"risk_level"`
	KeyAssumption    string     `json:"key_assumption" yaml:"key_assumption"`
}

type Classification string

const (
	ClassRecommended  Classification = "RECOMMENDED"
	ClassAlternative  Classification = "ALTERNATIVE"
	ClassConservative Classification = "CONSERVATIVE"
)

// PredictedOutcome holds percentages (0..100).
// The position probabilities sum up to at most 100.
type PredictedOutcome struct {
	FinishPositionMostLikely int `json:"finish_position_most_likely"`
	P1Probability            int `json:"p1_probability"`
	P2Probability            int `json:"p2_probability"`
	P3Probability            int `json:"p3_probability"`
	P4OrWorseProbability     int `json:"p4_or_worse_probability"`
	ConfidenceScore          int `json:"confidence_score"`
}

func (p PredictedOutcome) Sum() int {
	return p.P1Probability + p.P2Probability + p.P3Probability + p.P4OrWorseProbability
}

type RiskAssessment struct {
	RiskLevel      RiskLevel `json:"risk_level"`
	KeyRisks       []string  `json:"key_risks"`
	SuccessFactors []string  `json:"success_factors"`
}

type TelemetryInsights struct {
	TireWearProjection string `json:"tire_wear_projection"`
	AeroStatus         string `json:"aero_status"`
	FuelMargin         string `json:"fuel_margin"`
	DriverForm         string `json:"driver_form"`
}

type EngineerBrief struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	ExecutionSteps []string `json:"execution_steps"`
}

type ECUCommands struct {
	FuelMode               string `json:"fuel_mode"`   // LEAN, STANDARD, RICH
	ERSStrategy            string `json:"ers_strategy"` // CONSERVATIVE, BALANCED, AGGRESSIVE_DEPLOY
	EngineMode             string `json:"engine_mode"`  // SAVE, STANDARD, PUSH, OVERTAKE
	BrakeBalanceAdjustment int    `json:"brake_balance_adjustment"`
	DifferentialSetting    string `json:"differential_setting"`
}

// RankedStrategy wraps a validated candidate with the ranking stage results
type RankedStrategy struct {
	Rank              int               `json:"rank"`
	StrategyID        int               `json:"strategy_id"`
	StrategyName      string            `json:"strategy_name"`
	Classification    Classification    `json:"classification"`
	PredictedOutcome  PredictedOutcome  `json:"predicted_outcome"`
	RiskAssessment    RiskAssessment    `json:"risk_assessment"`
	TelemetryInsights TelemetryInsights `json:"telemetry_insights"`
	EngineerBrief     EngineerBrief     `json:"engineer_brief"`
	DriverAudioScript string            `json:"driver_audio_script"`
	ECUCommands       ECUCommands       `json:"ecu_commands"`
	Candidate         Candidate         `json:"candidate"`
}

type SituationalContext struct {
	CriticalDecisionPoint string `json:"critical_decision_point"`
	TelemetryAlert        string `json:"telemetry_alert"`
	KeyAssumption         string `json:"key_assumption"`
	TimeSensitivity       string `json:"time_sensitivity"`
}

type Ranking struct {
	Strategies  []RankedStrategy    `json:"top_strategies"`
	Situational *SituationalContext `json:"situational_context,omitempty"`
}
