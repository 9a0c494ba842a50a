package pipeline

import (
	"fmt"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingTelemetry
	StateGenerating
	StateValidating
	StateRanking
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingTelemetry:
		return "AwaitingTelemetry"
	case StateGenerating:
		return "Generating"
	case StateValidating:
		return "Validating"
	case StateRanking:
		return "Ranking"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for v := StateIdle; v <= StateFailed; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state: %q", text)
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
