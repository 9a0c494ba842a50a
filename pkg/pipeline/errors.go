package pipeline

import (
	"errors"
	"fmt"

	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/validate"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrNoRaceContext    = errors.New("no race context available")
)

type FailureReason string

const (
	ReasonRetriesExhausted FailureReason = "retries_exhausted"
	ReasonAllIllegal       FailureReason = "all_candidates_illegal"
)

// GenerationFailedError is returned once the generation stage gave up.
// It matches ErrGenerationFailed and the last underlying error with errors.Is.
type GenerationFailedError struct {
	Reason   FailureReason
	Stage    string
	Attempts int
	Last     error
	// violations of the rejected candidates, only set for ReasonAllIllegal
	Rejected map[int][]validate.Violation
}

func (e *GenerationFailedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s: %s after %d attempt(s)", ErrGenerationFailed, e.Reason, e.Attempts)
	}
	return fmt.Sprintf("%s: %s after %d attempt(s): %v",
		ErrGenerationFailed, e.Reason, e.Attempts, e.Last)
}

func (e *GenerationFailedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrGenerationFailed}
	}
	return []error{ErrGenerationFailed, e.Last}
}
