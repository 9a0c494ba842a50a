package check

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/config"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/validate"
)

var ErrNoLegalCandidate = errors.New("no legal candidate")

// Input is the content of a check file
type Input struct {
	Context    model.RaceContext `json:"race_context"`
	Candidates []model.Candidate `json:"candidates"`
}

type Report struct {
	Legal    []int
	Rejected map[int][]validate.Violation
}

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check file",
		Short: "checks strategy candidates against the race rules",
		Long: `Reads a yaml (or json) file with the keys race_context and candidates
and reports the violations of every candidate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := LoadInput(args[0])
			if err != nil {
				return err
			}
			report := Check(in, validate.WithWetExemption(config.WetExemption))
			Print(cmd.OutOrStdout(), in, report)
			if len(report.Legal) == 0 {
				return ErrNoLegalCandidate
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&config.WetExemption,
		"wet-exemption",
		true,
		"skip the two-compound rule in wet races")
	return cmd
}

func LoadInput(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseInput(data)
}

// ParseInput decodes yaml or json and validates the race context.
// The yaml is converted to json first so the json names of the model apply.
func ParseInput(data []byte) (*Input, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	var ret Input
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(&ret.Context); err != nil {
		return nil, fmt.Errorf("invalid race_context: %w", err)
	}
	return &ret, nil
}

func Check(in *Input, opts ...validate.Option) *Report {
	valid, rejected := validate.Filter(in.Candidates, &in.Context, opts...)
	ret := &Report{Rejected: rejected}
	for i := range valid {
		ret.Legal = append(ret.Legal, valid[i].StrategyID)
	}
	log.Debug("checked candidates",
		log.Int("legal", len(ret.Legal)),
		log.Int("rejected", len(rejected)))
	return ret
}

func Print(w io.Writer, in *Input, r *Report) {
	for i := range in.Candidates {
		c := &in.Candidates[i]
		violations, bad := r.Rejected[c.StrategyID]
		if !bad {
			fmt.Fprintf(w, "%3d %-30s ok\n", c.StrategyID, c.StrategyName)
			continue
		}
		fmt.Fprintf(w, "%3d %-30s %d violation(s)\n", c.StrategyID, c.StrategyName, len(violations))
		for _, v := range violations {
			fmt.Fprintf(w, "      %s\n", v)
		}
	}
	ids := slices.Clone(r.Legal)
	slices.Sort(ids)
	fmt.Fprintf(w, "legal: %v\n", ids)
}
