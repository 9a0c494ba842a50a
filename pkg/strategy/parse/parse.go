// Package parse turns the raw text of the reasoning service into typed results.
// The service gives no guarantee about well-formed output, so responses are
// cleaned up and checked against a JSON schema before decoding.
package parse

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

var ErrMalformed = errors.New("malformed response")

//go:embed schemas/*.json
var schemaFS embed.FS

//nolint:gochecknoglobals // compiled once
var (
	candidatesSchema = mustCompile("schemas/candidates.json")
	rankingSchema    = mustCompile("schemas/ranking.json")
)

type candidatesEnvelope struct {
	Strategies []model.Candidate `json:"strategies"`
}

// Candidates extracts the strategy candidates from text
func Candidates(text string) ([]model.Candidate, error) {
	var env candidatesEnvelope
	if err := decode(text, candidatesSchema, &env); err != nil {
		return nil, err
	}
	for i := range env.Strategies {
		for j, c := range env.Strategies[i].TireSequence {
			// unknown values are kept so the validator can report them
			if p, err := model.ParseCompound(string(c)); err == nil {
				env.Strategies[i].TireSequence[j] = p
			}
		}
	}
	return env.Strategies, nil
}

// Ranking extracts the ranking from text
func Ranking(text string) (*model.Ranking, error) {
	var ret model.Ranking
	if err := decode(text, rankingSchema, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func decode(text string, schema *jsonschema.Schema, target any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

// ExtractJSON removes markdown code fences and returns the outermost JSON object
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}
	return []byte(s[start : end+1]), nil
}

func mustCompile(name string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		panic(fmt.Errorf("add schema resource: %w", err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Errorf("compile schema: %w", err))
	}
	return schema
}
