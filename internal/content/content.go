// Package content holds the static reference data for the decision journey:
// the ordered journey steps, the treatment options being compared, and the
// values-clarification questionnaire. The data ships embedded in the binary
// and is parsed and validated once at startup.
package content

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var raw []byte

// Step is one stage of the decision journey shown to the patient.
type Step struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Treatment is one kidney-treatment option presented for comparison.
type Treatment struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name" json:"name"`
	Summary        string   `yaml:"summary" json:"summary"`
	Considerations []string `yaml:"considerations" json:"considerations"`
}

// Question is one values-clarification questionnaire item.
type Question struct {
	ID      string   `yaml:"id" json:"id"`
	Text    string   `yaml:"text" json:"text"`
	Options []string `yaml:"options" json:"options"`
}

// Library is the full set of reference data served to the client.
type Library struct {
	Steps         []Step      `yaml:"steps" json:"steps"`
	Treatments    []Treatment `yaml:"treatments" json:"treatments"`
	Questionnaire []Question  `yaml:"questionnaire" json:"questionnaire"`

	stepIDs map[string]bool
}

// Load parses and validates the embedded reference data.
func Load() (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(raw, &lib); err != nil {
		return nil, fmt.Errorf("content: parse: %w", err)
	}

	if len(lib.Steps) == 0 {
		return nil, fmt.Errorf("content: no journey steps defined")
	}
	if len(lib.Treatments) == 0 {
		return nil, fmt.Errorf("content: no treatment options defined")
	}

	lib.stepIDs = make(map[string]bool, len(lib.Steps))
	for _, s := range lib.Steps {
		if s.ID == "" || s.Title == "" {
			return nil, fmt.Errorf("content: step with missing id or title")
		}
		if lib.stepIDs[s.ID] {
			return nil, fmt.Errorf("content: duplicate step id %q", s.ID)
		}
		lib.stepIDs[s.ID] = true
	}

	seen := make(map[string]bool, len(lib.Treatments))
	for _, tr := range lib.Treatments {
		if tr.ID == "" || tr.Name == "" {
			return nil, fmt.Errorf("content: treatment with missing id or name")
		}
		if seen[tr.ID] {
			return nil, fmt.Errorf("content: duplicate treatment id %q", tr.ID)
		}
		seen[tr.ID] = true
	}

	for _, q := range lib.Questionnaire {
		if q.ID == "" || q.Text == "" {
			return nil, fmt.Errorf("content: question with missing id or text")
		}
	}

	return &lib, nil
}

// ValidStep reports whether id names a defined journey step.
func (l *Library) ValidStep(id string) bool {
	return l.stepIDs[id]
}
