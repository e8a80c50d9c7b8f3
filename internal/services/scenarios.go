package services

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var scenarioYAML []byte

// DefaultScenario is used when a session names an unknown scenario.
const DefaultScenario = "general"

type Scenario struct {
	Name     string `yaml:"name"`
	Title    string `yaml:"title"`
	Template string `yaml:"template"`
	Opening  string `yaml:"opening"`
}

// Scenarios is the parsed catalogue keyed by name.
type Scenarios map[string]Scenario

func LoadScenarios() (Scenarios, error) {
	return ParseScenarios(scenarioYAML)
}

func ParseScenarios(raw []byte) (Scenarios, error) {
	var list []Scenario
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	out := make(Scenarios, len(list))
	for _, s := range list {
		if s.Name == "" || s.Opening == "" {
			return nil, fmt.Errorf("scenario %q: name and opening are required", s.Name)
		}
		out[s.Name] = s
	}
	if _, ok := out[DefaultScenario]; !ok {
		return nil, fmt.Errorf("scenario %q missing", DefaultScenario)
	}
	return out, nil
}

// Lookup returns the named scenario, or the default one.
func (s Scenarios) Lookup(name string) Scenario {
	if sc, ok := s[name]; ok {
		return sc
	}
	return s[DefaultScenario]
}

func (s Scenarios) Has(name string) bool {
	_, ok := s[name]
	return ok
}
