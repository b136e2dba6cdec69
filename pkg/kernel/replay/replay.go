// Package replay runs keystep/v0 programs against canned scenarios.
// A scenario seeds the variable store, scripts every adapter the program
// touches and states what the run must end with, so programs can be tested
// without a clipboard, a desktop or a network.
package replay

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is the top-level replay scenario document.
type Scenario struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Vars seed the variable store.
	Vars map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`

	// Clipboard is the initial clipboard content.
	Clipboard string `yaml:"clipboard,omitempty" json:"clipboard,omitempty"`

	// QueryResponses are consumed in order by ask_chatgpt steps.
	QueryResponses []QueryResponse `yaml:"query_responses,omitempty" json:"query_responses,omitempty"`

	// SpawnFailures lists commands whose spawn fails.
	SpawnFailures []string `yaml:"spawn_failures,omitempty" json:"spawn_failures,omitempty"`

	// DialogReject makes every show_dialog fail.
	DialogReject bool `yaml:"dialog_reject,omitempty" json:"dialog_reject,omitempty"`

	// AdapterErrors overrides the adapter error policy: halt or continue.
	AdapterErrors string `yaml:"adapter_errors,omitempty" json:"adapter_errors,omitempty"`

	Expect Expectations `yaml:",inline" json:"expect"`
}

// QueryResponse is one canned chat answer, or a failure when Error is set.
type QueryResponse struct {
	Answer string `yaml:"answer,omitempty" json:"answer,omitempty"`
	Error  string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Expectations declares what to assert about the run. All fields are
// optional; omitted fields produce no assertions.
type Expectations struct {
	ExpectedStatus  string            `yaml:"expected_status,omitempty" json:"expected_status,omitempty"` // completed, error, cancelled
	ExpectedReason  string            `yaml:"expected_reason,omitempty" json:"expected_reason,omitempty"` // end_program, end_of_program, failure kind
	ExpectedVars    map[string]string `yaml:"expected_vars,omitempty" json:"expected_vars,omitempty"`     // value, /regex/ or "<absent>"
	ExpectedConsole []string          `yaml:"expected_console,omitempty" json:"expected_console,omitempty"`
	ExpectedError   string            `yaml:"expected_error,omitempty" json:"expected_error,omitempty"` // substring of the run error
	ExpectedClip    *string           `yaml:"expected_clipboard,omitempty" json:"expected_clipboard,omitempty"`
	MustSpawn       []string          `yaml:"must_spawn,omitempty" json:"must_spawn,omitempty"`
	MustNotSpawn    []string          `yaml:"must_not_spawn,omitempty" json:"must_not_spawn,omitempty"`
}

// Absent is the expected_vars value asserting a variable is not set.
const Absent = "<absent>"

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	switch s.AdapterErrors {
	case "", "halt", "continue":
	default:
		return nil, fmt.Errorf("parse scenario: adapter_errors must be halt or continue, got %q", s.AdapterErrors)
	}
	return &s, nil
}

// ScenarioInfo describes a discovered scenario file.
type ScenarioInfo struct {
	Name string
	Path string
}

// DiscoverScenarios finds the scenarios of a program.
// Convention: scenarios/<program-name>/*.yaml next to the program file.
func DiscoverScenarios(programPath string) ([]ScenarioInfo, error) {
	dir := filepath.Dir(programPath)
	base := trimExt(filepath.Base(programPath))

	scenariosDir := filepath.Join(dir, "scenarios", base)
	entries, err := os.ReadDir(scenariosDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}

	var scenarios []ScenarioInfo
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		scenarios = append(scenarios, ScenarioInfo{
			Name: trimExt(entry.Name()),
			Path: filepath.Join(scenariosDir, entry.Name()),
		})
	}
	return scenarios, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
