package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStateDir is where run states are saved when no directory is configured.
const DefaultStateDir = "runs"

// RunState captures the engine state at a point in time for resume.
type RunState struct {
	RunID       string            `json:"run_id"`
	ProgramPath string            `json:"program_path"`
	StepIndex   int               `json:"step_index"`
	Vars        map[string]string `json:"vars"`
	Phase       Phase             `json:"phase,omitempty"`
	Error       string            `json:"error,omitempty"`
	TracePath   string            `json:"trace_path,omitempty"`
}

// StatePath returns <dir>/<run-id>/state.json.
func StatePath(dir, runID string) string {
	if dir == "" {
		dir = DefaultStateDir
	}
	return filepath.Join(dir, runID, "state.json")
}

// SaveState persists the run state to a JSON file for later resume.
func SaveState(dir string, state *RunState) error {
	if state.RunID == "" {
		return fmt.Errorf("save state: run id is empty")
	}
	path := StatePath(dir, state.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LoadState reads a persisted run state from disk.
func LoadState(dir, runID string) (*RunState, error) {
	data, err := os.ReadFile(StatePath(dir, runID))
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if state.Vars == nil {
		state.Vars = map[string]string{}
	}
	return &state, nil
}
