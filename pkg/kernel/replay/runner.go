package replay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
	"github.com/ormasoftchile/keystep/pkg/kernel/validate"
)

// Scenario outcomes.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// AssertionResult is the result of a single assertion.
type AssertionResult struct {
	Type     string `json:"type"` // expected_status, expected_var, must_not_spawn, ...
	Key      string `json:"key,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// TestResult is the result of running one scenario.
type TestResult struct {
	ProgramName  string            `json:"program_name"`
	ScenarioName string            `json:"scenario_name"`
	Status       string            `json:"status"` // passed, failed, error
	DurationMs   int64             `json:"duration_ms"`
	RunStatus    string            `json:"run_status,omitempty"`
	Vars         map[string]string `json:"vars,omitempty"`
	Assertions   []AssertionResult `json:"assertions,omitempty"`
	Error        string            `json:"error,omitempty"`

	// Trace is the JSONL trace of the replayed run.
	Trace string `json:"-"`
}

// TestSummary aggregates counts across scenarios.
type TestSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// TestOutput is the top-level output of a test run.
type TestOutput struct {
	Program   string       `json:"program"`
	Scenarios []TestResult `json:"scenarios"`
	Summary   TestSummary  `json:"summary"`
}

// Runner replays programs against scenarios.
type Runner struct {
	// Timeout bounds each replayed run. Zero means no bound.
	Timeout  time.Duration
	FailFast bool
	Logger   *slog.Logger

	// MaxSteps is passed to the engine. Zero means the engine default.
	MaxSteps int
}

// Observed is what a replayed run produced, the input to Evaluate.
type Observed struct {
	Result    *engine.RunResult
	Console   []string
	Clipboard string
	Spawned   []string
}

// RunAll validates the program and replays every discovered scenario.
func (r *Runner) RunAll(ctx context.Context, programPath string) (*TestOutput, error) {
	scenarios, err := DiscoverScenarios(programPath)
	if err != nil {
		return nil, err
	}
	prog, errs := validate.ValidateFile(programPath)
	if validate.HasErrors(errs) {
		return nil, fmt.Errorf("program validation failed: %v", validate.Errors(errs)[0])
	}

	output := &TestOutput{Program: prog.Name}
	for _, si := range scenarios {
		s, err := LoadScenario(si.Path)
		var result TestResult
		if err != nil {
			result = TestResult{ProgramName: prog.Name, ScenarioName: si.Name, Status: StatusError, Error: err.Error()}
		} else {
			result = r.Run(ctx, prog, si.Name, s)
		}
		output.Add(result)
		if r.FailFast && result.Status != StatusPassed {
			break
		}
	}
	return output, nil
}

// Add appends a result and updates the summary.
func (o *TestOutput) Add(result TestResult) {
	o.Scenarios = append(o.Scenarios, result)
	o.Summary.Total++
	switch result.Status {
	case StatusPassed:
		o.Summary.Passed++
	case StatusFailed:
		o.Summary.Failed++
	default:
		o.Summary.Errors++
	}
}

// Run replays prog against one scenario and evaluates its expectations.
func (r *Runner) Run(ctx context.Context, prog *schema.Program, name string, s *Scenario) TestResult {
	start := time.Now()
	result := TestResult{ProgramName: prog.Name, ScenarioName: name}

	policy, err := engine.ParseAdapterPolicy(s.AdapterErrors)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	fakes := NewFakes(s)
	var traceBuf bytes.Buffer
	runID := "replay-" + name
	cfg := engine.RunConfig{
		RunID:         runID,
		Vars:          s.Vars,
		Adapters:      fakes.Adapters(),
		Logger:        r.Logger,
		Trace:         trace.NewWriter(&traceBuf, runID),
		AdapterPolicy: policy,
		MaxSteps:      r.MaxSteps,
	}
	run := engine.New(prog, cfg).Run(ctx)

	var spawned []string
	for _, c := range fakes.Spawner.Calls() {
		spawned = append(spawned, c.Command)
	}
	assertions := Evaluate(&s.Expect, &Observed{
		Result:    run,
		Console:   fakes.Console.Lines(),
		Clipboard: fakes.Clipboard.Text(),
		Spawned:   spawned,
	})

	result.Status = StatusPassed
	if HasFailures(assertions) {
		result.Status = StatusFailed
	}
	result.RunStatus = run.Status
	result.Vars = run.Vars
	result.Assertions = assertions
	result.DurationMs = time.Since(start).Milliseconds()
	result.Trace = traceBuf.String()
	if run.Error != nil {
		result.Error = run.Error.Error()
	}
	return result
}

// Evaluate runs all expectations against an observed run.
func Evaluate(exp *Expectations, obs *Observed) []AssertionResult {
	var results []AssertionResult
	run := obs.Result

	if exp.ExpectedStatus != "" {
		results = append(results, AssertionResult{
			Type:     "expected_status",
			Expected: exp.ExpectedStatus,
			Actual:   run.Status,
			Passed:   run.Status == exp.ExpectedStatus,
			Message:  fmt.Sprintf("status: expected %q, got %q", exp.ExpectedStatus, run.Status),
		})
	}

	if exp.ExpectedReason != "" {
		results = append(results, AssertionResult{
			Type:     "expected_reason",
			Expected: exp.ExpectedReason,
			Actual:   run.Reason,
			Passed:   run.Reason == exp.ExpectedReason,
			Message:  fmt.Sprintf("reason: expected %q, got %q", exp.ExpectedReason, run.Reason),
		})
	}

	for _, name := range slices.Sorted(maps.Keys(exp.ExpectedVars)) {
		expected := exp.ExpectedVars[name]
		actual, ok := run.Vars[name]
		var passed bool
		if expected == Absent {
			passed = !ok
			if ok {
				actual = fmt.Sprintf("%q", actual)
			} else {
				actual = Absent
			}
		} else {
			passed = ok && compareValue(expected, actual)
			if !ok {
				actual = Absent
			}
		}
		results = append(results, AssertionResult{
			Type:     "expected_var",
			Key:      name,
			Expected: expected,
			Actual:   actual,
			Passed:   passed,
			Message:  fmt.Sprintf("var %q: expected %q, got %q", name, expected, actual),
		})
	}

	console := strings.Join(obs.Console, "\n")
	for _, want := range exp.ExpectedConsole {
		passed := compareValue(want, console) || (!isPattern(want) && strings.Contains(console, want))
		results = append(results, AssertionResult{
			Type:     "expected_console",
			Expected: want,
			Actual:   console,
			Passed:   passed,
			Message:  fmt.Sprintf("console output does not contain %q", want),
		})
	}

	if exp.ExpectedError != "" {
		actual := ""
		if run.Error != nil {
			actual = run.Error.Error()
		}
		results = append(results, AssertionResult{
			Type:     "expected_error",
			Expected: exp.ExpectedError,
			Actual:   actual,
			Passed:   actual != "" && (compareValue(exp.ExpectedError, actual) || strings.Contains(actual, exp.ExpectedError)),
			Message:  fmt.Sprintf("error: expected %q, got %q", exp.ExpectedError, actual),
		})
	}

	if exp.ExpectedClip != nil {
		results = append(results, AssertionResult{
			Type:     "expected_clipboard",
			Expected: *exp.ExpectedClip,
			Actual:   obs.Clipboard,
			Passed:   compareValue(*exp.ExpectedClip, obs.Clipboard),
			Message:  fmt.Sprintf("clipboard: expected %q, got %q", *exp.ExpectedClip, obs.Clipboard),
		})
	}

	spawned := make(map[string]bool, len(obs.Spawned))
	for _, c := range obs.Spawned {
		spawned[c] = true
	}
	for _, cmd := range exp.MustSpawn {
		results = append(results, AssertionResult{
			Type:     "must_spawn",
			Key:      cmd,
			Expected: "spawned",
			Actual:   spawnedText(spawned[cmd]),
			Passed:   spawned[cmd],
			Message:  fmt.Sprintf("must_spawn %q: %s", cmd, spawnedText(spawned[cmd])),
		})
	}
	for _, cmd := range exp.MustNotSpawn {
		results = append(results, AssertionResult{
			Type:     "must_not_spawn",
			Key:      cmd,
			Expected: "not spawned",
			Actual:   spawnedText(spawned[cmd]),
			Passed:   !spawned[cmd],
			Message:  fmt.Sprintf("must_not_spawn %q: %s", cmd, spawnedText(spawned[cmd])),
		})
	}

	return results
}

// HasFailures returns true if any assertion failed.
func HasFailures(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// compareValue matches /pattern/ as a regular expression, anything else exactly.
func compareValue(expected, actual string) bool {
	if isPattern(expected) {
		re, err := regexp.Compile(expected[1 : len(expected)-1])
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	}
	return expected == actual
}

func isPattern(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/")
}

func spawnedText(b bool) string {
	if b {
		return "spawned"
	}
	return "not spawned"
}
