package replay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

func TestParseScenario(t *testing.T) {
	yaml := `
description: "clipboard summary"
vars:
  count: "3"
clipboard: "hello world"
query_responses:
  - answer: "hi"
  - error: "rate limited"
spawn_failures: [notepad]
dialog_reject: true
adapter_errors: continue
expected_status: completed
expected_vars:
  input: hi
  tmp: "<absent>"
expected_console:
  - "Loop iteration 2"
must_not_spawn: [rm]
`
	s, err := ParseScenario([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Vars["count"] != "3" || s.Clipboard != "hello world" {
		t.Errorf("vars = %v, clipboard = %q", s.Vars, s.Clipboard)
	}
	if len(s.QueryResponses) != 2 || s.QueryResponses[1].Error != "rate limited" {
		t.Errorf("query_responses = %+v", s.QueryResponses)
	}
	if !s.DialogReject || s.AdapterErrors != "continue" || s.SpawnFailures[0] != "notepad" {
		t.Errorf("scenario = %+v", s)
	}
	if s.Expect.ExpectedStatus != "completed" || s.Expect.ExpectedVars["tmp"] != Absent {
		t.Errorf("expect = %+v", s.Expect)
	}
	if len(s.Expect.MustNotSpawn) != 1 || len(s.Expect.ExpectedConsole) != 1 {
		t.Errorf("expect = %+v", s.Expect)
	}
}

func TestParseScenario_UnknownField(t *testing.T) {
	if _, err := ParseScenario([]byte("expected_stauts: completed\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseScenario_BadPolicy(t *testing.T) {
	if _, err := ParseScenario([]byte("adapter_errors: ignore\n")); err == nil {
		t.Error("expected error for unknown adapter_errors")
	}
}

func TestQuerier_ConsumesInOrder(t *testing.T) {
	q := NewQuerier(QueryResponse{Answer: "one"}, QueryResponse{Error: "boom"})
	ctx := context.Background()

	if got, err := q.Query(ctx, "sys", "first"); err != nil || got != "one" {
		t.Errorf("first = %q, %v", got, err)
	}
	if _, err := q.Query(ctx, "sys", "second"); err == nil || err.Error() != "boom" {
		t.Errorf("second err = %v, want boom", err)
	}
	if _, err := q.Query(ctx, "sys", "third"); err == nil || !strings.Contains(err.Error(), "exhausted") {
		t.Errorf("third err = %v, want exhausted", err)
	}
	calls := q.Calls()
	if len(calls) != 3 || calls[0].User != "first" || calls[2].System != "sys" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestSpawner_Fail(t *testing.T) {
	s := &Spawner{Fail: []string{"bad"}}
	ctx := context.Background()

	r, err := s.Spawn(ctx, "good", []string{"-x"})
	if err != nil || r.PID == 0 || r.Command != "good" {
		t.Errorf("good = %+v, %v", r, err)
	}
	if _, err := s.Spawn(ctx, "bad", nil); err == nil {
		t.Error("expected failure for bad")
	}
	if !s.Spawned("good") || !s.Spawned("bad") || s.Spawned("other") {
		t.Errorf("calls = %+v", s.Calls())
	}
}

func TestDialog_Reject(t *testing.T) {
	d := &Dialog{Reject: true}
	if err := d.Show(context.Background(), "t", "b"); !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if shown := d.Shown(); len(shown) != 1 || shown[0].Title != "t" {
		t.Errorf("shown = %+v", shown)
	}
}

func TestFakes_DriveEngine(t *testing.T) {
	fakes := NewFakes(&Scenario{Clipboard: "abc"})
	prog := &schema.Program{APIVersion: schema.APIVersionProgram, Name: "echo", Steps: []schema.Action{
		{Kind: schema.ActionReadClipboard},
		{Kind: schema.ActionPrintConsole, Content: "got {{input}}"},
		{Kind: schema.ActionWriteClipboard, Content: "{{input}}{{input}}"},
	}}
	result := engine.New(prog, engine.RunConfig{Adapters: fakes.Adapters()}).Run(context.Background())
	if result.Status != engine.StatusCompleted {
		t.Fatalf("status = %q, error = %v", result.Status, result.Error)
	}
	if fakes.Console.String() != "got abc" || fakes.Clipboard.Text() != "abcabc" {
		t.Errorf("console = %q, clipboard = %q", fakes.Console.String(), fakes.Clipboard.Text())
	}
}

func TestRunner_RunAll(t *testing.T) {
	r := &Runner{}
	out, err := r.RunAll(context.Background(), "testdata/summarise.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if out.Program != "summarise" {
		t.Errorf("program = %q", out.Program)
	}
	if out.Summary.Total != 3 || out.Summary.Passed != 2 || out.Summary.Failed != 1 {
		t.Errorf("summary = %+v", out.Summary)
	}

	byName := map[string]TestResult{}
	for _, s := range out.Scenarios {
		byName[s.ScenarioName] = s
	}
	if res := byName["happy"]; res.Status != StatusPassed || res.Trace == "" {
		t.Errorf("happy = %+v", res)
	}
	if res := byName["api_down"]; res.Status != StatusPassed || res.RunStatus != engine.StatusError {
		t.Errorf("api_down = %+v", res)
	}
	wrong := byName["wrong"]
	if wrong.Status != StatusFailed || len(wrong.Assertions) != 1 || wrong.Assertions[0].Actual != "y" {
		t.Errorf("wrong = %+v", wrong)
	}
}

func TestRunner_FailFast(t *testing.T) {
	r := &Runner{FailFast: true}
	out, err := r.RunAll(context.Background(), "testdata/summarise.yaml")
	if err != nil {
		t.Fatal(err)
	}
	// Scenarios run in directory order: api_down, happy, wrong.
	if out.Summary.Total != 3 || out.Summary.Failed != 1 {
		t.Errorf("summary = %+v", out.Summary)
	}
}

func TestRunner_NoScenarios(t *testing.T) {
	out, err := (&Runner{}).RunAll(context.Background(), "../validate/testdata/valid.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if out.Summary.Total != 0 {
		t.Errorf("total = %d, want 0", out.Summary.Total)
	}
}

func TestRunner_InvalidProgram(t *testing.T) {
	if _, err := (&Runner{}).RunAll(context.Background(), "../validate/testdata/missing_field.yaml"); err == nil {
		t.Error("expected validation error")
	}
}

func TestRunner_SpawnExpectations(t *testing.T) {
	prog := &schema.Program{APIVersion: schema.APIVersionProgram, Name: "spawner", Steps: []schema.Action{
		{Kind: schema.ActionSpawn, Command: "notepad", Args: []string{"notes.txt"}},
		{Kind: schema.ActionSpawn, Command: "cleanup"},
		{Kind: schema.ActionSetVariable, Name: "after", Value: "1"},
	}}
	s := &Scenario{
		SpawnFailures: []string{"cleanup"},
		Expect: Expectations{
			ExpectedStatus: engine.StatusError,
			ExpectedReason: "adapter",
			ExpectedVars:   map[string]string{"after": Absent},
			MustSpawn:      []string{"notepad"},
			MustNotSpawn:   []string{"rm"},
		},
	}
	res := (&Runner{}).Run(context.Background(), prog, "spawn", s)
	if res.Status != StatusPassed {
		for _, a := range res.Assertions {
			if !a.Passed {
				t.Errorf("assertion failed: %s", a.Message)
			}
		}
	}
}

func TestRunner_ContinuePolicy(t *testing.T) {
	prog := &schema.Program{APIVersion: schema.APIVersionProgram, Name: "dialog", Steps: []schema.Action{
		{Kind: schema.ActionShowDialog, Title: "Hi", Body: "there"},
		{Kind: schema.ActionPrintConsole, Content: "still running"},
	}}
	s := &Scenario{
		DialogReject:  true,
		AdapterErrors: "continue",
		Expect: Expectations{
			ExpectedStatus:  engine.StatusCompleted,
			ExpectedReason:  engine.ReasonEndOfProgram,
			ExpectedConsole: []string{"still running"},
		},
	}
	res := (&Runner{}).Run(context.Background(), prog, "continue", s)
	if res.Status != StatusPassed {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Trace, `"status":"failed"`) {
		t.Error("trace should record the failed dialog")
	}
}

func TestRunner_Timeout(t *testing.T) {
	prog := &schema.Program{APIVersion: schema.APIVersionProgram, Name: "slow", Steps: []schema.Action{
		{Kind: schema.ActionSleep, DurationMS: "60000"},
	}}
	s := &Scenario{Expect: Expectations{ExpectedStatus: engine.StatusError, ExpectedError: "timeout"}}
	res := (&Runner{Timeout: 20 * time.Millisecond}).Run(context.Background(), prog, "slow", s)
	if res.Status != StatusPassed {
		t.Errorf("result = %+v", res)
	}
}

func TestEvaluate(t *testing.T) {
	clip := "copied"
	exp := &Expectations{
		ExpectedStatus:  "completed",
		ExpectedVars:    map[string]string{"x": "/^[0-9]+$/", "gone": Absent},
		ExpectedConsole: []string{"hello", "/wor.d/"},
		ExpectedClip:    &clip,
	}
	obs := &Observed{
		Result:    &engine.RunResult{Status: "completed", Vars: map[string]string{"x": "42"}},
		Console:   []string{"hello", "world"},
		Clipboard: "copied",
	}
	results := Evaluate(exp, obs)
	if len(results) != 6 {
		t.Errorf("expected 6 assertions, got %d", len(results))
	}
	if HasFailures(results) {
		for _, r := range results {
			if !r.Passed {
				t.Errorf("unexpected failure: %s: %s", r.Type, r.Message)
			}
		}
	}

	obs.Result.Vars["gone"] = "here"
	obs.Result.Status = "error"
	results = Evaluate(exp, obs)
	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
}

func TestEvaluate_ExpectedErrorWithoutError(t *testing.T) {
	results := Evaluate(&Expectations{ExpectedError: "boom"}, &Observed{Result: &engine.RunResult{Status: "completed"}})
	if !HasFailures(results) {
		t.Error("expected_error must fail when the run has no error")
	}
}
