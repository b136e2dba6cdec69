package validate

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

func testdataPath(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func TestValidateFile_Valid(t *testing.T) {
	p, errs := ValidateFile(testdataPath("valid.yaml"))
	for _, e := range errs {
		t.Errorf("unexpected finding: %s", e)
	}
	if p == nil {
		t.Fatal("expected program, got nil")
	}
	if p.Name != "counted-loop" {
		t.Errorf("expected name 'counted-loop', got %q", p.Name)
	}
	if len(p.Steps) != 5 {
		t.Errorf("expected 5 steps, got %d", len(p.Steps))
	}
}

func TestValidateFile_MissingField(t *testing.T) {
	_, errs := ValidateFile(testdataPath("missing_field.yaml"))
	errors := Errors(errs)
	if len(errors) == 0 {
		t.Fatal("expected errors for missing field")
	}
	if errors[0].Phase != PhaseSemantic {
		t.Errorf("phase = %q, want semantic", errors[0].Phase)
	}
	if !containsMessage(errors, "value") {
		t.Errorf("expected error naming 'value', got %v", errors)
	}
	if !containsPath(errors, "steps[0]") {
		t.Errorf("expected error at steps[0], got %v", errors)
	}
}

func TestValidateFile_ForeignField(t *testing.T) {
	_, errs := ValidateFile(testdataPath("foreign_field.yaml"))
	errors := Errors(errs)
	if !containsMessage(errors, "title") {
		t.Errorf("expected error naming 'title', got %v", errors)
	}
	if len(errors) != 1 {
		t.Errorf("expected a single error for the tagged arm, got %d: %v", len(errors), errors)
	}
}

func TestValidateFile_UnknownAction(t *testing.T) {
	_, errs := ValidateFile(testdataPath("unknown_action.yaml"))
	errors := Errors(errs)
	if !containsMessage(errors, "action must be one of") {
		t.Errorf("expected unknown action error, got %v", errors)
	}
}

func TestValidateFile_UnquotedNumber(t *testing.T) {
	_, errs := ValidateFile(testdataPath("unquoted_number.yaml"))
	errors := Errors(errs)
	if !containsMessage(errors, "want string") {
		t.Errorf("expected type error, got %v", errors)
	}
	if !containsPath(errors, "steps[0].duration_ms") {
		t.Errorf("expected error at steps[0].duration_ms, got %v", errors)
	}
}

func TestValidateFile_LiteralWarnings(t *testing.T) {
	_, errs := ValidateFile(testdataPath("bad_targets.yaml"))
	if HasErrors(errs) {
		t.Fatalf("literal problems must only warn, got %v", Errors(errs))
	}
	warnings := Warnings(errs)
	wantMessages := []string{
		"step 7 is outside [0,5)",
		"lands on -2",
		"unknown operation \"roughly\"",
		"target \"one\" is not an integer",
		"not a non-negative integer",
		"variable \"greeting\" is never set",
		"variable \"next\" is never set",
	}
	for _, want := range wantMessages {
		if !containsMessage(warnings, want) {
			t.Errorf("expected warning containing %q", want)
		}
	}
}

func TestValidateFile_WrongVersion(t *testing.T) {
	_, errs := ValidateFile(testdataPath("wrong_version.yaml"))
	errors := Errors(errs)
	if len(errors) != 1 || errors[0].Phase != PhaseDomain || errors[0].Path != "apiVersion" {
		t.Errorf("expected one domain error at apiVersion, got %v", errors)
	}
}

func TestValidateFile_NoSteps(t *testing.T) {
	_, errs := ValidateFile(testdataPath("no_steps.yaml"))
	if !HasErrors(errs) {
		t.Fatal("expected error for empty steps")
	}
	if !containsPath(Errors(errs), "steps") {
		t.Errorf("expected error at steps, got %v", errs)
	}
}

func TestValidateFile_UnknownTopLevelField(t *testing.T) {
	_, errs := ValidateFile(testdataPath("unknown_top.yaml"))
	if len(errs) == 0 || errs[0].Phase != PhaseStructural {
		t.Fatalf("expected structural error, got %v", errs)
	}
}

func TestValidateFile_NotFound(t *testing.T) {
	_, errs := ValidateFile(testdataPath("nonexistent.yaml"))
	if len(errs) == 0 {
		t.Fatal("expected error for nonexistent file")
	}
	if errs[0].Phase != PhaseStructural {
		t.Errorf("expected structural error, got %q", errs[0].Phase)
	}
}

func TestValidateBytes_JSON(t *testing.T) {
	doc := `{"apiVersion":"keystep/v0","name":"j","steps":[{"action":"write_clipboard","content":"{{input}}"}]}`
	p, errs := ValidateBytes([]byte(doc))
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if p.Steps[0].Kind != schema.ActionWriteClipboard {
		t.Errorf("kind = %q", p.Steps[0].Kind)
	}
}

func TestValidateProgram_ExtraFieldsAndKinds(t *testing.T) {
	p := &schema.Program{
		APIVersion: schema.APIVersionProgram,
		Name:       "built",
		Steps: []schema.Action{
			{Kind: schema.ActionEndProgram, Content: "stray"},
		},
	}
	errs := ValidateProgram(p)
	if !containsMessage(Errors(errs), `field "content" is not allowed on end_program`) {
		t.Errorf("expected extra field error, got %v", errs)
	}

	p.Steps[0] = schema.Action{Kind: "teleport"}
	if !HasErrors(ValidateProgram(p)) {
		t.Error("expected error for unknown kind")
	}

	p.Steps[0] = schema.Action{Kind: schema.ActionSpawn, Command: " "}
	if !containsMessage(Errors(ValidateProgram(p)), "spawn requires a command") {
		t.Error("expected empty command error")
	}

	if !HasErrors(ValidateProgram(nil)) {
		t.Error("nil program should not validate")
	}
}

func TestInstancePath(t *testing.T) {
	cases := map[string][]string{
		"":                   nil,
		"steps":              {"steps"},
		"steps[2].step_true": {"steps", "2", "step_true"},
		"steps[0][1]":        {"steps", "0", "1"},
	}
	for want, loc := range cases {
		if got := instancePath(loc); got != want {
			t.Errorf("instancePath(%v) = %q, want %q", loc, got, want)
		}
	}
}

// --- helpers ---

func containsMessage(errs []*ValidationError, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func containsPath(errs []*ValidationError, prefix string) bool {
	for _, e := range errs {
		if strings.HasPrefix(e.Path, prefix) {
			return true
		}
	}
	return false
}
