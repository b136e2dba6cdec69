// Package validate implements the keystep/v0 3-phase validation pipeline:
// structural → semantic → domain.
package validate

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

// Phase and severity names.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"

	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents one error or warning from the validation pipeline.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: SeverityError,
	}
}

func warningf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(msg, args...),
		Severity: SeverityWarning,
	}
}

// ValidateFile runs the full 3-phase pipeline on a program file.
func ValidateFile(path string) (*schema.Program, []*ValidationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", "failed to load: %s", err)}
	}
	return ValidateBytes(data)
}

// ValidateBytes runs the full pipeline on a YAML or JSON document.
func ValidateBytes(data []byte) (*schema.Program, []*ValidationError) {
	// Phase 1: Structural (strict YAML decode)
	p, err := schema.Parse(data)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", "%s", err)}
	}

	// Phase 2: Semantic (JSON Schema over the document as written)
	errs := validateSemanticDocument(data)
	if HasErrors(errs) {
		return p, errs
	}

	// Phase 3: Domain (hand-coded rules)
	errs = append(errs, validateDomain(p)...)
	return p, errs
}

// ValidateProgram runs phases 2+3 on an already-built program.
func ValidateProgram(p *schema.Program) []*ValidationError {
	if p == nil {
		return []*ValidationError{errorf(PhaseStructural, "", "no program")}
	}
	errs := validateSemanticProgram(p)
	if HasErrors(errs) {
		return errs
	}
	return append(errs, validateDomain(p)...)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity entries.
func Errors(errs []*ValidationError) []*ValidationError {
	return filter(errs, SeverityError)
}

// Warnings returns the warning-severity entries.
func Warnings(errs []*ValidationError) []*ValidationError {
	return filter(errs, SeverityWarning)
}

func filter(errs []*ValidationError, severity string) []*ValidationError {
	var out []*ValidationError
	for _, e := range errs {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}
