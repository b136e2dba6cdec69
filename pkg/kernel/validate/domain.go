package validate

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/keystep/pkg/kernel/eval"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// validateDomain runs keystep/v0 domain-level validation rules. Numeric text
// that is a literal is checked here but only warned about: the engine parses
// it at execution time and a step that never runs cannot fail.
func validateDomain(p *schema.Program) []*ValidationError {
	var errs []*ValidationError

	// D1: apiVersion must be keystep/v0
	if p.APIVersion != schema.APIVersionProgram {
		errs = append(errs, errorf(PhaseDomain, "apiVersion", "expected %q, got %q", schema.APIVersionProgram, p.APIVersion))
	}

	// D2: a runnable program is non-empty
	if len(p.Steps) == 0 {
		errs = append(errs, errorf(PhaseDomain, "steps", "at least one step is required"))
		return errs
	}

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, warningf(PhaseDomain, "name", "program has no name"))
	}

	for i, a := range p.Steps {
		path := stepPath(i)

		// D3: closed set of action kinds
		if !a.Kind.Valid() {
			errs = append(errs, errorf(PhaseDomain, path+".action", "unknown action %q", a.Kind))
			continue
		}

		// D4: each kind carries only its own fields
		for _, f := range a.ExtraFields() {
			errs = append(errs, errorf(PhaseDomain, path+"."+f, "field %q is not allowed on %s", f, a.Kind))
		}

		errs = append(errs, validateStepFields(a, i, len(p.Steps), path)...)
	}

	// D9: template references should be defined by the program or seeded
	errs = append(errs, validateVariableResolution(p)...)

	return errs
}

// validateStepFields checks literal values of one step.
func validateStepFields(a schema.Action, index, n int, path string) []*ValidationError {
	var errs []*ValidationError

	switch a.Kind {
	case schema.ActionSetVariable, schema.ActionIncrementVariable, schema.ActionDeleteVariable:
		// D5: variable names are plain identifiers
		if strings.TrimSpace(a.Name) == "" {
			errs = append(errs, errorf(PhaseDomain, path+".name", "%s requires a variable name", a.Kind))
		} else if vars.HasTemplate(a.Name) {
			errs = append(errs, warningf(PhaseDomain, path+".name", "variable name %q contains a template; names are not rendered", a.Name))
		}
		if a.Kind == schema.ActionIncrementVariable && isLiteral(a.Amount) {
			if _, err := vars.ParseNumber(a.Amount); err != nil {
				errs = append(errs, warningf(PhaseDomain, path+".amount", "amount %q is not a number", a.Amount))
			}
		}

	case schema.ActionSleep:
		// D6: duration is a non-negative integer of milliseconds
		if isLiteral(a.DurationMS) {
			if ms, err := vars.ParseIndex(a.DurationMS); err != nil || ms < 0 {
				errs = append(errs, warningf(PhaseDomain, path+".duration_ms", "duration_ms %q is not a non-negative integer", a.DurationMS))
			}
		}

	case schema.ActionGoToStep:
		errs = append(errs, checkTarget(a.Step, index, n, false, path+".step")...)
	case schema.ActionGoToStepRelative:
		errs = append(errs, checkTarget(a.Step, index, n, true, path+".step")...)

	case schema.ActionIfElse, schema.ActionIfElseRelative:
		// D7: closed operation list
		if isLiteral(a.Operation) && !eval.Known(a.Operation) {
			errs = append(errs, warningf(PhaseDomain, path+".operation", "unknown operation %q", a.Operation))
		}
		rel := a.Kind == schema.ActionIfElseRelative
		errs = append(errs, checkTarget(a.StepTrue, index, n, rel, path+".step_true")...)
		errs = append(errs, checkTarget(a.StepFalse, index, n, rel, path+".step_false")...)

	case schema.ActionSpawn:
		// D8: spawn needs a command
		if strings.TrimSpace(a.Command) == "" {
			errs = append(errs, errorf(PhaseDomain, path+".command", "spawn requires a command"))
		}
	}

	return errs
}

// checkTarget warns about a literal jump target that can never be valid.
func checkTarget(text string, index, n int, relative bool, path string) []*ValidationError {
	if !isLiteral(text) {
		return nil
	}
	v, err := vars.ParseIndex(text)
	if err != nil {
		return []*ValidationError{warningf(PhaseDomain, path, "target %q is not an integer", text)}
	}
	target := v
	if relative {
		target = index + v
	}
	if target < 0 || target >= n {
		if relative {
			return []*ValidationError{warningf(PhaseDomain, path, "offset %s from step %d lands on %d, outside [0,%d)", text, index, target, n)}
		}
		return []*ValidationError{warningf(PhaseDomain, path, "step %d is outside [0,%d)", target, n)}
	}
	return nil
}

// validateVariableResolution warns about {{name}} references to variables
// that no step defines. The host may seed them, so these are warnings.
func validateVariableResolution(p *schema.Program) []*ValidationError {
	defined := map[string]bool{vars.Input: true}
	for _, a := range p.Steps {
		if a.Kind == schema.ActionSetVariable {
			defined[a.Name] = true
		}
	}

	var errs []*ValidationError
	reported := map[string]bool{}
	for i, a := range p.Steps {
		if !a.Kind.Valid() {
			continue
		}
		for _, f := range a.Kind.Fields() {
			texts := []string{a.Field(f)}
			if f == schema.FieldArgs {
				texts = a.Args
			}
			for _, text := range texts {
				for _, name := range vars.References(text) {
					if defined[name] || reported[name] {
						continue
					}
					reported[name] = true
					errs = append(errs, warningf(PhaseDomain, fmt.Sprintf("%s.%s", stepPath(i), f),
						"variable %q is never set by the program; it must be seeded", name))
				}
			}
		}
	}
	return errs
}

// isLiteral reports whether text is fixed at load time.
func isLiteral(text string) bool {
	return !vars.HasTemplate(text)
}

func stepPath(i int) string {
	return fmt.Sprintf("steps[%d]", i)
}
