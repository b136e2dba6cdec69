package engine

import (
	"errors"
	"fmt"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// Error taxonomy. ErrParse and ErrUndefinedVariable are the variable store's
// sentinels, so errors.Is matches across packages.
var (
	ErrParse             = vars.ErrParse
	ErrUndefinedVariable = vars.ErrUndefinedVariable
	ErrOutOfRange        = errors.New("step index out of range")
	ErrAdapter           = errors.New("adapter error")
	ErrTimeout           = errors.New("timeout")
	ErrCancelled         = errors.New("cancelled")
	ErrStepLimit         = errors.New("step limit exceeded")
)

// StepError is the run-fatal error of a halted run. Index is the step that
// failed; it is where a resumed run starts.
type StepError struct {
	Index  int
	Action schema.ActionKind
	Err    error
}

func (e *StepError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("step %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailureKind classifies err into the taxonomy name used in traces, run
// history and RunResult.Reason.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStepLimit):
		return "step_limit"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrUndefinedVariable):
		return "undefined_variable"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrAdapter):
		return "adapter"
	default:
		return "error"
	}
}
