// Package engine implements the keystep/v0 step interpreter: a program
// counter, a variable store and one handler per action kind.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// Defaults applied by New to zero-valued RunConfig fields.
const (
	DefaultAdapterTimeout = 60 * time.Second
	DefaultMaxSleep       = 24 * time.Hour
	DefaultMaxSteps       = 100000
)

// Run statuses and halt reasons.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"

	ReasonEndProgram   = "end_program"
	ReasonEndOfProgram = "end_of_program"
)

// Phase is the interpreter's state: Ready → Running → Halted.
type Phase string

const (
	PhaseReady   Phase = "ready"
	PhaseRunning Phase = "running"
	PhaseHalted  Phase = "halted"
)

// RunConfig configures a program execution.
type RunConfig struct {
	RunID       string
	ProgramPath string            // recorded in RunState for resume
	Vars        map[string]string // seed variables
	Adapters    Adapters
	Logger      *slog.Logger
	Trace       *trace.Writer

	// AdapterPolicy applies to debug, print_console, show_dialog,
	// read_clipboard and write_clipboard. Default halt.
	AdapterPolicy AdapterPolicy

	// AdapterTimeout bounds each adapter call except show_dialog.
	// Zero means DefaultAdapterTimeout, negative means unbounded.
	AdapterTimeout time.Duration

	// DialogTimeout bounds show_dialog. Zero or negative means unbounded.
	DialogTimeout time.Duration

	// MaxSleep rejects longer sleeps with ErrTimeout.
	// Zero means DefaultMaxSleep, negative means unbounded.
	MaxSleep time.Duration

	// MaxSteps bounds executed steps. Zero means DefaultMaxSteps,
	// negative means unbounded.
	MaxSteps int
}

// RunResult is the outcome of executing a program.
type RunResult struct {
	RunID    string            `json:"run_id"`
	Status   string            `json:"status"` // "completed", "error", "cancelled"
	Reason   string            `json:"reason"` // end_program, end_of_program, or the failure kind
	PC       int               `json:"pc"`
	Steps    int               `json:"steps"`
	Vars     map[string]string `json:"vars"`
	Duration time.Duration     `json:"duration"`
	Error    error             `json:"-"`
}

// Engine executes one run of a keystep/v0 program. It is not safe for
// concurrent use; independent runs use independent engines.
type Engine struct {
	cfg       RunConfig
	prog      *schema.Program
	vars      *vars.Store
	trace     *trace.Writer
	log       *slog.Logger
	pc        int
	phase     Phase
	steps     int
	startPC   int
	startTime time.Time
	reason    string
	err       error
	result    *RunResult
	outputs   map[string]any
}

// New creates an engine for the given program.
func New(prog *schema.Program, cfg RunConfig) *Engine {
	if cfg.AdapterTimeout == 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.MaxSleep == 0 {
		cfg.MaxSleep = DefaultMaxSleep
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.AdapterPolicy == "" {
		cfg.AdapterPolicy = PolicyHalt
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if prog == nil {
		prog = &schema.Program{}
	}

	return &Engine{
		cfg:   cfg,
		prog:  prog,
		vars:  vars.FromMap(cfg.Vars),
		trace: cfg.Trace,
		log:   log.With("run_id", cfg.RunID, "program", prog.Name),
		phase: PhaseReady,
	}
}

// Resume restores the counter and variables of a saved run. It must be called
// before the first step.
func (e *Engine) Resume(st *RunState) error {
	if e.phase != PhaseReady {
		return fmt.Errorf("resume: engine is %s", e.phase)
	}
	if st == nil {
		return errors.New("resume: no state")
	}
	e.pc = st.StepIndex
	e.startPC = st.StepIndex
	e.vars = vars.FromMap(st.Vars)
	return nil
}

// PC returns the index of the next step to execute.
func (e *Engine) PC() int { return e.pc }

// Phase returns the interpreter state.
func (e *Engine) Phase() Phase { return e.phase }

// Vars exposes the run's variable store. Callers must not use it while a step
// is executing.
func (e *Engine) Vars() *vars.Store { return e.vars }

// Program returns the program being executed.
func (e *Engine) Program() *schema.Program { return e.prog }

// State captures the engine for persistence. After a fatal error StepIndex is
// the failing step, so a resumed run retries it.
func (e *Engine) State() *RunState {
	st := &RunState{
		RunID:       e.cfg.RunID,
		ProgramPath: e.cfg.ProgramPath,
		StepIndex:   e.pc,
		Vars:        e.vars.Snapshot(),
		Phase:       e.phase,
	}
	var se *StepError
	if errors.As(e.err, &se) {
		st.StepIndex = se.Index
	}
	if e.err != nil {
		st.Error = e.err.Error()
	}
	return st
}

// Run executes the program until it halts.
func (e *Engine) Run(ctx context.Context) *RunResult {
	for {
		done, _ := e.Step(ctx)
		if done {
			return e.Result()
		}
	}
}

// Step executes exactly one step. It reports done once the run has halted;
// err is the run-fatal error, if any.
func (e *Engine) Step(ctx context.Context) (done bool, err error) {
	switch e.phase {
	case PhaseHalted:
		return true, e.err
	case PhaseReady:
		e.begin()
	}

	n := e.prog.Len()
	if e.pc < 0 || e.pc >= n {
		e.stop("", &StepError{Index: e.pc, Err: fmt.Errorf("%w: counter %d outside [0,%d)", ErrOutOfRange, e.pc, n)})
		return true, e.err
	}
	action := e.prog.Steps[e.pc]

	if ctx.Err() != nil {
		e.stop("", &StepError{Index: e.pc, Action: action.Kind, Err: interrupted(ctx, string(action.Kind))})
		return true, e.err
	}
	if e.cfg.MaxSteps > 0 && e.steps >= e.cfg.MaxSteps {
		e.stop("", &StepError{Index: e.pc, Action: action.Kind, Err: fmt.Errorf("%w: %d steps executed", ErrStepLimit, e.steps)})
		return true, e.err
	}

	if serr := e.executeStep(ctx, e.pc, &action); serr != nil {
		e.stop("", serr)
		return true, e.err
	}
	return e.phase == PhaseHalted, nil
}

// Result finalises the run and returns its outcome. Before the run halts it
// returns nil.
func (e *Engine) Result() *RunResult {
	if e.phase != PhaseHalted {
		return nil
	}
	if e.result != nil {
		return e.result
	}

	status := StatusCompleted
	reason := e.reason
	switch {
	case errors.Is(e.err, ErrCancelled):
		status = StatusCancelled
		reason = FailureKind(e.err)
	case e.err != nil:
		status = StatusError
		reason = FailureKind(e.err)
	}

	e.result = &RunResult{
		RunID:    e.cfg.RunID,
		Status:   status,
		Reason:   reason,
		PC:       e.pc,
		Steps:    e.steps,
		Vars:     e.vars.Snapshot(),
		Duration: time.Since(e.startTime),
		Error:    e.err,
	}

	if e.trace != nil {
		e.trace.EmitRunComplete(status, reason, e.steps, e.result.Duration, e.err)
	}
	attrs := []any{"status", status, "reason", reason, "steps", e.steps, "duration", e.result.Duration}
	if e.err != nil {
		e.log.Error("run halted", append(attrs, "error", e.err)...)
	} else {
		e.log.Info("run complete", attrs...)
	}
	return e.result
}

func (e *Engine) begin() {
	e.phase = PhaseRunning
	e.startTime = time.Now()
	if e.trace != nil {
		e.trace.EmitRunStart(e.prog.Name, e.prog.Len(), e.vars.Snapshot(), e.startPC)
	}
	e.log.Info("run started", "steps", e.prog.Len(), "start", e.startPC)
}

func (e *Engine) stop(reason string, err error) {
	e.phase = PhaseHalted
	e.reason = reason
	e.err = err
}

// executeStep dispatches the step at index and applies its outcome.
// Returns nil to keep going (or after a clean halt), or the fatal error.
func (e *Engine) executeStep(ctx context.Context, index int, a *schema.Action) *StepError {
	start := time.Now()
	e.steps++
	e.outputs = nil

	if e.trace != nil {
		e.trace.EmitStepStart(index, string(a.Kind))
	}
	e.log.Debug("step", "index", index, "action", a.String())

	h, ok := handlers[a.Kind]
	if !ok {
		err := fmt.Errorf("%w: unknown action %q", ErrParse, a.Kind)
		e.emitStepError(index, start, err)
		return &StepError{Index: index, Action: a.Kind, Err: err}
	}

	out, err := h(ctx, e, a)
	if err != nil {
		if e.continuesAfter(a.Kind, err) {
			e.log.Warn("adapter error ignored by policy", "index", index, "action", a.Kind, "error", err)
			if e.trace != nil {
				e.trace.EmitStepComplete(index, trace.StatusFailed, e.outputs, time.Since(start), &trace.Failure{
					Kind: FailureKind(err), Message: err.Error(),
				})
			}
			out = advance
		} else {
			e.emitStepError(index, start, err)
			return &StepError{Index: index, Action: a.Kind, Err: err}
		}
	} else if e.trace != nil {
		e.trace.EmitStepComplete(index, trace.StatusSuccess, e.outputs, time.Since(start), nil)
	}

	return e.apply(index, a, out)
}

// apply moves the counter according to o.
func (e *Engine) apply(index int, a *schema.Action, o outcome) *StepError {
	n := e.prog.Len()
	switch o.kind {
	case outcomeHalt:
		e.stop(ReasonEndProgram, nil)
		return nil

	case outcomeContinue:
		e.pc = index + 1
		if e.pc >= n {
			e.stop(ReasonEndOfProgram, nil)
		}
		return nil

	case outcomeJumpAbsolute, outcomeJumpRelative:
		target, relative := o.target, o.kind == outcomeJumpRelative
		if relative {
			target = index + o.target
		}
		if target < 0 || target >= n {
			return &StepError{Index: index, Action: a.Kind, Err: fmt.Errorf("%w: jump to %d outside [0,%d)", ErrOutOfRange, target, n)}
		}
		if e.trace != nil {
			e.trace.EmitJump(index, target, relative)
		}
		e.pc = target
		return nil
	}
	return &StepError{Index: index, Action: a.Kind, Err: fmt.Errorf("unknown outcome %d", o.kind)}
}

// continuesAfter reports whether err is an adapter error the policy lets the
// run survive. Timeouts and cancellation always halt.
func (e *Engine) continuesAfter(kind schema.ActionKind, err error) bool {
	if e.cfg.AdapterPolicy != PolicyContinue || !policyActions[kind] {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled) {
		return false
	}
	return errors.Is(err, ErrAdapter)
}

// note records a value for the step_complete trace event.
func (e *Engine) note(key string, value any) {
	if e.outputs == nil {
		e.outputs = make(map[string]any)
	}
	e.outputs[key] = value
}

func (e *Engine) emitStepError(index int, start time.Time, err error) {
	if e.trace != nil {
		e.trace.EmitStepComplete(index, trace.StatusError, e.outputs, time.Since(start), &trace.Failure{
			Kind: FailureKind(err), Message: err.Error(),
		})
	}
}
