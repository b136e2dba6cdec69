package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ormasoftchile/keystep/pkg/kernel/eval"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeJumpAbsolute
	outcomeJumpRelative
	outcomeHalt
)

// outcome is what a handler tells the interpreter to do next.
type outcome struct {
	kind   outcomeKind
	target int // index for JumpAbsolute, offset for JumpRelative
}

var (
	advance = outcome{kind: outcomeContinue}
	halt    = outcome{kind: outcomeHalt}
)

func jumpTo(i int) outcome { return outcome{kind: outcomeJumpAbsolute, target: i} }

func jumpBy(d int) outcome { return outcome{kind: outcomeJumpRelative, target: d} }

// handler performs one action kind. Errors are run-fatal unless the adapter
// policy says otherwise.
type handler func(ctx context.Context, e *Engine, a *schema.Action) (outcome, error)

var handlers = map[schema.ActionKind]handler{
	schema.ActionDebug:             execDebug,
	schema.ActionSetVariable:       execSetVariable,
	schema.ActionIncrementVariable: execIncrementVariable,
	schema.ActionDeleteVariable:    execDeleteVariable,
	schema.ActionSleep:             execSleep,
	schema.ActionEndProgram:        execEndProgram,
	schema.ActionGoToStep:          execGoToStep,
	schema.ActionGoToStepRelative:  execGoToStepRelative,
	schema.ActionIfElse:            execIfElse,
	schema.ActionIfElseRelative:    execIfElse,
	schema.ActionSpawn:             execSpawn,
	schema.ActionPrintConsole:      execPrintConsole,
	schema.ActionShowDialog:        execShowDialog,
	schema.ActionReadClipboard:     execReadClipboard,
	schema.ActionWriteClipboard:    execWriteClipboard,
	schema.ActionAskChatGPT:        execAskChatGPT,
}

// policyActions are the actions whose adapter errors follow RunConfig.AdapterPolicy.
var policyActions = map[schema.ActionKind]bool{
	schema.ActionDebug:          true,
	schema.ActionPrintConsole:   true,
	schema.ActionShowDialog:     true,
	schema.ActionReadClipboard:  true,
	schema.ActionWriteClipboard: true,
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func execDebug(ctx context.Context, e *Engine, _ *schema.Action) (outcome, error) {
	sink := e.cfg.Adapters.debugSink()
	if sink == nil {
		return advance, errNoAdapter("debug")
	}
	text := Snapshot(e.pc, e.vars)
	_, err := callAdapter(ctx, "debug", e.cfg.AdapterTimeout, func(ctx context.Context) (string, error) {
		return "", sink.Print(ctx, text)
	})
	return advance, err
}

func execSetVariable(_ context.Context, e *Engine, a *schema.Action) (outcome, error) {
	value := e.vars.Render(a.Value)
	e.vars.Set(a.Name, value)
	e.note(a.Name, value)
	return advance, nil
}

func execIncrementVariable(_ context.Context, e *Engine, a *schema.Action) (outcome, error) {
	value, err := e.vars.Increment(a.Name, e.vars.Render(a.Amount))
	if err != nil {
		return advance, err
	}
	e.note(a.Name, value)
	return advance, nil
}

func execDeleteVariable(_ context.Context, e *Engine, a *schema.Action) (outcome, error) {
	e.vars.Delete(a.Name)
	return advance, nil
}

// ---------------------------------------------------------------------------
// Time
// ---------------------------------------------------------------------------

func execSleep(ctx context.Context, e *Engine, a *schema.Action) (outcome, error) {
	text := e.vars.Render(a.DurationMS)
	ms, err := vars.ParseIndex(text)
	if err != nil {
		return advance, fmt.Errorf("duration_ms: %w", err)
	}
	if ms < 0 {
		return advance, fmt.Errorf("duration_ms: %w: %q is negative", ErrParse, text)
	}
	// Longer sleeps would overflow time.Duration.
	if int64(ms) > math.MaxInt64/int64(time.Millisecond) {
		return advance, fmt.Errorf("%w: sleep of %sms exceeds the maximum duration", ErrTimeout, text)
	}
	d := time.Duration(ms) * time.Millisecond
	if e.cfg.MaxSleep > 0 && d > e.cfg.MaxSleep {
		return advance, fmt.Errorf("%w: sleep of %s exceeds the %s limit", ErrTimeout, d, e.cfg.MaxSleep)
	}
	if d == 0 {
		return advance, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return advance, nil
	case <-ctx.Done():
		return advance, interrupted(ctx, "sleep")
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func execEndProgram(context.Context, *Engine, *schema.Action) (outcome, error) {
	return halt, nil
}

func execGoToStep(_ context.Context, e *Engine, a *schema.Action) (outcome, error) {
	i, err := vars.ParseIndex(e.vars.Render(a.Step))
	if err != nil {
		return advance, fmt.Errorf("step: %w", err)
	}
	return jumpTo(i), nil
}

func execGoToStepRelative(_ context.Context, e *Engine, a *schema.Action) (outcome, error) {
	d, err := vars.ParseIndex(e.vars.Render(a.Step))
	if err != nil {
		return advance, fmt.Errorf("step: %w", err)
	}
	return jumpBy(d), nil
}

// execIfElse serves both if_else and if_else_relative. Only the chosen target
// is parsed.
func execIfElse(_ context.Context, e *Engine, a *schema.Action) (outcome, error) {
	op := e.vars.Render(a.Operation)
	var left, right string
	if op == eval.OpExpr {
		left = e.vars.Render(a.A)
	} else {
		left, right = e.vars.Operand(a.A), e.vars.Operand(a.B)
	}
	ok, err := eval.EvaluateWith(op, left, right, e.vars)
	if err != nil {
		return advance, err
	}

	field, text := schema.FieldStepFalse, a.StepFalse
	if ok {
		field, text = schema.FieldStepTrue, a.StepTrue
	}
	e.note("result", ok)
	n, err := vars.ParseIndex(e.vars.Render(text))
	if err != nil {
		return advance, fmt.Errorf("%s: %w", field, err)
	}
	if a.Kind == schema.ActionIfElseRelative {
		return jumpBy(n), nil
	}
	return jumpTo(n), nil
}

// ---------------------------------------------------------------------------
// Side effects
// ---------------------------------------------------------------------------

func execSpawn(ctx context.Context, e *Engine, a *schema.Action) (outcome, error) {
	sp := e.cfg.Adapters.Spawner
	if sp == nil {
		return advance, errNoAdapter("spawn")
	}
	command := e.vars.Render(a.Command)
	args := e.vars.RenderAll(a.Args)
	pid, err := callAdapter(ctx, "spawn", e.cfg.AdapterTimeout, func(ctx context.Context) (string, error) {
		r, err := sp.Spawn(ctx, command, args)
		if err != nil || r == nil {
			return "", err
		}
		return strconv.Itoa(r.PID), nil
	})
	if err != nil {
		return advance, err
	}
	e.note("command", command)
	if pid != "" {
		e.note("pid", pid)
	}
	return advance, nil
}

func execPrintConsole(ctx context.Context, e *Engine, a *schema.Action) (outcome, error) {
	c := e.cfg.Adapters.Console
	if c == nil {
		return advance, errNoAdapter("console")
	}
	text := e.vars.Render(a.Content)
	_, err := callAdapter(ctx, "print_console", e.cfg.AdapterTimeout, func(ctx context.Context) (string, error) {
		return "", c.Print(ctx, text)
	})
	return advance, err
}

func execShowDialog(ctx context.Context, e *Engine, a *schema.Action) (outcome, error) {
	d := e.cfg.Adapters.Dialog
	if d == nil {
		return advance, errNoAdapter("dialog")
	}
	title, body := e.vars.Render(a.Title), e.vars.Render(a.Body)
	_, err := callAdapter(ctx, "show_dialog", e.cfg.DialogTimeout, func(ctx context.Context) (string, error) {
		return "", d.Show(ctx, title, body)
	})
	return advance, err
}

func execReadClipboard(ctx context.Context, e *Engine, _ *schema.Action) (outcome, error) {
	cb := e.cfg.Adapters.Clipboard
	if cb == nil {
		return advance, errNoAdapter("clipboard")
	}
	text, err := callAdapter(ctx, "read_clipboard", e.cfg.AdapterTimeout, cb.Read)
	if err != nil {
		return advance, err
	}
	e.vars.Set(vars.Input, text)
	e.note(vars.Input, text)
	return advance, nil
}

func execWriteClipboard(ctx context.Context, e *Engine, a *schema.Action) (outcome, error) {
	cb := e.cfg.Adapters.Clipboard
	if cb == nil {
		return advance, errNoAdapter("clipboard")
	}
	text := e.vars.Render(a.Content)
	_, err := callAdapter(ctx, "write_clipboard", e.cfg.AdapterTimeout, func(ctx context.Context) (string, error) {
		return "", cb.Write(ctx, text)
	})
	return advance, err
}

func execAskChatGPT(ctx context.Context, e *Engine, a *schema.Action) (outcome, error) {
	q := e.cfg.Adapters.Querier
	if q == nil {
		return advance, errNoAdapter("query")
	}
	system, user := e.vars.Render(a.PrePrompt), e.vars.Render(a.Prompt)
	answer, err := callAdapter(ctx, "ask_chatgpt", e.cfg.AdapterTimeout, func(ctx context.Context) (string, error) {
		return q.Query(ctx, system, user)
	})
	if err != nil {
		return advance, err
	}
	e.vars.Set(vars.Input, answer)
	e.note(vars.Input, answer)
	return advance, nil
}
