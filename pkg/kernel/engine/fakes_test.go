package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

// recorder collects every side effect the engine performs, in order.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	printed []string
	clip    string
	spawned []string

	printErr error
	clipErr  error
	spawnErr error
	dialog   error
	answer   string
	queryErr error
	block    bool // adapters block until ctx is done
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) wait(ctx context.Context) error {
	if !r.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *recorder) Print(ctx context.Context, text string) error {
	r.record("print")
	if err := r.wait(ctx); err != nil {
		return err
	}
	if r.printErr != nil {
		return r.printErr
	}
	r.mu.Lock()
	r.printed = append(r.printed, text)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Read(ctx context.Context) (string, error) {
	r.record("clipboard_read")
	if r.clipErr != nil {
		return "", r.clipErr
	}
	return r.clip, nil
}

func (r *recorder) Write(ctx context.Context, text string) error {
	r.record("clipboard_write")
	if r.clipErr != nil {
		return r.clipErr
	}
	r.clip = text
	return nil
}

func (r *recorder) Spawn(ctx context.Context, command string, args []string) (*SpawnResult, error) {
	r.record("spawn")
	if r.spawnErr != nil {
		return nil, r.spawnErr
	}
	r.mu.Lock()
	r.spawned = append(r.spawned, command)
	r.mu.Unlock()
	return &SpawnResult{PID: 4242, Command: command, Args: args}, nil
}

func (r *recorder) Show(ctx context.Context, title, body string) error {
	r.record("dialog")
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.dialog
}

func (r *recorder) Query(ctx context.Context, system, user string) (string, error) {
	r.record("query")
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	if r.queryErr != nil {
		return "", r.queryErr
	}
	return r.answer + "|" + system + "|" + user, nil
}

func (r *recorder) adapters() Adapters {
	return Adapters{Console: r, Clipboard: r, Spawner: r, Dialog: r, Querier: r}
}

var errUnavailable = errors.New("unavailable")

func program(steps ...schema.Action) *schema.Program {
	return &schema.Program{APIVersion: schema.APIVersionProgram, Name: "test", Steps: steps}
}

func set(name, value string) schema.Action {
	return schema.Action{Kind: schema.ActionSetVariable, Name: name, Value: value}
}

func inc(name, amount string) schema.Action {
	return schema.Action{Kind: schema.ActionIncrementVariable, Name: name, Amount: amount}
}

func goTo(step string) schema.Action {
	return schema.Action{Kind: schema.ActionGoToStep, Step: step}
}

func goBy(step string) schema.Action {
	return schema.Action{Kind: schema.ActionGoToStepRelative, Step: step}
}

func printc(content string) schema.Action {
	return schema.Action{Kind: schema.ActionPrintConsole, Content: content}
}

func ifElse(op, a, b, t, f string) schema.Action {
	return schema.Action{Kind: schema.ActionIfElse, Operation: op, A: a, B: b, StepTrue: t, StepFalse: f}
}

var end = schema.Action{Kind: schema.ActionEndProgram}
