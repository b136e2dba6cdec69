package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Console receives print_console output. It doubles as the debug sink when
// Adapters.Debug is nil.
type Console interface {
	Print(ctx context.Context, text string) error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
}

// SpawnResult describes a started process.
type SpawnResult struct {
	PID     int
	Command string
	Args    []string
}

// Spawner starts a process and returns once it is running. The engine does not
// wait for the process to exit.
type Spawner interface {
	Spawn(ctx context.Context, command string, args []string) (*SpawnResult, error)
}

// Dialog shows a message to the user and blocks until it is dismissed.
// A rejected dialog is reported as an error.
type Dialog interface {
	Show(ctx context.Context, title, body string) error
}

// Querier sends a system and a user prompt to a chat-completion service and
// returns the answer text.
type Querier interface {
	Query(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Adapters bundles the side-effect collaborators of a run. Any may be nil;
// using a nil adapter is an adapter error.
type Adapters struct {
	Console   Console
	Debug     Console
	Clipboard Clipboard
	Spawner   Spawner
	Dialog    Dialog
	Querier   Querier
}

func (a Adapters) debugSink() Console {
	if a.Debug != nil {
		return a.Debug
	}
	return a.Console
}

// AdapterPolicy decides what an adapter error does to a run for the
// non-critical actions (debug, print_console, show_dialog, read_clipboard,
// write_clipboard). spawn and ask_chatgpt failures always halt.
type AdapterPolicy string

const (
	PolicyHalt     AdapterPolicy = "halt"
	PolicyContinue AdapterPolicy = "continue"
)

// ParseAdapterPolicy accepts "halt", "continue" or "" (halt).
func ParseAdapterPolicy(s string) (AdapterPolicy, error) {
	switch AdapterPolicy(s) {
	case "", PolicyHalt:
		return PolicyHalt, nil
	case PolicyContinue:
		return PolicyContinue, nil
	}
	return "", fmt.Errorf("unknown adapter error policy %q (want halt or continue)", s)
}

func errNoAdapter(name string) error {
	return fmt.Errorf("%w: no %s adapter configured", ErrAdapter, name)
}

type adapterResult struct {
	text string
	err  error
}

// interrupted classifies the end of the run's context: a passed deadline is
// ErrTimeout, anything else ErrCancelled.
func interrupted(ctx context.Context, what string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: run deadline passed during %s", ErrTimeout, what)
	}
	return fmt.Errorf("%w: %s interrupted", ErrCancelled, what)
}

// callAdapter runs fn under a deadline of timeout (<= 0 means none) and
// abandons it when the run is cancelled, even if fn ignores its context.
// Errors come back classified as ErrCancelled, ErrTimeout or ErrAdapter.
// A run deadline counts as ErrTimeout.
func callAdapter(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	cctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan adapterResult, 1)
	go func() {
		text, err := fn(cctx)
		done <- adapterResult{text: text, err: err}
	}()

	var res adapterResult
	select {
	case res = <-done:
	case <-cctx.Done():
		res.err = cctx.Err()
	}
	if res.err == nil {
		return res.text, nil
	}

	switch {
	case ctx.Err() != nil:
		return "", interrupted(ctx, name)
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%w: %s did not finish within %s", ErrTimeout, name, timeout)
	case errors.Is(res.err, ErrAdapter):
		return "", res.err
	}
	return "", fmt.Errorf("%w: %s: %w", ErrAdapter, name, res.err)
}
