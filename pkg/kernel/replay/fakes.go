package replay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// ErrRejected is returned by a Dialog set to reject.
var ErrRejected = errors.New("dialog rejected")

// Console captures printed text.
type Console struct {
	mu    sync.Mutex
	lines []string
	Err   error
}

func (c *Console) Print(_ context.Context, text string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
	return nil
}

// Lines returns everything printed so far, one entry per call.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

// String joins the printed lines with newlines.
func (c *Console) String() string {
	return strings.Join(c.Lines(), "\n")
}

// Clipboard is an in-memory clipboard.
type Clipboard struct {
	mu   sync.Mutex
	text string
	Err  error
}

// NewClipboard returns a clipboard holding text.
func NewClipboard(text string) *Clipboard {
	return &Clipboard{text: text}
}

func (c *Clipboard) Read(context.Context) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *Clipboard) Write(_ context.Context, text string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}

// Text returns the current clipboard content.
func (c *Clipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// SpawnCall records one spawn request.
type SpawnCall struct {
	Command string
	Args    []string
}

// Spawner records spawn requests instead of starting processes.
type Spawner struct {
	mu    sync.Mutex
	calls []SpawnCall
	next  int

	// Fail lists commands whose spawn fails.
	Fail []string
}

func (s *Spawner) Spawn(_ context.Context, command string, args []string) (*engine.SpawnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SpawnCall{Command: command, Args: slices.Clone(args)})
	if slices.Contains(s.Fail, command) {
		return nil, fmt.Errorf("exec: %q: executable file not found", command)
	}
	s.next++
	return &engine.SpawnResult{PID: 1000 + s.next, Command: command, Args: args}, nil
}

// Calls returns the recorded spawn requests in order.
func (s *Spawner) Calls() []SpawnCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Spawned reports whether command was requested.
func (s *Spawner) Spawned(command string) bool {
	for _, c := range s.Calls() {
		if c.Command == command {
			return true
		}
	}
	return false
}

// DialogCall records one dialog.
type DialogCall struct {
	Title string
	Body  string
}

// Dialog records dialogs and dismisses them immediately.
type Dialog struct {
	mu     sync.Mutex
	shown  []DialogCall
	Reject bool
}

func (d *Dialog) Show(_ context.Context, title, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, DialogCall{Title: title, Body: body})
	if d.Reject {
		return ErrRejected
	}
	return nil
}

// Shown returns the recorded dialogs in order.
func (d *Dialog) Shown() []DialogCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.shown)
}

// QueryCall records one chat query.
type QueryCall struct {
	System string
	User   string
}

// Querier answers chat queries from a script, in order. Running out of
// answers is an error.
type Querier struct {
	mu        sync.Mutex
	responses []QueryResponse
	calls     []QueryCall
}

// NewQuerier returns a querier that replays responses.
func NewQuerier(responses ...QueryResponse) *Querier {
	return &Querier{responses: responses}
}

func (q *Querier) Query(_ context.Context, system, user string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := len(q.calls)
	q.calls = append(q.calls, QueryCall{System: system, User: user})
	if idx >= len(q.responses) {
		return "", fmt.Errorf("replay: exhausted query responses (used %d)", len(q.responses))
	}
	resp := q.responses[idx]
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.Answer, nil
}

// Calls returns the recorded queries in order.
func (q *Querier) Calls() []QueryCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.calls)
}

// Fakes bundles one of each fake adapter.
type Fakes struct {
	Console   *Console
	Clipboard *Clipboard
	Spawner   *Spawner
	Dialog    *Dialog
	Querier   *Querier
}

// NewFakes builds fakes scripted by s. A nil scenario gives empty fakes.
func NewFakes(s *Scenario) *Fakes {
	if s == nil {
		s = &Scenario{}
	}
	return &Fakes{
		Console:   &Console{},
		Clipboard: NewClipboard(s.Clipboard),
		Spawner:   &Spawner{Fail: s.SpawnFailures},
		Dialog:    &Dialog{Reject: s.DialogReject},
		Querier:   NewQuerier(s.QueryResponses...),
	}
}

// Adapters wires the fakes into an engine adapter set.
func (f *Fakes) Adapters() engine.Adapters {
	return engine.Adapters{
		Console:   f.Console,
		Clipboard: f.Clipboard,
		Spawner:   f.Spawner,
		Dialog:    f.Dialog,
		Querier:   f.Querier,
	}
}
