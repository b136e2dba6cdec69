package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
)

var errDialogRejected = errors.New("dialog rejected")

// eventSink is an io.Writer for a trace.Writer that decodes each JSONL line
// and hands the event to send.
type eventSink struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	send func(tea.Msg)
}

func (s *eventSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)
	for {
		line, err := s.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write.
			s.buf.Write(line)
			return len(p), nil
		}
		var evt trace.Event
		if json.Unmarshal(bytes.TrimSpace(line), &evt) == nil {
			s.send(traceEventMsg{Event: evt})
		}
	}
}

// console forwards output to the monitor instead of the terminal the
// monitor owns.
type console struct {
	send func(tea.Msg)
}

func (c *console) Print(_ context.Context, text string) error {
	c.send(consoleMsg{Text: text})
	return nil
}

// dialog shows dialogs inside the monitor and waits for the answer.
type dialog struct {
	send func(tea.Msg)
}

func (d *dialog) Show(ctx context.Context, title, body string) error {
	reply := make(chan error, 1)
	d.send(dialogMsg{Title: title, Body: body, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures Run.
type Options struct {
	In  io.Reader
	Out io.Writer

	// TraceOut, when set, also receives the JSONL trace.
	TraceOut io.Writer

	// TraceSetup, when set, is called on the monitor's trace writer before
	// the run starts (secrets, signing key).
	TraceSetup func(*trace.Writer)
}

// Run executes prog under the monitor. cfg's console, debug and dialog
// adapters are replaced by the monitor's, and its trace is fed to the view.
// Quitting the monitor cancels the run; Run returns once the engine halts.
func Run(ctx context.Context, prog *schema.Program, cfg engine.RunConfig, opts Options) (*engine.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var teaOpts []tea.ProgramOption
	if opts.In != nil {
		teaOpts = append(teaOpts, tea.WithInput(opts.In))
	}
	if opts.Out != nil {
		teaOpts = append(teaOpts, tea.WithOutput(opts.Out))
	}
	p := tea.NewProgram(NewModel(prog, cancel), teaOpts...)

	var traceOut io.Writer = &eventSink{send: p.Send}
	if opts.TraceOut != nil {
		traceOut = io.MultiWriter(opts.TraceOut, traceOut)
	}
	cfg.Trace = trace.NewWriter(traceOut, cfg.RunID)
	if opts.TraceSetup != nil {
		opts.TraceSetup(cfg.Trace)
	}
	cfg.Adapters.Console = &console{send: p.Send}
	cfg.Adapters.Debug = nil
	cfg.Adapters.Dialog = &dialog{send: p.Send}

	done := make(chan *engine.RunResult, 1)
	go func() {
		res := engine.New(prog, cfg).Run(ctx)
		p.Send(runCompleteMsg{Result: res})
		done <- res
	}()

	_, err := p.Run()
	cancel()
	res := <-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return res, fmt.Errorf("monitor: %w", err)
	}
	return res, nil
}
