// Package debugger implements the interactive REPL debugger for keystep
// programs.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// Debugger provides an interactive REPL for stepping through a run.
type Debugger struct {
	engine      *engine.Engine
	output      io.Writer
	stateDir    string
	breakpoints map[int]bool
}

// New creates a debugger over an engine that has not started yet.
func New(eng *engine.Engine, stateDir string) *Debugger {
	return &Debugger{
		engine:      eng,
		output:      os.Stdout,
		stateDir:    stateDir,
		breakpoints: make(map[int]bool),
	}
}

// SetOutput redirects debugger output.
func (d *Debugger) SetOutput(w io.Writer) { d.output = w }

var commands = []string{"next", "continue", "vars", "set", "list", "break",
	"state", "save", "help", "quit"}

// Run starts the interactive REPL loop. It returns when the user quits or
// input ends; the run result, if the program halted, is available from the
// engine.
func (d *Debugger) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          d.output,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	prog := d.engine.Program()
	fmt.Fprintf(d.output, "keystep debugger: %s, %d steps\n", prog.Name, prog.Len())
	fmt.Fprintf(d.output, "Type 'help' for available commands, 'next' to execute the next step.\n\n")

	for {
		rl.SetPrompt(d.prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if d.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line. It reports whether the debugger should exit.
func (d *Debugger) Exec(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "next", "n":
		d.handleNext(ctx)
	case "continue", "c":
		d.handleContinue(ctx)
	case "vars", "v":
		d.handleVars()
	case "set":
		d.handleSet(parts)
	case "list", "l":
		d.handleList()
	case "break", "b":
		d.handleBreak(parts)
	case "state":
		d.handleState()
	case "save":
		d.handleSave()
	case "help", "?":
		d.handleHelp()
	case "quit", "q":
		fmt.Fprintf(d.output, "Exiting debugger.\n")
		return true
	default:
		fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
	}
	return false
}

// prompt renders keystep[pc/total | action]>.
func (d *Debugger) prompt() string {
	if d.engine.Phase() == engine.PhaseHalted {
		return "keystep[halted]> "
	}
	pc := d.engine.PC()
	a, ok := d.engine.Program().Step(pc)
	if !ok {
		return fmt.Sprintf("keystep[%d/%d]> ", pc, d.engine.Program().Len())
	}
	return fmt.Sprintf("keystep[%d/%d | %s]> ", pc, d.engine.Program().Len(), a.Kind)
}
