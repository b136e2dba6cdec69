package debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// handleNext executes the next step.
func (d *Debugger) handleNext(ctx context.Context) {
	if d.halted() {
		return
	}
	pc := d.engine.PC()
	if a, ok := d.engine.Program().Step(pc); ok {
		fmt.Fprintf(d.output, "Executing step %d: %s\n", pc, a)
	}
	done, err := d.engine.Step(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(d.output, "  ✗ step %d failed: %v\n", pc, err)
	case done:
		fmt.Fprintf(d.output, "  ✓ step %d done\n", pc)
	default:
		fmt.Fprintf(d.output, "  ✓ step %d done, next is %d\n", pc, d.engine.PC())
	}
	if done {
		d.printResult()
	}
}

// handleContinue runs until the program halts or reaches a breakpoint.
func (d *Debugger) handleContinue(ctx context.Context) {
	if d.halted() {
		return
	}
	first := true
	for {
		if !first && d.breakpoints[d.engine.PC()] {
			fmt.Fprintf(d.output, "Breakpoint at step %d.\n", d.engine.PC())
			return
		}
		first = false
		done, _ := d.engine.Step(ctx)
		if done {
			d.printResult()
			return
		}
	}
}

func (d *Debugger) halted() bool {
	if d.engine.Phase() != engine.PhaseHalted {
		return false
	}
	fmt.Fprintf(d.output, "Program has halted.\n")
	return true
}

func (d *Debugger) printResult() {
	res := d.engine.Result()
	if res == nil {
		return
	}
	if res.Error != nil {
		fmt.Fprintf(d.output, "Run %s: %s (%v)\n", res.Status, res.Reason, res.Error)
		return
	}
	fmt.Fprintf(d.output, "Run %s: %s after %d step(s).\n", res.Status, res.Reason, res.Steps)
}

// handleVars prints the counter and the variables.
func (d *Debugger) handleVars() {
	fmt.Fprintln(d.output, engine.Snapshot(d.engine.PC(), d.engine.Vars()))
}

// handleSet assigns a variable between steps: set NAME VALUE...
func (d *Debugger) handleSet(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: set <name> <value>\n")
		return
	}
	if d.engine.Phase() == engine.PhaseHalted {
		fmt.Fprintf(d.output, "Program has halted.\n")
		return
	}
	name, value := parts[1], strings.Join(parts[2:], " ")
	if vars.HasTemplate(name) {
		fmt.Fprintf(d.output, "Variable names cannot contain templates.\n")
		return
	}
	d.engine.Vars().Set(name, value)
	fmt.Fprintf(d.output, "  %s = %q\n", name, value)
}

// handleList prints the program with the counter and breakpoints marked.
func (d *Debugger) handleList() {
	pc := d.engine.PC()
	for i, a := range d.engine.Program().Steps {
		marker := "  "
		if i == pc && d.engine.Phase() != engine.PhaseHalted {
			marker = "=>"
		}
		bp := " "
		if d.breakpoints[i] {
			bp = "*"
		}
		fmt.Fprintf(d.output, "%s%s %3d  %s\n", marker, bp, i, a)
	}
}

// handleBreak toggles a breakpoint, or lists them without an argument.
func (d *Debugger) handleBreak(parts []string) {
	if len(parts) < 2 {
		if len(d.breakpoints) == 0 {
			fmt.Fprintf(d.output, "No breakpoints set.\n")
			return
		}
		var idx []int
		for i := range d.breakpoints {
			idx = append(idx, i)
		}
		slices.Sort(idx)
		for _, i := range idx {
			fmt.Fprintf(d.output, "  breakpoint at step %d\n", i)
		}
		return
	}
	i, err := vars.ParseIndex(parts[1])
	if err != nil || i < 0 || i >= d.engine.Program().Len() {
		fmt.Fprintf(d.output, "Invalid step %q.\n", parts[1])
		return
	}
	if d.breakpoints[i] {
		delete(d.breakpoints, i)
		fmt.Fprintf(d.output, "  breakpoint at step %d removed\n", i)
		return
	}
	d.breakpoints[i] = true
	fmt.Fprintf(d.output, "  breakpoint at step %d set\n", i)
}

// handleState outputs the current run state as JSON.
func (d *Debugger) handleState() {
	data, err := json.MarshalIndent(d.engine.State(), "", "  ")
	if err != nil {
		fmt.Fprintf(d.output, "  Error marshaling state: %v\n", err)
		return
	}
	fmt.Fprintln(d.output, string(data))
}

// handleSave persists the run state so `keystep run --resume` can pick it up.
func (d *Debugger) handleSave() {
	st := d.engine.State()
	if err := engine.SaveState(d.stateDir, st); err != nil {
		fmt.Fprintf(d.output, "  Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "  State saved: %s\n", engine.StatePath(d.stateDir, st.RunID))
}

// handleHelp displays available commands.
func (d *Debugger) handleHelp() {
	fmt.Fprintln(d.output, "Available commands:")
	fmt.Fprintln(d.output, "  next (n)         Execute the next step")
	fmt.Fprintln(d.output, "  continue (c)     Run until the program halts or hits a breakpoint")
	fmt.Fprintln(d.output, "  vars (v)         Show the counter and variables")
	fmt.Fprintln(d.output, "  set <n> <value>  Assign a variable")
	fmt.Fprintln(d.output, "  list (l)         Show the program")
	fmt.Fprintln(d.output, "  break (b) [i]    Toggle a breakpoint at step i, or list them")
	fmt.Fprintln(d.output, "  state            Output the run state as JSON")
	fmt.Fprintln(d.output, "  save             Save the run state for resume")
	fmt.Fprintln(d.output, "  help (?)         Show this help")
	fmt.Fprintln(d.output, "  quit (q)         Exit debugger")
}
