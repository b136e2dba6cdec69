// Package diagram draws the control flow of a keystep program.
// Supports Mermaid flowchart and ASCII formats.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Edge targets that are not steps.
const (
	targetEnd     = -1 // the run halts
	targetDynamic = -2 // templated, known only at run time
	targetInvalid = -3 // literal but outside the program
)

// edge is one possible transfer of control out of a step.
type edge struct {
	to    int
	label string
}

// Generate produces a diagram of prog's control flow.
func Generate(prog *schema.Program, format Format) (string, error) {
	if prog == nil {
		return "", fmt.Errorf("nil program")
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(prog), nil
	case FormatASCII:
		return generateASCII(prog), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// edges returns where control can go after step i.
func edges(prog *schema.Program, i int) []edge {
	a := prog.Steps[i]
	n := prog.Len()
	switch a.Kind {
	case schema.ActionEndProgram:
		return []edge{{to: targetEnd}}
	case schema.ActionGoToStep:
		return []edge{{to: resolve(a.Step, i, n, false)}}
	case schema.ActionGoToStepRelative:
		return []edge{{to: resolve(a.Step, i, n, true)}}
	case schema.ActionIfElse, schema.ActionIfElseRelative:
		relative := a.Kind == schema.ActionIfElseRelative
		return []edge{
			{to: resolve(a.StepTrue, i, n, relative), label: "true"},
			{to: resolve(a.StepFalse, i, n, relative), label: "false"},
		}
	}
	if i+1 >= n {
		return []edge{{to: targetEnd}}
	}
	return []edge{{to: i + 1}}
}

// resolve maps a jump target field to a step index, or one of the
// non-step targets.
func resolve(text string, index, n int, relative bool) int {
	if vars.HasTemplate(text) {
		return targetDynamic
	}
	v, err := vars.ParseIndex(text)
	if err != nil {
		return targetInvalid
	}
	if relative {
		v += index
	}
	if v < 0 || v >= n {
		return targetInvalid
	}
	return v
}

// label is the short text shown for a step.
func label(a schema.Action) string {
	switch a.Kind {
	case schema.ActionSetVariable:
		return fmt.Sprintf("set %s = %s", a.Name, a.Value)
	case schema.ActionIncrementVariable:
		return fmt.Sprintf("%s += %s", a.Name, a.Amount)
	case schema.ActionDeleteVariable:
		return "delete " + a.Name
	case schema.ActionSleep:
		return fmt.Sprintf("sleep %sms", a.DurationMS)
	case schema.ActionGoToStep, schema.ActionGoToStepRelative:
		return "go to " + a.Step
	case schema.ActionIfElse, schema.ActionIfElseRelative:
		return fmt.Sprintf("%s %s %s", a.A, a.Operation, a.B)
	case schema.ActionSpawn:
		return strings.TrimSpace("spawn " + a.Command + " " + strings.Join(a.Args, " "))
	case schema.ActionPrintConsole:
		return "print " + a.Content
	case schema.ActionShowDialog:
		return "dialog " + a.Title
	case schema.ActionWriteClipboard:
		return "clipboard ← " + a.Content
	case schema.ActionReadClipboard:
		return "input ← clipboard"
	case schema.ActionAskChatGPT:
		return "answer ← ask " + a.Prompt
	}
	return string(a.Kind)
}

// --- Mermaid flowchart ---

func generateMermaid(prog *schema.Program) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if prog.Len() == 0 {
		return b.String()
	}
	b.WriteString("    START([Start]) --> S0\n")

	used := map[int]bool{}
	for i, a := range prog.Steps {
		b.WriteString("    " + nodeDefinition(i, a) + "\n")
		for _, e := range edges(prog, i) {
			used[e.to] = true
			arrow := " --> "
			if e.to == targetDynamic {
				arrow = " -.-> "
			}
			if e.label != "" {
				arrow = strings.TrimRight(arrow, " ") + fmt.Sprintf("|%q| ", e.label)
			}
			fmt.Fprintf(&b, "    S%d%s%s\n", i, arrow, nodeID(e.to))
		}
	}

	if used[targetEnd] {
		b.WriteString("    END([End])\n")
	}
	if used[targetDynamic] {
		b.WriteString("    DYN{{\"computed at run time\"}}\n")
	}
	if used[targetInvalid] {
		b.WriteString("    ERR[/\"out of range\"/]\n")
		b.WriteString("    style ERR fill:#f8d7da,stroke:#dc3545\n")
	}
	return b.String()
}

func nodeID(to int) string {
	switch to {
	case targetEnd:
		return "END"
	case targetDynamic:
		return "DYN"
	case targetInvalid:
		return "ERR"
	}
	return fmt.Sprintf("S%d", to)
}

func nodeDefinition(i int, a schema.Action) string {
	text := escMermaid(truncate(fmt.Sprintf("%d: %s", i, label(a)), 40))
	switch a.Kind {
	case schema.ActionIfElse, schema.ActionIfElseRelative:
		return fmt.Sprintf("S%d{\"%s\"}", i, text)
	case schema.ActionEndProgram:
		return fmt.Sprintf("S%d([\"%s\"])", i, text)
	case schema.ActionSpawn, schema.ActionShowDialog, schema.ActionAskChatGPT,
		schema.ActionReadClipboard, schema.ActionWriteClipboard, schema.ActionPrintConsole:
		return fmt.Sprintf("S%d[/\"%s\"/]", i, text)
	}
	return fmt.Sprintf("S%d[\"%s\"]", i, text)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}

// --- ASCII ---

// generateASCII lists the steps in boxes of uniform width with their
// outgoing edges on the right.
func generateASCII(prog *schema.Program) string {
	var b strings.Builder
	b.WriteString(prog.Name + "\n")
	if prog.Len() == 0 {
		b.WriteString("  (no steps)\n")
		return b.String()
	}

	texts := make([]string, prog.Len())
	width := runewidth.StringWidth(prog.Name)
	for i, a := range prog.Steps {
		texts[i] = truncate(fmt.Sprintf("%3d  %s %s", i, stepIcon(a.Kind), label(a)), 48)
		if w := runewidth.StringWidth(texts[i]); w > width {
			width = w
		}
	}

	border := "  +" + strings.Repeat("-", width+2) + "+\n"
	b.WriteString(border)
	for i, text := range texts {
		fmt.Fprintf(&b, "  | %s |%s\n", runewidth.FillRight(text, width), arrows(prog, i))
	}
	b.WriteString(border)
	return b.String()
}

func arrows(prog *schema.Program, i int) string {
	es := edges(prog, i)
	if len(es) == 1 && es[0].to == i+1 {
		return ""
	}
	parts := make([]string, 0, len(es))
	for _, e := range es {
		target := ""
		switch e.to {
		case targetEnd:
			target = "end"
		case targetDynamic:
			target = "?"
		case targetInvalid:
			target = "out of range"
		default:
			target = fmt.Sprintf("%d", e.to)
		}
		if e.label != "" {
			target = e.label + ": " + target
		}
		parts = append(parts, target)
	}
	return " → " + strings.Join(parts, ", ")
}

func stepIcon(kind schema.ActionKind) string {
	switch kind {
	case schema.ActionIfElse, schema.ActionIfElseRelative:
		return "◇"
	case schema.ActionGoToStep, schema.ActionGoToStepRelative:
		return "↪"
	case schema.ActionEndProgram:
		return "■"
	case schema.ActionSpawn:
		return "⚙"
	case schema.ActionShowDialog, schema.ActionPrintConsole, schema.ActionDebug:
		return "▸"
	case schema.ActionReadClipboard, schema.ActionWriteClipboard:
		return "⎘"
	case schema.ActionAskChatGPT:
		return "?"
	case schema.ActionSleep:
		return "…"
	}
	return "·"
}

func truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}
