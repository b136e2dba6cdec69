// Package tui is a live terminal monitor for a single run: the program's
// steps with their status, the console output and any dialog the program
// raises.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
)

// consoleLines is how many console lines the monitor keeps.
const consoleLines = 8

// StepState tracks the status of each step in the TUI.
type StepState struct {
	Index    int
	Action   string
	Status   string // "pending", "running", "success", "failed", "error"
	Visits   int
	Duration time.Duration
	Failure  string
}

// Model is the Bubble Tea model of the run monitor.
type Model struct {
	prog     *schema.Program
	steps    []StepState
	selected int
	pc       int
	status   string // "idle", "running", "completed", "error", "cancelled"
	reason   string
	err      error
	console  []string
	dialog   *dialogMsg
	width    int
	cancel   context.CancelFunc
}

// NewModel creates a monitor for prog. cancel stops the run when the user
// quits.
func NewModel(prog *schema.Program, cancel context.CancelFunc) Model {
	steps := make([]StepState, 0, prog.Len())
	for i, a := range prog.Steps {
		steps = append(steps, StepState{Index: i, Action: a.String(), Status: "pending"})
	}
	if cancel == nil {
		cancel = func() {}
	}
	return Model{prog: prog, steps: steps, status: "idle", cancel: cancel}
}

// --- Messages ---

// traceEventMsg delivers a trace event to the TUI.
type traceEventMsg struct {
	Event trace.Event
}

// consoleMsg delivers one print_console or debug output.
type consoleMsg struct {
	Text string
}

// dialogMsg asks the monitor to show a dialog; the answer goes to reply.
type dialogMsg struct {
	Title string
	Body  string
	reply chan error
}

// runCompleteMsg signals run completion.
type runCompleteMsg struct {
	Result *engine.RunResult
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.dialog != nil {
			return m.answerDialog(msg), nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.steps)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case traceEventMsg:
		m.applyTraceEvent(msg.Event)

	case consoleMsg:
		m.console = append(m.console, strings.Split(msg.Text, "\n")...)
		if len(m.console) > consoleLines {
			m.console = m.console[len(m.console)-consoleLines:]
		}

	case dialogMsg:
		m.dialog = &msg

	case runCompleteMsg:
		if msg.Result != nil {
			m.status = msg.Result.Status
			m.reason = msg.Result.Reason
			m.err = msg.Result.Error
		}
	}

	return m, nil
}

func (m Model) answerDialog(msg tea.KeyMsg) Model {
	var err error
	switch msg.String() {
	case "enter", "y", " ":
	case "n", "esc", "q", "ctrl+c":
		err = errDialogRejected
	default:
		return m
	}
	m.dialog.reply <- err
	m.dialog = nil
	return m
}

// applyTraceEvent updates step states based on trace events.
func (m *Model) applyTraceEvent(evt trace.Event) {
	switch evt.Type {
	case trace.EventRunStart:
		m.status = "running"
		return
	case trace.EventJump:
		if to, ok := intField(evt.Data, "to"); ok {
			m.pc = to
		}
		return
	}

	i, ok := intField(evt.Data, "step")
	if !ok || i < 0 || i >= len(m.steps) {
		return
	}
	s := &m.steps[i]
	switch evt.Type {
	case trace.EventStepStart:
		s.Status = "running"
		s.Visits++
		m.pc = i
		m.status = "running"
	case trace.EventStepComplete:
		s.Status, _ = evt.Data["status"].(string)
		if d, ok := evt.Data["duration"].(string); ok {
			s.Duration, _ = time.ParseDuration(d)
		}
		s.Failure = ""
		if f, ok := evt.Data["failure"].(map[string]any); ok {
			s.Failure, _ = f["message"].(string)
		}
		m.pc = i + 1
	}
}

// intField reads a number from decoded JSON (float64) or from a map built in
// Go (int).
func intField(data map[string]any, key string) (int, bool) {
	switch v := data[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40"))
	failStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dialogStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("51")).Padding(0, 1)
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("  keystep: %s", m.prog.Name)))
	b.WriteString("\n\n")

	for i, s := range m.steps {
		line := fmt.Sprintf("%s %3d %s", stepIcon(s.Status), i, s.Action)
		if s.Visits > 1 {
			line += fmt.Sprintf("  ×%d", s.Visits)
		}
		if s.Duration > 0 {
			line += fmt.Sprintf("  %s", s.Duration.Truncate(time.Millisecond))
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch m.status {
	case "idle":
		b.WriteString(dimStyle.Render("  Ready"))
	case "running":
		b.WriteString(dimStyle.Render(fmt.Sprintf("  Running... next step %d", m.pc)))
	case engine.StatusCompleted:
		b.WriteString(okStyle.Render(fmt.Sprintf("  ✓ completed (%s)", m.reason)))
	default:
		msg := m.reason
		if m.err != nil {
			msg = m.err.Error()
		}
		b.WriteString(failStyle.Render(fmt.Sprintf("  ✗ %s: %s", m.status, msg)))
	}

	if m.selected < len(m.steps) && m.steps[m.selected].Failure != "" {
		b.WriteString("\n\n")
		b.WriteString(failStyle.Render("  " + m.steps[m.selected].Failure))
	}

	if len(m.console) > 0 {
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("  Console:"))
		for _, l := range m.console {
			b.WriteString("\n  " + l)
		}
	}

	if m.dialog != nil {
		b.WriteString("\n\n")
		content := selectedStyle.Render(m.dialog.Title)
		if m.dialog.Body != "" {
			content += "\n\n" + m.dialog.Body
		}
		b.WriteString(dialogStyle.Render(content))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  enter: dismiss  n/esc: reject"))
		return b.String()
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("  q: quit  ↑/↓: navigate"))
	return b.String()
}

func stepIcon(status string) string {
	switch status {
	case "pending":
		return "○"
	case "running":
		return "◉"
	case "success":
		return "✓"
	case "failed":
		return "!"
	case "error":
		return "✗"
	default:
		return "?"
	}
}
