package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type dialogKeyMap struct {
	Dismiss key.Binding
	Reject  key.Binding
}

func (k dialogKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Dismiss, k.Reject}
}

func (k dialogKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var dialogKeys = dialogKeyMap{
	Dismiss: key.NewBinding(
		key.WithKeys("enter", "y", " "),
		key.WithHelp("enter", "dismiss"),
	),
	Reject: key.NewBinding(
		key.WithKeys("n", "esc", "q", "ctrl+c"),
		key.WithHelp("n/esc", "reject"),
	),
}

// dialogModel is the Bubble Tea model of one dialog.
type dialogModel struct {
	box      string
	help     help.Model
	rejected bool
	done     bool
}

func newDialogModel(title, body string) dialogModel {
	return dialogModel{box: renderBox(title, body), help: help.New()}
}

func (m dialogModel) Init() tea.Cmd { return nil }

func (m dialogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, dialogKeys.Dismiss):
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, dialogKeys.Reject):
			m.done, m.rejected = true, true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m dialogModel) View() string {
	if m.done {
		return ""
	}
	return m.box + "\n" + m.help.View(dialogKeys) + "\n"
}

// TerminalDialog shows dialogs as a small Bubble Tea program.
type TerminalDialog struct {
	in  io.Reader
	out io.Writer
}

// NewTerminalDialog creates an interactive dialog over a terminal.
func NewTerminalDialog(in io.Reader, out io.Writer) *TerminalDialog {
	return &TerminalDialog{in: in, out: out}
}

// Show blocks until a key dismisses or rejects the dialog, or ctx ends.
func (d *TerminalDialog) Show(ctx context.Context, title, body string) error {
	p := tea.NewProgram(newDialogModel(title, body),
		tea.WithInput(d.in),
		tea.WithOutput(d.out),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dialog: %w", err)
	}
	if m, ok := final.(dialogModel); ok && m.rejected {
		return ErrDialogRejected
	}
	return nil
}
