package providers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// ErrDialogRejected is returned when the user dismisses a dialog with "no".
var ErrDialogRejected = errors.New("dialog rejected")

// dialogWidth is the text width of the dialog box.
const dialogWidth = 72

var (
	colorCyan = lipgloss.Color("51")
	colorDim  = lipgloss.Color("240")
	colorRed  = lipgloss.Color("196")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(0, 1).
			Width(dialogWidth + 4)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	rejectStyle = lipgloss.NewStyle().
			Foreground(colorRed)
)

// renderMarkdown converts a markdown body to styled terminal output. Chat
// answers are usually markdown. Falls back to the raw input when rendering
// fails.
func renderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// Glamour adds surrounding newlines; trim for inline use
	return strings.Trim(out, "\n")
}

// renderBox draws the title and body inside a rounded border.
func renderBox(title, body string) string {
	content := titleStyle.Render(title)
	if b := renderMarkdown(body, dialogWidth); b != "" {
		content += "\n\n" + b
	}
	return boxStyle.Render(content)
}

// PlainDialog prints the dialog box and waits for a line on its input:
// an empty line or "y" dismisses it, "n" rejects it.
type PlainDialog struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPlainDialog creates a line-oriented dialog over in and out.
func NewPlainDialog(in io.Reader, out io.Writer) *PlainDialog {
	return &PlainDialog{in: bufio.NewReader(in), out: out}
}

// Show renders the dialog and blocks until it is answered. A closed input
// dismisses the dialog.
func (d *PlainDialog) Show(_ context.Context, title, body string) error {
	fmt.Fprintln(d.out, renderBox(title, body))
	fmt.Fprint(d.out, hintStyle.Render("Press Enter to dismiss, n to reject: "))

	answer, err := d.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read dialog answer: %w", err)
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "n" || answer == "no" {
		fmt.Fprintln(d.out, rejectStyle.Render("rejected"))
		return ErrDialogRejected
	}
	return nil
}

// NewDialog returns the interactive dialog when both stdin and stdout are
// terminals, and the plain one otherwise.
func NewDialog(in *os.File, out *os.File) engine.Dialog {
	if term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd())) {
		return NewTerminalDialog(in, out)
	}
	return NewPlainDialog(in, out)
}
