package providers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console writes print_console output, one line per call.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewConsole returns a console writing to w. Every line is prefixed with
// prefix, which may be empty.
func NewConsole(w io.Writer, prefix string) *Console {
	return &Console{w: w, prefix: prefix}
}

// Print writes text followed by a newline.
func (c *Console) Print(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefix != "" {
		text = c.prefix + strings.ReplaceAll(text, "\n", "\n"+c.prefix)
	}
	if _, err := fmt.Fprintln(c.w, text); err != nil {
		return fmt.Errorf("write console: %w", err)
	}
	return nil
}
