package providers

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// SystemClipboard reads and writes the OS clipboard.
type SystemClipboard struct{}

// Read returns the clipboard text.
func (SystemClipboard) Read(context.Context) (string, error) {
	if clipboard.Unsupported {
		return "", fmt.Errorf("read clipboard: no clipboard utility available")
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

// Write replaces the clipboard text.
func (SystemClipboard) Write(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("write clipboard: no clipboard utility available")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
