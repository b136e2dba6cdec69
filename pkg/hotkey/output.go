package hotkey

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// Deliver shows the final input of a completed shortcut run on the
// shortcut's output. Runs that did not complete deliver nothing.
func Deliver(ctx context.Context, s *schema.Shortcut, a engine.Adapters, res *engine.RunResult) error {
	if s.Output == schema.OutputNone || res == nil || res.Status != engine.StatusCompleted {
		return nil
	}
	text := res.Vars[vars.Input]
	switch s.Output {
	case schema.OutputDialog:
		if a.Dialog == nil {
			return fmt.Errorf("shortcut %q: no dialog adapter", s.Name)
		}
		if err := a.Dialog.Show(ctx, "Result of shortcut "+s.Name, text); err != nil {
			return fmt.Errorf("shortcut %q: show result: %w", s.Name, err)
		}
	case schema.OutputConsole:
		if a.Console == nil {
			return fmt.Errorf("shortcut %q: no console adapter", s.Name)
		}
		if err := a.Console.Print(ctx, text); err != nil {
			return fmt.Errorf("shortcut %q: print result: %w", s.Name, err)
		}
	default:
		return fmt.Errorf("shortcut %q: unknown output %q", s.Name, s.Output)
	}
	return nil
}
