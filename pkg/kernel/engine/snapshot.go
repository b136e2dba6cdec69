package engine

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/keystep/pkg/kernel/vars"
)

// Snapshot renders the counter and the variables, sorted by name, in aligned
// columns. It is what the debug action prints.
func Snapshot(pc int, store *vars.Store) string {
	var b strings.Builder
	names := store.Names()
	fmt.Fprintf(&b, "debug: step %d, %d variable(s)\n", pc, len(names))

	width := 0
	for _, n := range names {
		if w := runewidth.StringWidth(n); w > width {
			width = w
		}
	}
	for _, n := range names {
		v, _ := store.Get(n)
		fmt.Fprintf(&b, "  %s = %q\n", runewidth.FillRight(n, width), v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
