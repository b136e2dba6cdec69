// Package hotkey maps key events to shortcuts. It keeps the set of held keys
// and reports a shortcut when the held set equals its key combination.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

// Matcher tracks held keys against a list of shortcuts. It is safe for
// concurrent use; key events usually arrive from a hook goroutine.
type Matcher struct {
	mu        sync.Mutex
	shortcuts []*schema.Shortcut
	held      map[schema.KeybdKey]bool
	fired     bool
}

// NewMatcher builds a matcher. Two shortcuts with the same combination are
// an error, since only one could ever fire.
func NewMatcher(shortcuts []*schema.Shortcut) (*Matcher, error) {
	seen := make(map[string]string, len(shortcuts))
	for _, s := range shortcuts {
		if len(s.Keys) == 0 {
			return nil, fmt.Errorf("shortcut %q has no keys", s.Name)
		}
		combo := Combo(s.Keys)
		if other, ok := seen[combo]; ok {
			return nil, fmt.Errorf("shortcuts %q and %q share the combination %s", other, s.Name, combo)
		}
		seen[combo] = s.Name
	}
	return &Matcher{shortcuts: shortcuts, held: make(map[schema.KeybdKey]bool)}, nil
}

// Press records k as held. It returns the shortcut whose combination is now
// held exactly, or nil. A shortcut fires once per hold: further presses
// return nil until a key of the combination is released.
func (m *Matcher) Press(k schema.KeybdKey) *schema.Shortcut {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[k] {
		return nil // key repeat
	}
	m.held[k] = true
	if m.fired {
		return nil
	}
	for _, s := range m.shortcuts {
		if s.Combo(m.held) {
			m.fired = true
			return s
		}
	}
	return nil
}

// Release records k as no longer held.
func (m *Matcher) Release(k schema.KeybdKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held[k] {
		return
	}
	delete(m.held, k)
	m.fired = false
}

// Reset forgets every held key.
func (m *Matcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.held)
	m.fired = false
}

// Held returns the held keys in enumeration order.
func (m *Matcher) Held() []schema.KeybdKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]schema.KeybdKey, 0, len(m.held))
	for k := range m.held {
		keys = append(keys, k)
	}
	schema.SortKeys(keys)
	return keys
}

// Combo renders keys as a canonical "A+B" string, deduplicated and in
// enumeration order.
func Combo(keys []schema.KeybdKey) string {
	set := make(map[schema.KeybdKey]bool, len(keys))
	var uniq []schema.KeybdKey
	for _, k := range keys {
		if !set[k] {
			set[k] = true
			uniq = append(uniq, k)
		}
	}
	schema.SortKeys(uniq)
	parts := make([]string, len(uniq))
	for i, k := range uniq {
		parts[i] = string(k)
	}
	return strings.Join(parts, "+")
}
