package schema

// ShortcutOutput is where a shortcut shows the final input of a completed run.
type ShortcutOutput string

const (
	OutputNone    ShortcutOutput = ""
	OutputDialog  ShortcutOutput = "dialog"
	OutputConsole ShortcutOutput = "console"
)

// Valid reports whether o is a known output.
func (o ShortcutOutput) Valid() bool {
	switch o {
	case OutputNone, OutputDialog, OutputConsole:
		return true
	}
	return false
}

// Shortcut binds a key combination to a program. The program is either inline
// or loaded from File, a path relative to the config file that declares it.
type Shortcut struct {
	Name    string         `yaml:"name" json:"name"`
	Keys    []KeybdKey     `yaml:"keys" json:"keys" jsonschema:"minItems=1"`
	Program *Program       `yaml:"program,omitempty" json:"program,omitempty"`
	File    string         `yaml:"file,omitempty" json:"file,omitempty"`
	Output  ShortcutOutput `yaml:"output,omitempty" json:"output,omitempty" jsonschema:"enum=dialog,enum=console"`
}

// Combo reports whether held contains exactly the shortcut's keys.
func (s *Shortcut) Combo(held map[KeybdKey]bool) bool {
	if len(s.Keys) == 0 || len(held) != len(uniqueKeys(s.Keys)) {
		return false
	}
	for _, k := range s.Keys {
		if !held[k] {
			return false
		}
	}
	return true
}

func uniqueKeys(keys []KeybdKey) map[KeybdKey]bool {
	m := make(map[KeybdKey]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}
