package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

// Example returns the configuration written by `keystep init`: defaults, a
// placeholder API key and three sample shortcuts.
func Example() *Config {
	cfg := Default()
	cfg.OpenAI.APIKey = PlaceholderAPIKey
	cfg.Shortcuts = []*schema.Shortcut{
		{
			// Compare two cities and report which branch ran.
			Name: "compare",
			Keys: []schema.KeybdKey{schema.KeyD},
			Program: program("compare",
				schema.Action{Kind: schema.ActionDebug},
				schema.Action{Kind: schema.ActionSetVariable, Name: "city1", Value: "Bordeaux"},
				schema.Action{Kind: schema.ActionSetVariable, Name: "city2", Value: "Lyon"},
				schema.Action{Kind: schema.ActionIfElseRelative, Operation: "str_equals",
					A: "{{city1}}", B: "{{city2}}", StepTrue: "+1", StepFalse: "+3"},
				schema.Action{Kind: schema.ActionPrintConsole, Content: "If was true!"},
				schema.Action{Kind: schema.ActionEndProgram},
				schema.Action{Kind: schema.ActionPrintConsole, Content: "If was false!"},
			),
		},
		{
			// Show the clipboard in a dialog.
			Name: "clipboard",
			Keys: []schema.KeybdKey{schema.KeyLControl, schema.KeyB},
			Program: program("clipboard",
				schema.Action{Kind: schema.ActionReadClipboard},
				schema.Action{Kind: schema.ActionDebug},
				schema.Action{Kind: schema.ActionShowDialog, Title: "Hello World!", Body: "{{input}}"},
			),
		},
		{
			// Print five loop iterations.
			Name: "loop",
			Keys: []schema.KeybdKey{schema.KeyLControl, schema.KeyM},
			Program: program("loop",
				schema.Action{Kind: schema.ActionSetVariable, Name: "i", Value: "0"},
				schema.Action{Kind: schema.ActionPrintConsole, Content: "Loop iteration {{i}}"},
				schema.Action{Kind: schema.ActionIncrementVariable, Name: "i", Amount: "1"},
				schema.Action{Kind: schema.ActionIfElseRelative, Operation: "<",
					A: "{{i}}", B: "5", StepTrue: "-2", StepFalse: "+1"},
				schema.Action{Kind: schema.ActionPrintConsole, Content: "End of the loop!"},
			),
		},
	}
	return cfg
}

func program(name string, steps ...schema.Action) *schema.Program {
	return &schema.Program{APIVersion: schema.APIVersionProgram, Name: name, Steps: steps}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteExample writes the example configuration to path. An existing file is
// never overwritten.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	data, err := Example().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
