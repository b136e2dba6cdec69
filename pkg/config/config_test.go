package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/keystep/pkg/governance"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

const sampleConfig = `
openai:
  api_key: sk-live
  model: gpt-4o-mini
engine:
  adapter_timeout: 5s
  max_sleep: 2m
  max_steps: 500
  adapter_errors: continue
log:
  level: debug
  format: json
governance:
  denied_commands: [rm]
  deny_env_vars: ["OPENAI_*"]
  redact:
    - pattern: 'sk-\w+'
      replace: sk-***
shortcuts:
  - name: hello
    keys: [LControlKey, HKey]
    program:
      apiVersion: keystep/v0
      name: hello
      steps:
        - action: print_console
          content: hello
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-live" || cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("openai = %+v", cfg.OpenAI)
	}
	if cfg.Engine.AdapterTimeout != 5*time.Second || cfg.Engine.MaxSleep != 2*time.Minute {
		t.Errorf("durations = %v, %v", cfg.Engine.AdapterTimeout, cfg.Engine.MaxSleep)
	}
	if cfg.Engine.StateDir != engine.DefaultStateDir {
		t.Errorf("state_dir = %q, want default", cfg.Engine.StateDir)
	}
	if len(cfg.Shortcuts) != 1 || cfg.Shortcuts[0].Program.Len() != 1 {
		t.Fatalf("shortcuts = %+v", cfg.Shortcuts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if g := cfg.Governance; len(g.DeniedCommands) != 1 || g.CheckEnvVar("OPENAI_API_KEY") == nil || len(g.Redact) != 1 {
		t.Errorf("governance = %+v", g)
	}

	rc := cfg.RunConfig()
	if rc.AdapterPolicy != engine.PolicyContinue || rc.MaxSteps != 500 || rc.AdapterTimeout != 5*time.Second {
		t.Errorf("RunConfig = %+v", rc)
	}
	if pc := cfg.OpenAIProviderConfig(); pc.APIKey != "sk-live" || pc.Model != "gpt-4o-mini" {
		t.Errorf("OpenAIProviderConfig = %+v", pc)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Default()
	if cfg.Engine != def.Engine || cfg.Log != def.Log || cfg.OpenAI != def.OpenAI {
		t.Errorf("empty config differs from defaults: %+v", cfg)
	}
}

func TestParse_UnknownField(t *testing.T) {
	if _, err := Parse([]byte("engine:\n  max_stepz: 3\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Shortcuts) != 0 || cfg.Engine.MaxSteps != engine.DefaultMaxSteps {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "keystep.yaml", sampleConfig)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("KEYSTEP_LOG_LEVEL", "warn")
	t.Setenv("KEYSTEP_MAX_STEPS", "42")
	t.Setenv("KEYSTEP_ADAPTER_ERRORS", "halt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Errorf("api_key = %q, want env value", cfg.OpenAI.APIKey)
	}
	if cfg.Log.Level != "warn" || cfg.Engine.MaxSteps != 42 || cfg.Engine.AdapterErrors != "halt" {
		t.Errorf("env overrides not applied: log=%+v engine=%+v", cfg.Log, cfg.Engine)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestLoad_BadEnvMaxSteps(t *testing.T) {
	path := writeFile(t, t.TempDir(), "keystep.yaml", "")
	t.Setenv("KEYSTEP_MAX_STEPS", "lots")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "KEYSTEP_MAX_STEPS") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_ShortcutFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "programs"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "programs"), "greet.yaml", `
apiVersion: keystep/v0
name: greet
steps:
  - action: print_console
    content: hi
`)
	path := writeFile(t, dir, "keystep.yaml", `
shortcuts:
  - name: greet
    keys: [F5Key]
    file: programs/greet.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, ok := cfg.Shortcut("greet")
	if !ok || s.Program == nil || s.Program.Name != "greet" {
		t.Fatalf("shortcut = %+v", s)
	}
	// A second resolve is a no-op for file-backed shortcuts.
	if err := cfg.ResolveShortcuts(); err != nil {
		t.Errorf("second ResolveShortcuts: %v", err)
	}
	if _, ok := cfg.Shortcut("missing"); ok {
		t.Error("unknown shortcut found")
	}
}

func TestResolveShortcuts_ProgramAndFile(t *testing.T) {
	cfg, err := Parse([]byte(`
shortcuts:
  - name: both
    keys: [F5Key]
    file: other.yaml
    program:
      apiVersion: keystep/v0
      name: both
      steps:
        - action: end_program
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ResolveShortcuts(); err == nil || !strings.Contains(err.Error(), "both program and file") {
		t.Errorf("err = %v", err)
	}
}

func endProgram() *schema.Program {
	return &schema.Program{
		APIVersion: schema.APIVersionProgram,
		Name:       "p",
		Steps:      []schema.Action{{Kind: schema.ActionEndProgram}},
	}
}

func TestValidate_Errors(t *testing.T) {
	chat := &schema.Program{
		APIVersion: schema.APIVersionProgram,
		Name:       "chat",
		Steps:      []schema.Action{{Kind: schema.ActionAskChatGPT, PrePrompt: "s", Prompt: "u"}},
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad policy", func(c *Config) { c.Engine.AdapterErrors = "ignore" }, "adapter_errors"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad redaction", func(c *Config) {
			c.Governance.Redact = []governance.RedactionRule{{Pattern: "("}}
		}, "governance"},
		{"bad output", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{
				{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}, Program: endProgram(), Output: "email"},
			}
		}, "unknown output"},
		{"duplicate name", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{
				{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}, Program: endProgram()},
				{Name: "a", Keys: []schema.KeybdKey{schema.KeyB}, Program: endProgram()},
			}
		}, "declared twice"},
		{"no keys", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{{Name: "a", Program: endProgram()}}
		}, "no keys"},
		{"repeated key", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{{Name: "a", Keys: []schema.KeybdKey{schema.KeyA, schema.KeyA}, Program: endProgram()}}
		}, "twice"},
		{"shared combination", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{
				{Name: "a", Keys: []schema.KeybdKey{schema.KeyLControl, schema.KeyA}, Program: endProgram()},
				{Name: "b", Keys: []schema.KeybdKey{schema.KeyA, schema.KeyLControl}, Program: endProgram()},
			}
		}, "share the combination"},
		{"no program", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}}}
		}, "no program"},
		{"invalid program", func(c *Config) {
			p := endProgram()
			p.Steps = []schema.Action{{Kind: schema.ActionSpawn}}
			c.Shortcuts = []*schema.Shortcut{{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}, Program: p}}
		}, `shortcut "a"`},
		{"chat without key", func(c *Config) {
			c.Shortcuts = []*schema.Shortcut{{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}, Program: chat}}
		}, "api_key"},
		{"chat with placeholder key", func(c *Config) {
			c.OpenAI.APIKey = PlaceholderAPIKey
			c.Shortcuts = []*schema.Shortcut{{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}, Program: chat}}
		}, "api_key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestValidate_ChatKeyAccepted(t *testing.T) {
	chat := &schema.Program{
		APIVersion: schema.APIVersionProgram,
		Name:       "chat",
		Steps:      []schema.Action{{Kind: schema.ActionAskChatGPT, PrePrompt: "s", Prompt: "u"}},
	}
	for _, mutate := range []func(*Config){
		func(c *Config) { c.OpenAI.APIKey = "sk-real" },
		func(c *Config) { c.OpenAI.MockResponse = "canned" },
	} {
		cfg := Default()
		mutate(cfg)
		cfg.Shortcuts = []*schema.Shortcut{{Name: "a", Keys: []schema.KeybdKey{schema.KeyA}, Program: chat}}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	}
}

func TestConfig_Querier(t *testing.T) {
	for _, key := range []string{"", "  ", PlaceholderAPIKey} {
		cfg := Default()
		cfg.OpenAI.APIKey = key
		q, err := cfg.Querier(nil)
		if err != nil || q != nil {
			t.Errorf("key %q: querier = %v, %v, want none", key, q, err)
		}
	}

	cfg := Default()
	cfg.OpenAI.APIKey = PlaceholderAPIKey
	cfg.OpenAI.MockResponse = "canned"
	q, err := cfg.Querier(nil)
	if err != nil || q == nil {
		t.Fatalf("mock: querier = %v, %v", q, err)
	}
	if answer, err := q.Query(context.Background(), "s", "u"); err != nil || answer != "canned" {
		t.Errorf("answer = %q, %v", answer, err)
	}

	cfg = Default()
	cfg.OpenAI.APIKey = "sk-live"
	if q, err := cfg.Querier(nil); err != nil || q == nil {
		t.Errorf("live key: querier = %v, %v", q, err)
	}
}

func TestExample_Valid(t *testing.T) {
	cfg := Example()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if len(cfg.Shortcuts) != 3 {
		t.Errorf("shortcuts = %d, want 3", len(cfg.Shortcuts))
	}
}

func TestWriteExample_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystep.yaml")
	if err := WriteExample(path); err != nil {
		t.Fatalf("WriteExample: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Example()
	if len(cfg.Shortcuts) != len(want.Shortcuts) {
		t.Fatalf("shortcuts = %d, want %d", len(cfg.Shortcuts), len(want.Shortcuts))
	}
	for i, s := range cfg.Shortcuts {
		w := want.Shortcuts[i]
		if s.Name != w.Name || s.Program.Len() != w.Program.Len() {
			t.Errorf("shortcut %d = %s (%d steps), want %s (%d steps)", i, s.Name, s.Program.Len(), w.Name, w.Program.Len())
		}
	}
	if cfg.Engine.AdapterTimeout != engine.DefaultAdapterTimeout {
		t.Errorf("adapter_timeout = %v", cfg.Engine.AdapterTimeout)
	}

	if err := WriteExample(path); err == nil {
		t.Error("expected WriteExample to refuse overwriting")
	}
}
