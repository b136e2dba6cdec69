// Package config loads keystep.yaml: adapter credentials, engine limits,
// logging, storage and the shortcut table.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/keystep/pkg/governance"
	"github.com/ormasoftchile/keystep/pkg/hotkey"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/validate"
	"github.com/ormasoftchile/keystep/pkg/logging"
	"github.com/ormasoftchile/keystep/pkg/providers"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "keystep.yaml"

// PlaceholderAPIKey is the key written by the example config. It counts as
// unset.
const PlaceholderAPIKey = "sk-..."

const (
	defaultServeAddr   = "127.0.0.1:7465"
	defaultHistoryPath = "keystep.db"
)

// Config is the keystep.yaml document.
type Config struct {
	OpenAI     OpenAIConfig       `yaml:"openai"`
	Engine     EngineConfig       `yaml:"engine"`
	Log        LogConfig          `yaml:"log"`
	History    HistoryConfig      `yaml:"history"`
	Serve      ServeConfig        `yaml:"serve"`
	Governance governance.Policy  `yaml:"governance"`
	Shortcuts  []*schema.Shortcut `yaml:"shortcuts,omitempty"`

	// Dir is the directory of the loaded file; shortcut files resolve
	// against it.
	Dir string `yaml:"-"`

	fromFile map[*schema.Shortcut]bool
}

// OpenAIConfig configures the ask_chatgpt adapter.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url,omitempty"`
	MockResponse string `yaml:"mock_response,omitempty"`
	MaxRetries   int    `yaml:"max_retries"`
}

// EngineConfig holds the run limits passed to engine.RunConfig.
type EngineConfig struct {
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`
	DialogTimeout  time.Duration `yaml:"dialog_timeout"`
	MaxSleep       time.Duration `yaml:"max_sleep"`
	MaxSteps       int           `yaml:"max_steps"`
	AdapterErrors  string        `yaml:"adapter_errors"` // halt | continue
	StateDir       string        `yaml:"state_dir"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig locates the run history database. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ServeConfig configures the local HTTP API.
type ServeConfig struct {
	Addr       string `yaml:"addr"`
	AllowSpawn bool   `yaml:"allow_spawn"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{Model: providers.DefaultModel},
		Engine: EngineConfig{
			AdapterTimeout: engine.DefaultAdapterTimeout,
			MaxSleep:       engine.DefaultMaxSleep,
			MaxSteps:       engine.DefaultMaxSteps,
			AdapterErrors:  string(engine.PolicyHalt),
			StateDir:       engine.DefaultStateDir,
		},
		Log:     LogConfig{Level: "info", Format: logging.FormatText},
		History: HistoryConfig{Path: defaultHistoryPath},
		Serve:   ServeConfig{Addr: defaultServeAddr},
		Dir:     ".",
	}
}

// Load reads the config file at path, applies environment overrides,
// resolves shortcut programs and validates the result. A missing file at the
// default path is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Dir = filepath.Dir(path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ResolveShortcuts(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config YAML over the defaults without touching the
// environment or the filesystem.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYSTEP_OPENAI_MODEL")); v != "" {
		c.OpenAI.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYSTEP_OPENAI_BASE_URL")); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_RESPONSE_MOCK"); v != "" {
		c.OpenAI.MockResponse = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYSTEP_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYSTEP_LOG_FORMAT")); v != "" {
		c.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYSTEP_ADAPTER_ERRORS")); v != "" {
		c.Engine.AdapterErrors = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYSTEP_MAX_STEPS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse KEYSTEP_MAX_STEPS: %w", err)
		}
		c.Engine.MaxSteps = n
	}
	return nil
}

// ResolveShortcuts loads every shortcut declared with file. Paths are relative
// to Dir.
func (c *Config) ResolveShortcuts() error {
	for _, s := range c.Shortcuts {
		if s.File == "" || c.fromFile[s] {
			continue
		}
		if s.Program != nil {
			return fmt.Errorf("shortcut %q sets both program and file", s.Name)
		}
		path := s.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Dir, path)
		}
		p, err := schema.LoadFile(path)
		if err != nil {
			return fmt.Errorf("shortcut %q: %w", s.Name, err)
		}
		s.Program = p
		if c.fromFile == nil {
			c.fromFile = make(map[*schema.Shortcut]bool)
		}
		c.fromFile[s] = true
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if _, err := engine.ParseAdapterPolicy(c.Engine.AdapterErrors); err != nil {
		return fmt.Errorf("validate config: engine.adapter_errors: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("validate config: log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("validate config: log.format: %w", err)
	}
	if err := c.Governance.Validate(); err != nil {
		return fmt.Errorf("validate config: governance: %w", err)
	}

	names := make(map[string]bool, len(c.Shortcuts))
	combos := make(map[string]string, len(c.Shortcuts))
	usesChat := false
	for i, s := range c.Shortcuts {
		label := fmt.Sprintf("shortcuts[%d]", i)
		if s.Name != "" {
			label = fmt.Sprintf("shortcut %q", s.Name)
			if names[s.Name] {
				return fmt.Errorf("validate config: %s is declared twice", label)
			}
			names[s.Name] = true
		}
		if len(s.Keys) == 0 {
			return fmt.Errorf("validate config: %s has no keys", label)
		}
		seen := make(map[schema.KeybdKey]bool, len(s.Keys))
		for _, k := range s.Keys {
			if seen[k] {
				return fmt.Errorf("validate config: %s lists %s twice", label, k)
			}
			seen[k] = true
		}
		combo := hotkey.Combo(s.Keys)
		if other, ok := combos[combo]; ok {
			return fmt.Errorf("validate config: %s and %s share the combination %s", other, label, combo)
		}
		combos[combo] = label
		if !s.Output.Valid() {
			return fmt.Errorf("validate config: %s has unknown output %q (dialog or console)", label, s.Output)
		}
		if s.Program == nil {
			return fmt.Errorf("validate config: %s has no program", label)
		}
		if errs := validate.Errors(validate.ValidateProgram(s.Program)); len(errs) > 0 {
			return fmt.Errorf("validate config: %s: %v", label, errs[0])
		}
		if s.Program.Uses(schema.ActionAskChatGPT) {
			usesChat = true
		}
	}

	if usesChat && !c.chatConfigured() {
		return errors.New("validate config: a shortcut uses ask_chatgpt but openai.api_key is empty or not set (set it or OPENAI_API_KEY)")
	}
	return nil
}

// Shortcut returns the shortcut with the given name.
func (c *Config) Shortcut(name string) (*schema.Shortcut, bool) {
	for _, s := range c.Shortcuts {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// RunConfig maps the engine section onto an engine.RunConfig. Adapters,
// logger and trace are left to the caller.
func (c *Config) RunConfig() engine.RunConfig {
	policy, _ := engine.ParseAdapterPolicy(c.Engine.AdapterErrors)
	return engine.RunConfig{
		AdapterPolicy:  policy,
		AdapterTimeout: c.Engine.AdapterTimeout,
		DialogTimeout:  c.Engine.DialogTimeout,
		MaxSleep:       c.Engine.MaxSleep,
		MaxSteps:       c.Engine.MaxSteps,
	}
}

// chatConfigured reports whether ask_chatgpt can be served: a mock response,
// or an API key that is not the placeholder.
func (c *Config) chatConfigured() bool {
	if c.OpenAI.MockResponse != "" {
		return true
	}
	key := strings.TrimSpace(c.OpenAI.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// Querier builds the ask_chatgpt adapter. Without a usable key or a mock
// response it returns nil, so those steps fail with an adapter error.
func (c *Config) Querier(log *slog.Logger) (engine.Querier, error) {
	if !c.chatConfigured() {
		return nil, nil
	}
	pc := c.OpenAIProviderConfig()
	pc.Logger = log
	q, err := providers.NewOpenAIQuerier(pc)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// OpenAIProviderConfig maps the openai section onto the adapter config.
func (c *Config) OpenAIProviderConfig() providers.OpenAIConfig {
	return providers.OpenAIConfig{
		APIKey:       c.OpenAI.APIKey,
		Model:        c.OpenAI.Model,
		BaseURL:      c.OpenAI.BaseURL,
		MaxRetries:   c.OpenAI.MaxRetries,
		MockResponse: c.OpenAI.MockResponse,
	}
}
