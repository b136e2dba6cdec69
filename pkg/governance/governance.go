// Package governance restricts what programs may do on the local machine:
// which commands spawn may start, which environment variables spawned
// processes inherit, and which text is masked in console output.
package governance

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// ErrDenied is returned when a spawn is refused by policy.
var ErrDenied = errors.New("denied by governance policy")

// Policy is the governance section of the config file.
type Policy struct {
	AllowedCommands []string        `yaml:"allowed_commands,omitempty"`
	DeniedCommands  []string        `yaml:"denied_commands,omitempty"`
	DenyEnvVars     []string        `yaml:"deny_env_vars,omitempty"` // glob patterns
	Redact          []RedactionRule `yaml:"redact,omitempty"`
}

// RedactionRule replaces matches of Pattern in console output.
type RedactionRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Validate checks patterns without applying them.
func (p *Policy) Validate() error {
	for _, pattern := range p.DenyEnvVars {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("deny_env_vars: invalid pattern %q: %w", pattern, err)
		}
	}
	if _, err := compile(p.Redact); err != nil {
		return err
	}
	return nil
}

// commandName reduces a spawn command to the name policies are written
// against: base name, no .exe, lower case.
func commandName(command string) string {
	name := filepath.Base(strings.ReplaceAll(command, `\`, "/"))
	name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	return name
}

// CheckCommand validates a spawn command against the lists. Deny takes
// precedence over allow; an empty allowlist allows everything not denied.
func (p *Policy) CheckCommand(command string) error {
	name := commandName(command)
	for _, denied := range p.DeniedCommands {
		if name == commandName(denied) {
			return fmt.Errorf("%w: command %q is denied", ErrDenied, command)
		}
	}
	if len(p.AllowedCommands) == 0 {
		return nil
	}
	for _, allowed := range p.AllowedCommands {
		if name == commandName(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: command %q is not in the allowlist", ErrDenied, command)
}

// CheckEnvVar reports whether name matches a deny_env_vars pattern.
func (p *Policy) CheckEnvVar(name string) error {
	for _, pattern := range p.DenyEnvVars {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return fmt.Errorf("invalid env var deny pattern %q: %w", pattern, err)
		}
		if matched {
			return fmt.Errorf("environment variable %q matches denied pattern %q", name, pattern)
		}
	}
	return nil
}

// FilterEnv returns env without the denied variables, and the names it
// removed.
func (p *Policy) FilterEnv(env []string) (filtered, blocked []string) {
	if len(p.DenyEnvVars) == 0 {
		return env, nil
	}
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if p.CheckEnvVar(name) != nil {
			blocked = append(blocked, name)
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, blocked
}

type compiledRule struct {
	re      *regexp.Regexp
	replace string
}

func compile(rules []RedactionRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact: invalid pattern %q: %w", r.Pattern, err)
		}
		out = append(out, compiledRule{re: re, replace: r.Replace})
	}
	return out, nil
}

// Spawner refuses commands the policy does not allow and passes the rest to
// Inner.
type Spawner struct {
	Inner  engine.Spawner
	Policy *Policy
}

func (s *Spawner) Spawn(ctx context.Context, command string, args []string) (*engine.SpawnResult, error) {
	if err := s.Policy.CheckCommand(command); err != nil {
		return nil, err
	}
	return s.Inner.Spawn(ctx, command, args)
}

// Console applies redaction rules to every line before Inner prints it.
type Console struct {
	inner engine.Console
	rules []compiledRule
}

// NewConsole wraps inner with the policy's redaction rules. Without rules
// inner is returned unchanged.
func NewConsole(inner engine.Console, p *Policy) (engine.Console, error) {
	if inner == nil || len(p.Redact) == 0 {
		return inner, nil
	}
	rules, err := compile(p.Redact)
	if err != nil {
		return nil, err
	}
	return &Console{inner: inner, rules: rules}, nil
}

func (c *Console) Print(ctx context.Context, text string) error {
	for _, r := range c.rules {
		text = r.re.ReplaceAllString(text, r.replace)
	}
	return c.inner.Print(ctx, text)
}

// Apply wraps the spawner and the console sinks of an adapter set.
func (p *Policy) Apply(a engine.Adapters) (engine.Adapters, error) {
	if p == nil {
		return a, nil
	}
	if a.Spawner != nil && (len(p.AllowedCommands) > 0 || len(p.DeniedCommands) > 0) {
		a.Spawner = &Spawner{Inner: a.Spawner, Policy: p}
	}
	var err error
	if a.Console, err = NewConsole(a.Console, p); err != nil {
		return a, err
	}
	if a.Debug, err = NewConsole(a.Debug, p); err != nil {
		return a, err
	}
	return a, nil
}
