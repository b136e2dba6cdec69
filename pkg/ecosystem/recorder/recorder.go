// Package recorder captures what the real adapters returned during a run and
// turns it into a replay scenario, so a live run can become a regression test.
package recorder

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/replay"
)

const redacted = "<REDACTED>"

// Recorder wraps a set of adapters and captures their responses.
type Recorder struct {
	inner engine.Adapters

	mu             sync.Mutex
	console        []string
	clipboard      *string // first read, when it came before any write
	clipWritten    *string // last write
	responses      []replay.QueryResponse
	spawnFailures  []string
	dialogRejected bool
	secrets        []string
}

// New creates a recording wrapper around inner.
func New(inner engine.Adapters) *Recorder {
	return &Recorder{inner: inner}
}

// SetSecrets configures values that are replaced with <REDACTED> in the
// captured data.
func (r *Recorder) SetSecrets(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = nil
	for _, v := range values {
		if v != "" {
			r.secrets = append(r.secrets, v)
		}
	}
}

func (r *Recorder) redact(s string) string {
	for _, v := range r.secrets {
		s = strings.ReplaceAll(s, v, redacted)
	}
	return s
}

// Adapters returns the wrapped adapter set. Nil adapters stay nil.
func (r *Recorder) Adapters() engine.Adapters {
	var a engine.Adapters
	if r.inner.Console != nil {
		a.Console = &console{r: r, inner: r.inner.Console}
	}
	if r.inner.Debug != nil {
		// Replayed runs print debug output on the console.
		a.Debug = &console{r: r, inner: r.inner.Debug}
	}
	if r.inner.Clipboard != nil {
		a.Clipboard = &clipboard{r: r, inner: r.inner.Clipboard}
	}
	if r.inner.Spawner != nil {
		a.Spawner = &spawner{r: r, inner: r.inner.Spawner}
	}
	if r.inner.Dialog != nil {
		a.Dialog = &dialog{r: r, inner: r.inner.Dialog}
	}
	if r.inner.Querier != nil {
		a.Querier = &querier{r: r, inner: r.inner.Querier}
	}
	return a
}

// Scenario builds a replay scenario from the captured responses. seed is the
// run's initial variables, policy its adapter error policy, and res the run
// outcome, which becomes the scenario's expectations.
func (r *Recorder) Scenario(description string, seed map[string]string, policy engine.AdapterPolicy, res *engine.RunResult) *replay.Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &replay.Scenario{
		Description:    description,
		Vars:           r.redactMap(seed),
		QueryResponses: slices.Clone(r.responses),
		SpawnFailures:  slices.Clone(r.spawnFailures),
		DialogReject:   r.dialogRejected,
	}
	if policy == engine.PolicyContinue {
		s.AdapterErrors = string(policy)
	}
	if r.clipboard != nil {
		s.Clipboard = *r.clipboard
	}
	if res != nil {
		s.Expect = replay.Expectations{
			ExpectedStatus:  res.Status,
			ExpectedReason:  res.Reason,
			ExpectedVars:    r.redactMap(res.Vars),
			ExpectedConsole: slices.Clone(r.console),
		}
		if r.clipWritten != nil {
			text := *r.clipWritten
			s.Expect.ExpectedClip = &text
		}
	}
	return s
}

func (r *Recorder) redactMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = r.redact(v)
	}
	return out
}

// Save writes a scenario as YAML, creating parent directories.
func Save(path string, s *replay.Scenario) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scenario dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	return nil
}

// ScenarioPath returns scenarios/<program>/<name>.yaml next to the program
// file, where replay.DiscoverScenarios looks.
func ScenarioPath(programPath, name string) string {
	base := strings.TrimSuffix(filepath.Base(programPath), filepath.Ext(programPath))
	return filepath.Join(filepath.Dir(programPath), "scenarios", base, name+".yaml")
}

type console struct {
	r     *Recorder
	inner engine.Console
}

func (c *console) Print(ctx context.Context, text string) error {
	err := c.inner.Print(ctx, text)
	if err == nil {
		c.r.mu.Lock()
		c.r.console = append(c.r.console, c.r.redact(text))
		c.r.mu.Unlock()
	}
	return err
}

type clipboard struct {
	r     *Recorder
	inner engine.Clipboard
}

func (c *clipboard) Read(ctx context.Context) (string, error) {
	text, err := c.inner.Read(ctx)
	if err == nil {
		c.r.mu.Lock()
		if c.r.clipboard == nil && c.r.clipWritten == nil {
			v := c.r.redact(text)
			c.r.clipboard = &v
		}
		c.r.mu.Unlock()
	}
	return text, err
}

func (c *clipboard) Write(ctx context.Context, text string) error {
	err := c.inner.Write(ctx, text)
	if err == nil {
		c.r.mu.Lock()
		v := c.r.redact(text)
		c.r.clipWritten = &v
		c.r.mu.Unlock()
	}
	return err
}

type spawner struct {
	r     *Recorder
	inner engine.Spawner
}

func (s *spawner) Spawn(ctx context.Context, command string, args []string) (*engine.SpawnResult, error) {
	res, err := s.inner.Spawn(ctx, command, args)
	if err != nil && ctx.Err() == nil {
		s.r.mu.Lock()
		if !slices.Contains(s.r.spawnFailures, command) {
			s.r.spawnFailures = append(s.r.spawnFailures, command)
		}
		s.r.mu.Unlock()
	}
	return res, err
}

type dialog struct {
	r     *Recorder
	inner engine.Dialog
}

func (d *dialog) Show(ctx context.Context, title, body string) error {
	err := d.inner.Show(ctx, title, body)
	if err != nil && ctx.Err() == nil {
		d.r.mu.Lock()
		d.r.dialogRejected = true
		d.r.mu.Unlock()
	}
	return err
}

type querier struct {
	r     *Recorder
	inner engine.Querier
}

func (q *querier) Query(ctx context.Context, system, user string) (string, error) {
	answer, err := q.inner.Query(ctx, system, user)
	if ctx.Err() != nil {
		return answer, err
	}
	q.r.mu.Lock()
	if err != nil {
		q.r.responses = append(q.r.responses, replay.QueryResponse{Error: q.r.redact(err.Error())})
	} else {
		q.r.responses = append(q.r.responses, replay.QueryResponse{Answer: q.r.redact(answer)})
	}
	q.r.mu.Unlock()
	return answer, err
}
