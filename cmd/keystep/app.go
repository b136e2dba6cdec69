package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/config"
	"github.com/ormasoftchile/keystep/pkg/history"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
	"github.com/ormasoftchile/keystep/pkg/kernel/validate"
	"github.com/ormasoftchile/keystep/pkg/logging"
	"github.com/ormasoftchile/keystep/pkg/providers"
)

// signingKeyIDEnv names the key id stamped next to a trace signature.
const signingKeyIDEnv = "KEYSTEP_TRACE_SIGNING_KEY_ID"

// loadConfig reads the config file and builds the logger it describes.
// Command-line log flags override the file.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(os.Stderr, logging.Options{Level: level, Format: format, NoColor: noColor})
	return cfg, log, nil
}

// loadProgram validates the program at path, printing warnings and errors
// to w.
func loadProgram(w io.Writer, path string) (*schema.Program, error) {
	prog, errs := validate.ValidateFile(path)
	printValidation(w, errs)
	if validate.HasErrors(errs) {
		return nil, fmt.Errorf("validation failed with %d error(s)", len(validate.Errors(errs)))
	}
	return prog, nil
}

func printValidation(w io.Writer, errs []*validate.ValidationError) {
	for _, e := range validate.Warnings(errs) {
		fmt.Fprintf(w, "  ⚠ [%s] %s\n", e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "    at: %s\n", e.Path)
		}
	}
	errors := validate.Errors(errs)
	if len(errors) == 0 {
		return
	}
	fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(errors))
	for i, e := range errors {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "     at: %s\n", e.Path)
		}
	}
}

// parseVars turns repeated NAME=VALUE flags into a seed map.
func parseVars(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(flags))
	for _, v := range flags {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", v)
		}
		out[name] = value
	}
	return out, nil
}

// localAdapters wires the real console, clipboard, process and dialog
// adapters. The returned spawner must be waited on before exit so child
// exits get logged.
func localAdapters(cmd *cobra.Command, cfg *config.Config, log *slog.Logger) (engine.Adapters, *providers.ProcessSpawner, error) {
	q, err := cfg.Querier(log)
	if err != nil {
		return engine.Adapters{}, nil, err
	}
	spawner := &providers.ProcessSpawner{Logger: log}
	if env, blocked := cfg.Governance.FilterEnv(os.Environ()); len(blocked) > 0 {
		spawner.Env = env
		log.Debug("environment variables withheld from spawned processes", "names", blocked)
	}
	a := engine.Adapters{
		Console:   providers.NewConsole(cmd.OutOrStdout(), ""),
		Debug:     providers.NewConsole(cmd.ErrOrStderr(), "[debug] "),
		Clipboard: providers.SystemClipboard{},
		Spawner:   spawner,
		Dialog:    providers.NewDialog(os.Stdin, os.Stdout),
	}
	if q != nil {
		a.Querier = q
	}
	a, err = cfg.Governance.Apply(a)
	if err != nil {
		return engine.Adapters{}, nil, err
	}
	return a, spawner, nil
}

// openTrace opens the JSONL trace file.
func openTrace(path, runID string, cfg *config.Config) (*trace.Writer, error) {
	tw, err := trace.NewFileWriter(path, runID)
	if err != nil {
		return nil, err
	}
	configureTrace(cfg)(tw)
	return tw, nil
}

// configureTrace redacts the API key and signs with the key from the
// environment, if any.
func configureTrace(cfg *config.Config) func(*trace.Writer) {
	return func(tw *trace.Writer) {
		tw.SetSecrets(cfg.OpenAI.APIKey)
		if key := os.Getenv(trace.SigningKeyEnv); key != "" {
			tw.SetSigningKey(os.Getenv(signingKeyIDEnv), []byte(key))
		}
	}
}

// openHistory opens the run history, or returns nil when it is disabled.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if cfg.History.Path == "" {
		return nil, nil
	}
	return history.Open(cfg.History.Path)
}

// recordRun stores run in the history. Failures are logged, not returned.
func recordRun(ctx context.Context, store *history.Store, log *slog.Logger, run history.Run) {
	if store == nil {
		return
	}
	if err := store.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("record run history", "run_id", run.ID, "error", err)
	}
}

// printResult writes the one-line run summary and returns the run error.
func printResult(w io.Writer, res *engine.RunResult) error {
	if res.Error != nil {
		fmt.Fprintf(w, "✗ Run %s %s: %s after %d step(s)\n  %v\n", res.RunID, res.Status, res.Reason, res.Steps, res.Error)
		return res.Error
	}
	fmt.Fprintf(w, "✓ Run %s %s: %s after %d step(s) in %s\n", res.RunID, res.Status, res.Reason, res.Steps, res.Duration.Round(time.Millisecond))
	return nil
}
