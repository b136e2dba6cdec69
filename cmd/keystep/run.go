package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/keystep/pkg/ecosystem/tui"
	"github.com/ormasoftchile/keystep/pkg/history"
	"github.com/ormasoftchile/keystep/pkg/hotkey"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
)

var (
	runVars     []string
	runResume   string
	runTrace    string
	runRecord   string
	runMonitor  bool
	runShortcut string
)

var runCmd = &cobra.Command{
	Use:   "run [program.yaml]",
	Short: "Run a program with the local adapters",
	Long: `Run a program file, a configured shortcut (--shortcut) or a saved failed run (--resume).

A run that halts with an error saves its state under engine.state_dir so it can
be resumed at the failing step.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	seed, err := parseVars(runVars)
	if err != nil {
		return err
	}

	var (
		prog     *schema.Program
		path     string
		source   string
		state    *engine.RunState
		shortcut *schema.Shortcut
	)
	switch {
	case runResume != "":
		if len(args) > 0 || runShortcut != "" {
			return errors.New("--resume takes no program argument or --shortcut")
		}
		if runMonitor {
			return errors.New("--tui cannot be combined with --resume")
		}
		state, err = engine.LoadState(cfg.Engine.StateDir, runResume)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if state.ProgramPath == "" {
			return fmt.Errorf("run %s has no program path to resume", runResume)
		}
		path, source = state.ProgramPath, state.ProgramPath
		for k, v := range seed {
			state.Vars[k] = v
		}
	case runShortcut != "":
		if len(args) > 0 {
			return errors.New("--shortcut takes no program argument")
		}
		s, ok := cfg.Shortcut(runShortcut)
		if !ok {
			return fmt.Errorf("no shortcut named %q in config", runShortcut)
		}
		prog, source, shortcut = s.Program, "shortcut:"+s.Name, s
	case len(args) == 1:
		path, source = args[0], args[0]
	default:
		return errors.New("requires a program file, --shortcut or --resume")
	}
	if prog == nil {
		if prog, err = loadProgram(cmd.ErrOrStderr(), path); err != nil {
			return err
		}
	}

	rc := cfg.RunConfig()
	rc.RunID = engine.NewRunID()
	if state != nil {
		rc.RunID = state.RunID
	}
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	rc.ProgramPath = path
	rc.Vars = seed
	rc.Logger = log

	adapters, spawner, err := localAdapters(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer spawner.Wait()

	var rec *recorder.Recorder
	if runRecord != "" {
		if path == "" {
			return errors.New("--record needs a program file")
		}
		rec = recorder.New(adapters)
		rec.SetSecrets(cfg.OpenAI.APIKey)
		adapters = rec.Adapters()
	}
	rc.Adapters = adapters

	var tw *trace.Writer
	if runTrace != "" && !runMonitor {
		if tw, err = openTrace(runTrace, rc.RunID, cfg); err != nil {
			return err
		}
		defer tw.Close()
	}

	store, err := openHistory(cfg)
	if err != nil {
		log.Warn("run history unavailable", "error", err)
	}
	if store != nil {
		defer store.Close()
	}

	ctx := cmd.Context()
	started := time.Now()
	var res *engine.RunResult
	if runMonitor {
		opts := tui.Options{TraceSetup: configureTrace(cfg)}
		if runTrace != "" {
			f, err := os.OpenFile(runTrace, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open trace file: %w", err)
			}
			defer f.Close()
			opts.TraceOut = f
		}
		res, err = tui.Run(ctx, prog, rc, opts)
		if err != nil {
			return err
		}
	} else {
		rc.Trace = tw
		eng := engine.New(prog, rc)
		if state != nil {
			if err := eng.Resume(state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Resuming run %s at step %d\n", state.RunID, state.StepIndex)
		}
		res = eng.Run(ctx)
		if res.Error != nil && cfg.Engine.StateDir != "" && path != "" {
			st := eng.State()
			st.TracePath = runTrace
			if err := engine.SaveState(cfg.Engine.StateDir, st); err != nil {
				log.Warn("save run state", "error", err)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "State saved; resume with: keystep run --resume %s\n", st.RunID)
			}
		}
	}

	recordRun(ctx, store, log, history.FromResult(prog.Name, source, started, res))

	if rec != nil {
		s := rec.Scenario(fmt.Sprintf("recorded run %s", res.RunID), seed, rc.AdapterPolicy, res)
		out := recorder.ScenarioPath(path, runRecord)
		if err := recorder.Save(out, s); err != nil {
			log.Warn("save scenario", "error", err)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Scenario saved: %s\n", out)
		}
	}

	runErr := printResult(cmd.OutOrStdout(), res)
	if shortcut != nil {
		if err := hotkey.Deliver(ctx, shortcut, adapters, res); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Seed a variable (name=value), repeatable")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Resume a failed run by ID from engine.state_dir")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Write a JSONL trace to this file")
	runCmd.Flags().StringVar(&runRecord, "record", "", "Save the run as a replay scenario with this name")
	runCmd.Flags().BoolVar(&runMonitor, "tui", false, "Run under the terminal monitor")
	runCmd.Flags().StringVar(&runShortcut, "shortcut", "", "Run the program of a configured shortcut")
	rootCmd.AddCommand(runCmd)
}
