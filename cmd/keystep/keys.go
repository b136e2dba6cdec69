package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/history"
	"github.com/ormasoftchile/keystep/pkg/hotkey"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the key names usable in shortcuts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range schema.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger KEY...",
	Short: "Press keys in order and run the shortcut they trigger",
	Long: `Feed key presses to the shortcut matcher, in order and without releases,
and run every shortcut whose combination becomes held. Useful to exercise
shortcuts without a keyboard hook.

  keystep trigger LControlKey MKey`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrigger,
}

func runTrigger(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := hotkey.NewMatcher(cfg.Shortcuts)
	if err != nil {
		return err
	}
	var fired []*schema.Shortcut
	for _, arg := range args {
		k, err := schema.ParseKey(arg)
		if err != nil {
			return err
		}
		if s := m.Press(k); s != nil {
			fired = append(fired, s)
		}
	}
	if len(fired) == 0 {
		return fmt.Errorf("no shortcut matches %s", hotkey.Combo(m.Held()))
	}

	adapters, spawner, err := localAdapters(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer spawner.Wait()
	store, err := openHistory(cfg)
	if err != nil {
		log.Warn("run history unavailable", "error", err)
	}
	if store != nil {
		defer store.Close()
	}

	var errs []error
	for _, s := range fired {
		log.Info("shortcut triggered", "shortcut", s.Name, "keys", hotkey.Combo(s.Keys))
		rc := cfg.RunConfig()
		rc.RunID = engine.NewRunID()
		rc.Logger = log
		rc.Adapters = adapters
		started := time.Now()
		res := engine.New(s.Program, rc).Run(cmd.Context())
		recordRun(cmd.Context(), store, log, history.FromResult(s.Program.Name, "shortcut:"+s.Name, started, res))
		errs = append(errs, printResult(cmd.OutOrStdout(), res))
		if err := hotkey.Deliver(cmd.Context(), s, adapters, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(triggerCmd)
}
