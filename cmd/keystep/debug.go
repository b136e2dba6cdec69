package main

import (
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/debugger"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

var debugVars []string

var debugCmd = &cobra.Command{
	Use:   "debug program.yaml",
	Short: "Step through a program in the interactive debugger",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	prog, err := loadProgram(cmd.ErrOrStderr(), args[0])
	if err != nil {
		return err
	}
	seed, err := parseVars(debugVars)
	if err != nil {
		return err
	}
	adapters, spawner, err := localAdapters(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer spawner.Wait()

	rc := cfg.RunConfig()
	rc.RunID = engine.NewRunID()
	rc.ProgramPath = args[0]
	rc.Vars = seed
	rc.Logger = log
	rc.Adapters = adapters

	d := debugger.New(engine.New(prog, rc), cfg.Engine.StateDir)
	d.SetOutput(cmd.OutOrStdout())
	return d.Run(cmd.Context())
}

func init() {
	debugCmd.Flags().StringArrayVar(&debugVars, "var", nil, "Seed a variable (name=value), repeatable")
	rootCmd.AddCommand(debugCmd)
}
