package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/kernel/replay"
	"github.com/ormasoftchile/keystep/pkg/kernel/validate"
)

var (
	testScenario string
	testJSON     bool
	testFailFast bool
	testTimeout  time.Duration
)

var testCmd = &cobra.Command{
	Use:   "test [program.yaml...]",
	Short: "Replay scenario tests against programs",
	Long: `Replay each program against its scenarios with fake adapters and check the
scenario expectations.

Scenarios are discovered by convention at:
  {program-dir}/scenarios/{program-name}/*.yaml

--scenario runs a single scenario file instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	_, log, err := loadConfig()
	if err != nil {
		return err
	}
	if testScenario != "" && len(args) != 1 {
		return fmt.Errorf("--scenario needs exactly one program")
	}

	runner := &replay.Runner{Timeout: testTimeout, FailFast: testFailFast, Logger: log}
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		output, err := runProgramTests(cmd, runner, path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s: %v\n", path, err)
			failed++
			continue
		}
		if testJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(output); err != nil {
				return err
			}
		} else {
			printTestOutput(out, output)
		}
		if output.Summary.Failed > 0 || output.Summary.Errors > 0 {
			failed++
			if testFailFast {
				break
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d program(s) failed", failed)
	}
	return nil
}

func runProgramTests(cmd *cobra.Command, runner *replay.Runner, path string) (*replay.TestOutput, error) {
	if testScenario == "" {
		return runner.RunAll(cmd.Context(), path)
	}
	prog, errs := validate.ValidateFile(path)
	if validate.HasErrors(errs) {
		return nil, fmt.Errorf("program validation failed: %v", validate.Errors(errs)[0])
	}
	s, err := replay.LoadScenario(testScenario)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(testScenario)
	name = name[:len(name)-len(filepath.Ext(name))]
	output := &replay.TestOutput{Program: prog.Name}
	output.Add(runner.Run(cmd.Context(), prog, name, s))
	return output, nil
}

func printTestOutput(w io.Writer, output *replay.TestOutput) {
	fmt.Fprintf(w, "\n  %s\n", output.Program)
	for _, s := range output.Scenarios {
		switch s.Status {
		case replay.StatusPassed:
			fmt.Fprintf(w, "    ✓ %-30s (%s)  %dms\n", s.ScenarioName, s.RunStatus, s.DurationMs)
		case replay.StatusFailed:
			fmt.Fprintf(w, "    ✗ %-30s (%s)  %dms\n", s.ScenarioName, s.RunStatus, s.DurationMs)
			for _, a := range s.Assertions {
				if !a.Passed {
					fmt.Fprintf(w, "        %s: %s\n", a.Type, a.Message)
				}
			}
		default:
			fmt.Fprintf(w, "    ✗ %-30s ERROR: %s\n", s.ScenarioName, s.Error)
		}
	}
	if output.Summary.Total == 0 {
		fmt.Fprintf(w, "    (no scenarios)\n")
	}
	fmt.Fprintf(w, "\n  %d scenarios, %d passed, %d failed\n",
		output.Summary.Total, output.Summary.Passed, output.Summary.Failed)
	if output.Summary.Errors > 0 {
		fmt.Fprintf(w, "  %d errors\n", output.Summary.Errors)
	}
}

func init() {
	testCmd.Flags().StringVar(&testScenario, "scenario", "", "Run only this scenario file")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Output results as structured JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after the first failure")
	testCmd.Flags().DurationVar(&testTimeout, "timeout", 30*time.Second, "Per-scenario timeout")
	rootCmd.AddCommand(testCmd)
}
