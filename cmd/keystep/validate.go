package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/config"
	"github.com/ormasoftchile/keystep/pkg/kernel/validate"
)

var validateConfig bool

var validateCmd = &cobra.Command{
	Use:   "validate [program.yaml...]",
	Short: "Validate program files, or the config file with --config-only",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if validateConfig {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ config is valid (%d shortcut(s))\n", len(cfg.Shortcuts))
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("requires at least 1 program file (or --config-only)")
	}

	failed := 0
	for _, path := range args {
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".markdown" {
			return fmt.Errorf("%s is a Markdown file, not a program", path)
		}
		prog, errs := validate.ValidateFile(path)
		printValidation(cmd.ErrOrStderr(), errs)
		if validate.HasErrors(errs) {
			failed++
			continue
		}
		fmt.Fprintf(out, "✓ %s is valid (%d steps)\n", prog.Name, prog.Len())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d program(s) failed validation", failed, len(args))
	}
	return nil
}

func init() {
	validateCmd.Flags().BoolVar(&validateConfig, "config-only", false, "Validate the config file and its shortcuts instead of program files")
	rootCmd.AddCommand(validateCmd)
}
