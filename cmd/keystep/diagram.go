package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/diagram"
)

var diagramFormat string

var diagramCmd = &cobra.Command{
	Use:   "diagram program.yaml",
	Short: "Draw the control flow of a program (mermaid or ascii)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := loadProgram(cmd.ErrOrStderr(), args[0])
		if err != nil {
			return err
		}
		out, err := diagram.Generate(prog, diagram.Format(diagramFormat))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", string(diagram.FormatASCII), "Output format: mermaid or ascii")
	rootCmd.AddCommand(diagramCmd)
}
