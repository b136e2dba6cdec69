package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:       "export [program|shortcut]",
	Short:     "Export the JSON Schema for programs or shortcuts",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"program", "shortcut"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := "program"
		if len(args) == 1 {
			kind = args[0]
		}
		var (
			data []byte
			err  error
		)
		switch kind {
		case "program":
			data, err = schema.GenerateProgramJSONSchema()
		case "shortcut":
			data, err = schema.GenerateShortcutJSONSchema()
		default:
			return fmt.Errorf("unknown schema %q (allowed: program, shortcut)", kind)
		}
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaExportCmd)
	rootCmd.AddCommand(schemaCmd)
}
