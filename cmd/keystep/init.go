package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file with sample shortcuts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteExample(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s\n", path)
		fmt.Fprintf(cmd.OutOrStdout(), "  set openai.api_key (or OPENAI_API_KEY) before using ask_chatgpt\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
