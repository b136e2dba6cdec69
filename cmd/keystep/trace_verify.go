package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
)

var traceVerifyCmd = &cobra.Command{
	Use:   "verify trace.jsonl",
	Short: "Verify trace file integrity (hash chain + signature)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceVerify,
}

func runTraceVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	result, err := trace.VerifyFile(args[0], []byte(os.Getenv(trace.SigningKeyEnv)))
	if err != nil {
		return err
	}

	if !result.Valid {
		fmt.Fprintf(out, "✗ Chain broken at event %d\n", result.BrokenAt)
		if result.Error != "" {
			fmt.Fprintf(out, "  %s\n", result.Error)
		}
		return fmt.Errorf("chain verification failed")
	}
	fmt.Fprintf(out, "✓ Chain integrity: %d events, no breaks\n", result.EventCount)

	keyLabel := result.SigningKeyID
	switch {
	case result.SignatureOK:
		if keyLabel == "" {
			keyLabel = "(default)"
		}
		fmt.Fprintf(out, "✓ Signature valid: signed by key %q\n", keyLabel)
	case result.SignatureNoKey:
		if keyLabel == "" {
			keyLabel = "unknown"
		}
		fmt.Fprintf(out, "⚠ Signature present (key %q) but no %s set to verify\n", keyLabel, trace.SigningKeyEnv)
	case result.Signed:
		fmt.Fprintf(out, "✗ Signature invalid\n")
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func init() {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace file operations",
	}
	traceCmd.AddCommand(traceVerifyCmd)
	rootCmd.AddCommand(traceCmd)
}
