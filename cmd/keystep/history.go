package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/history"
)

var (
	historyLimit   int
	historyProgram string
	historyStatus  string
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryStore()
		if err != nil {
			return err
		}
		defer store.Close()
		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func openHistoryStore() (*history.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("run history is disabled (history.path is empty)")
	}
	return store, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), history.Filter{
		Program: historyProgram,
		Status:  historyStatus,
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}
	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "PROGRAM", "SOURCE", "STATUS", "REASON", "STEPS", "STARTED", "DURATION")
	for _, r := range runs {
		t.Row(r.ID, r.Program, r.Source, r.Status, r.Reason, strconv.Itoa(r.Steps),
			r.StartedAt.Local().Format(time.DateTime), r.Duration.Round(time.Millisecond).String())
	}
	fmt.Fprintln(w, t.Render())
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "Maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyProgram, "program", "", "Only runs of this program")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only runs with this status (completed, error, cancelled)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
