package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/keystep/pkg/serve"
)

var (
	serveAddr       string
	serveRunTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local HTTP API (validate, run, history)",
	Long: `Serve the HTTP API on serve.addr (default 127.0.0.1:7465).

Runs use headless adapters: console output and dialogs are captured and the
clipboard is in memory. Spawning processes is refused unless serve.allow_spawn
is set in the config.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	q, err := cfg.Querier(log)
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	addr := cfg.Serve.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := serve.New(serve.Options{
		Querier:    q,
		AllowSpawn: cfg.Serve.AllowSpawn,
		Governance: &cfg.Governance,
		History:    store,
		Engine:     cfg.RunConfig(),
		RunTimeout: serveRunTimeout,
		Logger:     log,
	})
	return srv.ListenAndServe(cmd.Context(), addr)
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides serve.addr)")
	serveCmd.Flags().DurationVar(&serveRunTimeout, "run-timeout", time.Minute, "Maximum duration of one run")
	rootCmd.AddCommand(serveCmd)
}
