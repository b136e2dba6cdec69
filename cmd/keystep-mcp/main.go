// Command keystep-mcp serves keystep tools to MCP clients over stdio.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/keystep/pkg/config"
	kmcp "github.com/ormasoftchile/keystep/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/keystep/pkg/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("KEYSTEP_CONFIG"))
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr as JSON.
	log := logging.New(os.Stderr, logging.Options{Level: level, Format: logging.FormatJSON})

	opts := kmcp.Options{
		AllowSpawn: cfg.Serve.AllowSpawn,
		Governance: &cfg.Governance,
		Timeout:    time.Minute,
		MaxSteps:   cfg.Engine.MaxSteps,
		Logger:     log,
	}
	if opts.Querier, err = cfg.Querier(log); err != nil {
		return err
	}
	return server.ServeStdio(kmcp.NewServer(version, opts))
}
