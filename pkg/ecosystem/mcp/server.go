// Package mcp exposes keystep to MCP clients: validate a program, run it
// headless, replay its scenarios and export the JSON Schema.
package mcp

import (
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/keystep/pkg/governance"
	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// Options configures the tools.
type Options struct {
	// Querier answers ask_chatgpt; nil makes those steps fail.
	Querier engine.Querier

	// AllowSpawn lets keystep/run start processes, subject to Governance.
	AllowSpawn bool

	// Governance restricts spawned commands and redacts console output.
	Governance *governance.Policy

	// Timeout bounds each keystep/run and keystep/test call.
	Timeout time.Duration

	// MaxSteps bounds each run. Zero means the engine default.
	MaxSteps int

	Logger *slog.Logger
}

// NewServer creates a new MCP server with keystep tools registered.
func NewServer(version string, opts Options) *server.MCPServer {
	h := &handlers{opts: opts}
	s := server.NewMCPServer(
		"keystep",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("keystep/validate",
			mcp.WithDescription("Validate a keystep program YAML or JSON file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the program file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("keystep/run",
			mcp.WithDescription("Run a keystep program headless: console output is captured, dialogs are dismissed, the clipboard is in memory"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the program file")),
			mcp.WithObject("vars", mcp.Description("Seed variables (string values)")),
			mcp.WithString("clipboard", mcp.Description("Initial clipboard content")),
		),
		h.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("keystep/test",
			mcp.WithDescription("Run scenario replay tests for a keystep program"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the program file")),
			mcp.WithString("scenario", mcp.Description("Run only the named scenario (optional)")),
		),
		h.HandleTest,
	)

	s.AddTool(
		mcp.NewTool("keystep/schema",
			mcp.WithDescription("Export keystep JSON Schema (program or shortcut)"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'program' or 'shortcut'"),
				mcp.Enum("program", "shortcut")),
		),
		h.HandleSchema,
	)

	return s
}
