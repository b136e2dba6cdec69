package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/replay"
	kschema "github.com/ormasoftchile/keystep/pkg/kernel/schema"
	kvalidate "github.com/ormasoftchile/keystep/pkg/kernel/validate"
	"github.com/ormasoftchile/keystep/pkg/providers"
)

const defaultTimeout = 30 * time.Second

type handlers struct {
	opts Options
}

func (h *handlers) timeout() time.Duration {
	if h.opts.Timeout > 0 {
		return h.opts.Timeout
	}
	return defaultTimeout
}

// HandleValidate implements the keystep/validate MCP tool.
func (h *handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	prog, errs := kvalidate.ValidateFile(path)
	if kvalidate.HasErrors(errs) {
		return errorResult(formatErrors(kvalidate.Errors(errs))), nil
	}
	msg := fmt.Sprintf("✓ %s is valid (%d steps)", prog.Name, prog.Len())
	if warns := kvalidate.Warnings(errs); len(warns) > 0 {
		msg += "\nwarnings: " + formatErrors(warns)
	}
	return textResult(msg), nil
}

// HandleSchema implements the keystep/schema MCP tool.
func (h *handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		data []byte
		err  error
	)
	switch t := req.GetString("type", ""); t {
	case "program":
		data, err = kschema.GenerateProgramJSONSchema()
	case "shortcut":
		data, err = kschema.GenerateShortcutJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q, use 'program' or 'shortcut'", t)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the keystep/run MCP tool.
func (h *handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	prog, errs := kvalidate.ValidateFile(path)
	if kvalidate.HasErrors(errs) {
		return errorResult(formatErrors(kvalidate.Errors(errs))), nil
	}

	vars := make(map[string]string)
	if raw, ok := req.GetArguments()["vars"].(map[string]any); ok {
		for k, v := range raw {
			vars[k] = fmt.Sprint(v)
		}
	}

	fakes := replay.NewFakes(&replay.Scenario{Clipboard: req.GetString("clipboard", "")})
	adapters := fakes.Adapters()
	adapters.Querier = h.opts.Querier
	adapters.Spawner = providers.DisabledSpawner{}
	if h.opts.AllowSpawn {
		adapters.Spawner = &providers.ProcessSpawner{Logger: h.opts.Logger}
	}
	adapters, err := h.opts.Governance.Apply(adapters)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()
	result := engine.New(prog, engine.RunConfig{
		RunID:       "mcp-" + engine.NewRunID(),
		ProgramPath: path,
		Vars:        vars,
		Adapters:    adapters,
		Logger:      h.opts.Logger,
		MaxSteps:    h.opts.MaxSteps,
	}).Run(ctx)

	response := map[string]any{
		"run_id":   result.RunID,
		"status":   result.Status,
		"reason":   result.Reason,
		"steps":    result.Steps,
		"vars":     result.Vars,
		"duration": result.Duration.String(),
	}
	if result.Error != nil {
		response["error"] = result.Error.Error()
	}
	if lines := fakes.Console.Lines(); len(lines) > 0 {
		response["console"] = lines
	}
	if shown := fakes.Dialog.Shown(); len(shown) > 0 {
		response["dialogs"] = shown
	}
	response["clipboard"] = fakes.Clipboard.Text()

	data, _ := json.MarshalIndent(response, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: result.Status != engine.StatusCompleted,
	}, nil
}

// HandleTest implements the keystep/test MCP tool.
func (h *handlers) HandleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	runner := &replay.Runner{
		Timeout:  h.timeout(),
		Logger:   h.opts.Logger,
		MaxSteps: h.opts.MaxSteps,
	}

	var output *replay.TestOutput
	if name := req.GetString("scenario", ""); name != "" {
		prog, errs := kvalidate.ValidateFile(path)
		if kvalidate.HasErrors(errs) {
			return errorResult(formatErrors(kvalidate.Errors(errs))), nil
		}
		scenarioPath := filepath.Join(filepath.Dir(path), "scenarios",
			strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), name+".yaml")
		s, err := replay.LoadScenario(scenarioPath)
		if err != nil {
			return errorResult(fmt.Sprintf("load scenario: %s", err)), nil
		}
		output = &replay.TestOutput{Program: prog.Name}
		output.Add(runner.Run(ctx, prog, name, s))
	} else {
		var err error
		output, err = runner.RunAll(ctx, path)
		if err != nil {
			return errorResult(fmt.Sprintf("run tests: %s", err)), nil
		}
	}

	data, _ := json.MarshalIndent(output, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: output.Summary.Failed > 0 || output.Summary.Errors > 0,
	}, nil
}

func formatErrors(errs []*kvalidate.ValidationError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
