// Package providers implements the engine adapters against the real system:
// processes, the terminal, the clipboard, dialogs and the OpenAI API.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// ProcessSpawner starts processes with os/exec and does not wait for them.
// Exits are logged when they happen.
type ProcessSpawner struct {
	Logger *slog.Logger
	Stdout io.Writer // nil discards child output
	Stderr io.Writer
	Env    []string

	wg sync.WaitGroup
}

// Spawn starts command with args. The context bounds only the start; the
// child outlives the step and the run.
//
// On Windows, if the command is not found directly it is retried through
// cmd.exe /C so that shell builtins (start, echo, ...) work transparently.
func (p *ProcessSpawner) Spawn(ctx context.Context, command string, args []string) (*engine.SpawnResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("spawn: empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := p.command(command, args...)
	err := cmd.Start()

	// We pass the entire command line as a single string after /C so that
	// Go's exec doesn't add extra quoting around individual arguments.
	if err != nil && runtime.GOOS == "windows" && isExecNotFound(err) {
		cmdLine := strings.Join(append([]string{command}, args...), " ")
		cmd = p.command("cmd.exe", "/C", cmdLine)
		err = cmd.Start()
	}
	if err != nil {
		return nil, fmt.Errorf("start %q: %w", command, err)
	}

	pid := cmd.Process.Pid
	log := p.logger().With("command", command, "pid", pid)
	log.Info("process started", "args", args)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := cmd.Wait(); err != nil {
			log.Warn("process exited", "error", err)
			return
		}
		log.Info("process exited", "exit_code", 0)
	}()

	return &engine.SpawnResult{PID: pid, Command: command, Args: args}, nil
}

// Wait blocks until every spawned process has exited.
func (p *ProcessSpawner) Wait() {
	p.wg.Wait()
}

func (p *ProcessSpawner) command(name string, args ...string) *exec.Cmd {
	// Not CommandContext: cancelling the run must not kill spawned programs.
	cmd := exec.Command(name, args...)
	if len(p.Env) > 0 {
		cmd.Env = p.Env
	}
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	return cmd
}

func (p *ProcessSpawner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isExecNotFound returns true when the error indicates the executable was not found.
func isExecNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	return errors.As(err, &execErr)
}
