// Package trace implements the engine's append-only JSONL audit trail.
// Every event carries the SHA-256 of the previous line, so a trace file can
// be verified end to end.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventJump         EventType = "jump"
)

// StepStatus is the execution status of a step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailed  StepStatus = "failed" // adapter error continued under policy
	StatusError   StepStatus = "error"  // run-fatal
)

// Genesis is the prev_hash of the first event in a trace.
var Genesis = strings.Repeat("0", 64)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	PrevHash  string         `json:"prev_hash"`
	Data      map[string]any `json:"data,omitempty"`
}

// Failure describes why a step failed or errored.
type Failure struct {
	Kind    string `json:"kind"` // parse, undefined_variable, out_of_range, adapter, timeout, cancelled, step_limit
	Message string `json:"message"`
}

// Writer writes trace events to an append-only JSONL stream.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	runID    string
	prevHash string
	secrets  []string
	keyID    string
	key      []byte
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:        w,
		runID:    runID,
		prevHash: Genesis,
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.closer = f
	return tw, nil
}

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// RunID returns the run identifier stamped on every event.
func (tw *Writer) RunID() string {
	return tw.runID
}

// SetSecrets configures literal values (API keys) to redact from trace output.
func (tw *Writer) SetSecrets(values ...string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.secrets = tw.secrets[:0]
	for _, v := range values {
		if v != "" {
			tw.secrets = append(tw.secrets, v)
		}
	}
}

// SetSigningKey makes run_complete carry an HMAC-SHA256 signature of the chain hash.
func (tw *Writer) SetSigningKey(keyID string, key []byte) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.keyID = keyID
	tw.key = key
}

// RedactSecrets replaces secret values in a string with "<REDACTED>".
func (tw *Writer) RedactSecrets(s string) string {
	for _, v := range tw.secrets {
		s = strings.ReplaceAll(s, v, "<REDACTED>")
	}
	return s
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.emitLocked(eventType, data)
}

func (tw *Writer) emitLocked(eventType EventType, data map[string]any) error {
	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		PrevHash:  tw.prevHash,
		Data:      data,
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if len(tw.secrets) > 0 {
		line = []byte(tw.RedactSecrets(string(line)))
	}
	if _, err := tw.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	tw.prevHash = lineHash(line)
	return nil
}

// EmitRunStart emits a run_start event with program info and seed variables.
func (tw *Writer) EmitRunStart(program string, steps int, seed map[string]string, startPC int) error {
	data := map[string]any{
		"program": program,
		"steps":   steps,
	}
	if len(seed) > 0 {
		data["vars"] = seed
	}
	if startPC > 0 {
		data["resume_at"] = startPC
	}
	return tw.Emit(EventRunStart, data)
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(index int, action string) error {
	return tw.Emit(EventStepStart, map[string]any{
		"step":   index,
		"action": action,
	})
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(index int, status StepStatus, outputs map[string]any, duration time.Duration, failure *Failure) error {
	data := map[string]any{
		"step":     index,
		"status":   string(status),
		"duration": duration.String(),
	}
	if outputs != nil {
		data["outputs"] = outputs
	}
	if failure != nil {
		data["failure"] = map[string]any{
			"kind":    failure.Kind,
			"message": failure.Message,
		}
	}
	return tw.Emit(EventStepComplete, data)
}

// EmitJump emits a jump event for an absolute or relative transfer of control.
func (tw *Writer) EmitJump(from, to int, relative bool) error {
	return tw.Emit(EventJump, map[string]any{
		"from":     from,
		"to":       to,
		"relative": relative,
	})
}

// EmitRunComplete emits a run_complete event sealed with the chain hash.
func (tw *Writer) EmitRunComplete(status, reason string, steps int, duration time.Duration, runErr error) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data := map[string]any{
		"status":     status,
		"steps":      steps,
		"duration":   duration.String(),
		"chain_hash": tw.prevHash,
	}
	if reason != "" {
		data["reason"] = reason
	}
	if runErr != nil {
		data["error"] = runErr.Error()
	}
	if len(tw.key) > 0 {
		data["signature"] = signChain(tw.key, tw.prevHash)
		if tw.keyID != "" {
			data["signing_key_id"] = tw.keyID
		}
	}
	return tw.emitLocked(EventRunComplete, data)
}
