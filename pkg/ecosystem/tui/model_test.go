package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
	"github.com/ormasoftchile/keystep/pkg/kernel/schema"
	"github.com/ormasoftchile/keystep/pkg/kernel/trace"
)

func testProgram() *schema.Program {
	return &schema.Program{
		APIVersion: schema.APIVersionProgram,
		Name:       "monitor",
		Steps: []schema.Action{
			{Kind: schema.ActionSetVariable, Name: "x", Value: "1"},
			{Kind: schema.ActionPrintConsole, Content: "{{x}}"},
			{Kind: schema.ActionEndProgram},
		},
	}
}

func TestModel_InitFromProgram(t *testing.T) {
	m := NewModel(testProgram(), nil)
	if len(m.steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(m.steps))
	}
	if !strings.HasPrefix(m.steps[0].Action, "set_variable") {
		t.Errorf("step[0].Action = %q", m.steps[0].Action)
	}
	if m.status != "idle" {
		t.Errorf("status = %q, want idle", m.status)
	}
}

func TestModel_TracksStepStatus(t *testing.T) {
	m := NewModel(testProgram(), nil)

	m.applyTraceEvent(trace.Event{Type: trace.EventStepStart, Data: map[string]any{"step": float64(0)}})
	if m.steps[0].Status != "running" || m.status != "running" || m.steps[0].Visits != 1 {
		t.Errorf("after step_start: %+v", m.steps[0])
	}

	m.applyTraceEvent(trace.Event{
		Type: trace.EventStepComplete,
		Data: map[string]any{"step": 0, "status": "success", "duration": "100ms"},
	})
	if m.steps[0].Status != "success" || m.steps[0].Duration.Milliseconds() != 100 {
		t.Errorf("after step_complete: %+v", m.steps[0])
	}
	if m.pc != 1 {
		t.Errorf("pc = %d, want 1", m.pc)
	}

	m.applyTraceEvent(trace.Event{
		Type: trace.EventStepComplete,
		Data: map[string]any{"step": 1, "status": "failed", "failure": map[string]any{"kind": "adapter", "message": "no console"}},
	})
	if m.steps[1].Failure != "no console" {
		t.Errorf("failure = %q", m.steps[1].Failure)
	}

	m.applyTraceEvent(trace.Event{Type: trace.EventJump, Data: map[string]any{"from": 2, "to": 0}})
	if m.pc != 0 {
		t.Errorf("pc after jump = %d", m.pc)
	}

	// Out-of-range indices are ignored.
	m.applyTraceEvent(trace.Event{Type: trace.EventStepStart, Data: map[string]any{"step": 9}})
}

func TestModel_ConsoleKeepsTail(t *testing.T) {
	var tm tea.Model = NewModel(testProgram(), nil)
	for i := 0; i < consoleLines+3; i++ {
		tm, _ = tm.Update(consoleMsg{Text: "line"})
	}
	if got := len(tm.(Model).console); got != consoleLines {
		t.Errorf("console lines = %d, want %d", got, consoleLines)
	}
	if !strings.Contains(tm.View(), "Console:") {
		t.Error("view missing console panel")
	}
}

func TestModel_Dialog(t *testing.T) {
	var tm tea.Model = NewModel(testProgram(), nil)
	reply := make(chan error, 1)
	tm, _ = tm.Update(dialogMsg{Title: "Hello World!", Body: "body", reply: reply})
	if !strings.Contains(tm.View(), "Hello World!") {
		t.Errorf("view = %q", tm.View())
	}

	// Navigation keys do not answer the dialog.
	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyDown})
	if tm.(Model).dialog == nil {
		t.Fatal("dialog closed by an unrelated key")
	}

	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if tm.(Model).dialog != nil {
		t.Error("dialog still open")
	}
	if err := <-reply; !errors.Is(err, errDialogRejected) {
		t.Errorf("reply = %v, want rejection", err)
	}
}

func TestModel_QuitCancels(t *testing.T) {
	cancelled := false
	m := NewModel(testProgram(), func() { cancelled = true })
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled || cmd == nil {
		t.Errorf("cancelled = %v, cmd = %v", cancelled, cmd)
	}
}

func TestModel_RunComplete(t *testing.T) {
	var tm tea.Model = NewModel(testProgram(), nil)
	tm, _ = tm.Update(runCompleteMsg{Result: &engine.RunResult{Status: engine.StatusCompleted, Reason: engine.ReasonEndProgram}})
	if !strings.Contains(tm.View(), "completed (end_program)") {
		t.Errorf("view = %q", tm.View())
	}
	tm, _ = tm.Update(runCompleteMsg{Result: &engine.RunResult{Status: engine.StatusError, Reason: "parse", Error: errors.New("bad number")}})
	if !strings.Contains(tm.View(), "error: bad number") {
		t.Errorf("view = %q", tm.View())
	}
}

func TestEventSink_DecodesLines(t *testing.T) {
	var got []trace.Event
	sink := &eventSink{send: func(msg tea.Msg) {
		got = append(got, msg.(traceEventMsg).Event)
	}}
	tw := trace.NewWriter(sink, "r")
	tw.EmitStepStart(2, "sleep")
	tw.EmitJump(2, 0, true)

	// A line split across writes is decoded once complete.
	sink.Write([]byte(`{"type":"step_start","run_id":"r","prev_hash":"x","data":{"step":1}`))
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2 before the newline", len(got))
	}
	sink.Write([]byte("}\n"))
	if len(got) != 3 || got[2].Type != trace.EventStepStart {
		t.Fatalf("events = %+v", got)
	}
	if got[0].Type != trace.EventStepStart || got[1].Type != trace.EventJump {
		t.Errorf("events = %+v", got)
	}
}

func TestDialog_Cancelled(t *testing.T) {
	d := &dialog{send: func(tea.Msg) {}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Show(ctx, "t", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
