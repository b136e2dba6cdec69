package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res := &engine.RunResult{
		RunID:    "run-1",
		Status:   engine.StatusError,
		Reason:   "adapter",
		PC:       3,
		Steps:    4,
		Vars:     map[string]string{"input": "hello"},
		Duration: 1500 * time.Millisecond,
		Error:    errors.New("step 3 (read_clipboard): clipboard unavailable"),
	}
	if err := s.Record(ctx, FromResult("summarise", "clipboard", started, res)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Program != "summarise" || got.Source != "clipboard" || got.Status != engine.StatusError {
		t.Errorf("run = %+v", got)
	}
	if got.PC != 3 || got.Steps != 4 || got.Vars["input"] != "hello" {
		t.Errorf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.Duration != 1500*time.Millisecond {
		t.Errorf("times = %v, %v", got.StartedAt, got.Duration)
	}
	if got.Error == "" {
		t.Error("error text not stored")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecord_EmptyID(t *testing.T) {
	s := openStore(t)
	if err := s.Record(context.Background(), Run{}); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestRecord_Replace(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r := Run{ID: "r", Program: "p", Status: engine.StatusError, StartedAt: time.Now()}
	if err := s.Record(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Status = engine.StatusCompleted
	if err := s.Record(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != engine.StatusCompleted || got.Vars == nil {
		t.Errorf("run = %+v", got)
	}
}

func TestList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := []Run{
		{ID: "a", Program: "loop", Status: engine.StatusCompleted, StartedAt: base},
		{ID: "b", Program: "loop", Status: engine.StatusError, StartedAt: base.Add(time.Minute)},
		{ID: "c", Program: "compare", Status: engine.StatusCompleted, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range runs {
		if err := s.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("List = %v", ids(all))
	}

	loops, _ := s.List(ctx, Filter{Program: "loop"})
	if len(loops) != 2 || loops[0].ID != "b" {
		t.Errorf("List(program=loop) = %v", ids(loops))
	}

	done, _ := s.List(ctx, Filter{Status: engine.StatusCompleted, Limit: 1})
	if len(done) != 1 || done[0].ID != "c" {
		t.Errorf("List(completed, 1) = %v", ids(done))
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Error("expected error for empty path")
	}
}

func ids(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
